package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/rank-tracker/internal/domain/game"
	"github.com/riskibarqy/rank-tracker/internal/domain/ingestion"
	"github.com/riskibarqy/rank-tracker/internal/domain/player"
	qb "github.com/riskibarqy/rank-tracker/internal/platform/querybuilder"
)

const ingestionResultTable = "ingestion_results"

var ingestionResultColumns = []string{
	"cycle_id",
	"game",
	"external_id",
	"attempted_at",
	"attempts",
	"status",
	"snapshot_id",
	"reason",
	"error_kind",
	"detail",
}

type ingestionResultTableModel struct {
	CycleID     string         `db:"cycle_id"`
	Game        string         `db:"game"`
	ExternalID  string         `db:"external_id"`
	AttemptedAt time.Time      `db:"attempted_at"`
	Attempts    int            `db:"attempts"`
	Status      string         `db:"status"`
	SnapshotID  sql.NullString `db:"snapshot_id"`
	Reason      sql.NullString `db:"reason"`
	ErrorKind   sql.NullString `db:"error_kind"`
	Detail      sql.NullString `db:"detail"`
}

func (m ingestionResultTableModel) toDomain() ingestion.Result {
	return ingestion.Result{
		CycleID:     m.CycleID,
		Player:      player.Identity{Game: game.ID(m.Game), ExternalID: m.ExternalID},
		AttemptedAt: m.AttemptedAt.UTC(),
		Attempts:    m.Attempts,
		Outcome: ingestion.Outcome{
			Status:     ingestion.Status(m.Status),
			SnapshotID: m.SnapshotID.String,
			Reason:     ingestion.SkipReason(m.Reason.String),
			ErrorKind:  ingestion.ErrorKind(m.ErrorKind.String),
			Detail:     m.Detail.String,
		},
	}
}

type IngestionResultRepository struct {
	db *sqlx.DB
}

func NewIngestionResultRepository(db *sqlx.DB) *IngestionResultRepository {
	return &IngestionResultRepository{db: db}
}

// Record writes a whole cycle in one multi-row insert.
func (r *IngestionResultRepository) Record(ctx context.Context, results []ingestion.Result) error {
	if len(results) == 0 {
		return nil
	}
	query, args, err := recordResultsQuery(results)
	if err != nil {
		return fmt.Errorf("build insert ingestion results query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return storeError("insert ingestion results", err)
	}
	return nil
}

func recordResultsQuery(results []ingestion.Result) (string, []any, error) {
	builder := qb.InsertInto(ingestionResultTable).Columns(ingestionResultColumns...)
	for _, result := range results {
		attempts := result.Attempts
		if attempts <= 0 {
			attempts = 1
		}
		builder.Values(
			result.CycleID,
			string(result.Player.Game),
			result.Player.ExternalID,
			result.AttemptedAt.UTC(),
			attempts,
			string(result.Outcome.Status),
			optionalString(result.Outcome.SnapshotID),
			optionalString(string(result.Outcome.Reason)),
			optionalString(string(result.Outcome.ErrorKind)),
			optionalString(result.Outcome.Detail),
		)
	}
	return builder.ToSQL()
}

func (r *IngestionResultRepository) LatestByPlayer(ctx context.Context, key player.Key) (ingestion.Result, bool, error) {
	query, args, err := qb.Select(ingestionResultColumns...).From(ingestionResultTable).
		Where(
			qb.Eq("game", string(key.Game)),
			qb.Eq("external_id", key.ExternalID),
		).
		OrderBy("attempted_at DESC", "id DESC").
		Limit(1).
		ToSQL()
	if err != nil {
		return ingestion.Result{}, false, fmt.Errorf("build select latest ingestion result query: %w", err)
	}

	var row ingestionResultTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return ingestion.Result{}, false, nil
		}
		return ingestion.Result{}, false, storeError("select latest ingestion result player="+key.String(), err)
	}
	return row.toDomain(), true, nil
}

func (r *IngestionResultRepository) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	query, args, err := qb.DeleteFrom(ingestionResultTable).
		Where(qb.Lt("attempted_at", olderThan.UTC())).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build prune ingestion results query: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, storeError("prune ingestion results", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune ingestion results rows affected: %w", err)
	}
	return affected, nil
}
