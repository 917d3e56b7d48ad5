package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/rank-tracker/internal/domain/game"
	"github.com/riskibarqy/rank-tracker/internal/domain/player"
	qb "github.com/riskibarqy/rank-tracker/internal/platform/querybuilder"
)

const trackedAccountTable = "tracked_accounts"

type trackedAccountTableModel struct {
	Game        string         `db:"game"`
	ExternalID  string         `db:"external_id"`
	DisplayName sql.NullString `db:"display_name"`
	Region      sql.NullString `db:"region"`
}

type trackedAccountInsertModel struct {
	Game        string    `db:"game"`
	ExternalID  string    `db:"external_id"`
	DisplayName *string   `db:"display_name"`
	Region      *string   `db:"region"`
	IsActive    bool      `db:"is_active"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// TrackedAccountRepository reads the registrations written by the chat
// layer. Upsert exists for bootstrap and admin tooling.
type TrackedAccountRepository struct {
	db *sqlx.DB
}

func NewTrackedAccountRepository(db *sqlx.DB) *TrackedAccountRepository {
	return &TrackedAccountRepository{db: db}
}

func (r *TrackedAccountRepository) ListTrackedPairs(ctx context.Context) ([]player.Identity, error) {
	query, args, err := qb.Select("game", "external_id", "display_name", "region").From(trackedAccountTable).
		Where(qb.Eq("is_active", true)).
		OrderBy("game", "external_id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select tracked accounts query: %w", err)
	}

	var rows []trackedAccountTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, storeError("select tracked accounts", err)
	}

	out := make([]player.Identity, 0, len(rows))
	for _, row := range rows {
		out = append(out, player.Identity{
			Game:        game.ID(row.Game),
			ExternalID:  row.ExternalID,
			DisplayName: row.DisplayName.String,
			Region:      row.Region.String,
		})
	}
	return out, nil
}

func (r *TrackedAccountRepository) Upsert(ctx context.Context, identity player.Identity) error {
	return upsertTrackedAccount(ctx, r.db, identity)
}

func upsertTrackedAccount(ctx context.Context, exec sqlx.ExecerContext, identity player.Identity) error {
	if err := identity.Validate(); err != nil {
		return fmt.Errorf("upsert tracked account: %w", err)
	}
	model := trackedAccountInsertModel{
		Game:        string(identity.Game),
		ExternalID:  identity.ExternalID,
		DisplayName: optionalString(identity.DisplayName),
		Region:      optionalString(identity.Region),
		IsActive:    true,
		UpdatedAt:   time.Now().UTC(),
	}
	query, args, err := qb.InsertModel(trackedAccountTable, model, `ON CONFLICT (game, external_id)
DO UPDATE SET
    display_name = COALESCE(EXCLUDED.display_name, tracked_accounts.display_name),
    region = COALESCE(EXCLUDED.region, tracked_accounts.region),
    is_active = TRUE,
    updated_at = EXCLUDED.updated_at`)
	if err != nil {
		return fmt.Errorf("build upsert tracked account query: %w", err)
	}
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		return storeError("upsert tracked account player="+identity.Key().String(), err)
	}
	return nil
}
