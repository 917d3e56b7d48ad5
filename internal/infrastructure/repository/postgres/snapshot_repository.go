package postgres

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/riskibarqy/rank-tracker/internal/domain/player"
	"github.com/riskibarqy/rank-tracker/internal/domain/snapshot"
	"github.com/riskibarqy/rank-tracker/internal/platform/id"
	qb "github.com/riskibarqy/rank-tracker/internal/platform/querybuilder"
)

const (
	snapshotTable         = "player_snapshots"
	snapshotRangePageSize = 200
	uniqueViolationCode   = "23505"
)

type SnapshotRepository struct {
	db       *sqlx.DB
	ids      id.Generator
	pageSize int
}

func NewSnapshotRepository(db *sqlx.DB, ids id.Generator) *SnapshotRepository {
	if ids == nil {
		ids = id.NewTimeOrderedGenerator()
	}
	return &SnapshotRepository{db: db, ids: ids, pageSize: snapshotRangePageSize}
}

// Append serializes writers of one player with a transaction scoped advisory
// lock, then rejects anything not newer than the stored latest.
func (r *SnapshotRepository) Append(ctx context.Context, item snapshot.Snapshot) (string, error) {
	if err := item.Player.Validate(); err != nil {
		return "", fmt.Errorf("append snapshot: %w", err)
	}
	item.CapturedAt = snapshot.NormalizeTime(item.CapturedAt)
	if item.ID == "" {
		item.ID = id.MustNewID(r.ids)
	}
	key := item.Player.Key()

	model, err := newSnapshotInsertModel(item)
	if err != nil {
		return "", err
	}
	insertQuery, insertArgs, err := qb.InsertModel(snapshotTable, model, "")
	if err != nil {
		return "", fmt.Errorf("build insert snapshot query: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", storeError("begin append snapshot tx", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key.String()); err != nil {
		return "", storeError("lock snapshot series player="+key.String(), err)
	}

	latest, ok, err := latestCapturedAt(ctx, tx, key)
	if err != nil {
		return "", storeError("select latest capture player="+key.String(), err)
	}
	if ok && !item.CapturedAt.After(latest) {
		return "", fmt.Errorf("%w: player=%s captured_at=%s latest=%s",
			snapshot.ErrOutOfOrder, key, item.CapturedAt.Format(time.RFC3339Nano), latest.Format(time.RFC3339Nano))
	}

	if _, err := tx.ExecContext(ctx, insertQuery, insertArgs...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolationCode {
			return "", fmt.Errorf("%w: player=%s captured_at=%s", snapshot.ErrOutOfOrder, key, item.CapturedAt.Format(time.RFC3339Nano))
		}
		return "", storeError("insert snapshot player="+key.String(), err)
	}
	if err := tx.Commit(); err != nil {
		return "", storeError("commit append snapshot", err)
	}
	return item.ID, nil
}

func latestCapturedAt(ctx context.Context, tx *sqlx.Tx, key player.Key) (time.Time, bool, error) {
	query, args, err := qb.Select("captured_at").From(snapshotTable).
		Where(
			qb.Eq("game", string(key.Game)),
			qb.Eq("external_id", key.ExternalID),
		).
		OrderBy("captured_at DESC").
		Limit(1).
		ToSQL()
	if err != nil {
		return time.Time{}, false, err
	}
	var capturedAt time.Time
	if err := tx.GetContext(ctx, &capturedAt, query, args...); err != nil {
		if isNotFound(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return capturedAt.UTC(), true, nil
}

func (r *SnapshotRepository) Latest(ctx context.Context, key player.Key) (snapshot.Snapshot, bool, error) {
	query, args, err := qb.Select(snapshotSelectColumns...).From(snapshotTable).
		Where(
			qb.Eq("game", string(key.Game)),
			qb.Eq("external_id", key.ExternalID),
		).
		OrderBy("captured_at DESC").
		Limit(1).
		ToSQL()
	if err != nil {
		return snapshot.Snapshot{}, false, fmt.Errorf("build select latest snapshot query: %w", err)
	}
	return r.getOne(ctx, "select latest snapshot player="+key.String(), query, args)
}

func (r *SnapshotRepository) LatestBefore(ctx context.Context, key player.Key, before time.Time) (snapshot.Snapshot, bool, error) {
	query, args, err := qb.Select(snapshotSelectColumns...).From(snapshotTable).
		Where(
			qb.Eq("game", string(key.Game)),
			qb.Eq("external_id", key.ExternalID),
			qb.Lt("captured_at", before.UTC()),
		).
		OrderBy("captured_at DESC").
		Limit(1).
		ToSQL()
	if err != nil {
		return snapshot.Snapshot{}, false, fmt.Errorf("build select snapshot before query: %w", err)
	}
	return r.getOne(ctx, "select snapshot before player="+key.String(), query, args)
}

func (r *SnapshotRepository) getOne(ctx context.Context, op, query string, args []any) (snapshot.Snapshot, bool, error) {
	var row snapshotTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return snapshot.Snapshot{}, false, nil
		}
		return snapshot.Snapshot{}, false, storeError(op, err)
	}
	item, err := row.toDomain()
	if err != nil {
		return snapshot.Snapshot{}, false, err
	}
	return item, true, nil
}

// Range pages by captured_at so a long window never loads in one query.
func (r *SnapshotRepository) Range(ctx context.Context, key player.Key, from, to time.Time) iter.Seq2[snapshot.Snapshot, error] {
	return func(yield func(snapshot.Snapshot, error) bool) {
		lower := qb.Gte("captured_at", from.UTC())
		for {
			query, args, err := rangePageQuery(key, lower, to, r.pageSize)
			if err != nil {
				yield(snapshot.Snapshot{}, fmt.Errorf("build range snapshots query: %w", err))
				return
			}

			var rows []snapshotTableModel
			if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
				yield(snapshot.Snapshot{}, storeError("range snapshots player="+key.String(), err))
				return
			}
			for _, row := range rows {
				item, err := row.toDomain()
				if !yield(item, err) || err != nil {
					return
				}
			}
			if len(rows) < r.pageSize {
				return
			}
			lower = qb.Gt("captured_at", rows[len(rows)-1].CapturedAt)
		}
	}
}

func rangePageQuery(key player.Key, lower qb.Condition, to time.Time, limit int) (string, []any, error) {
	return qb.Select(snapshotSelectColumns...).From(snapshotTable).
		Where(
			qb.Eq("game", string(key.Game)),
			qb.Eq("external_id", key.ExternalID),
			lower,
			qb.Lte("captured_at", to.UTC()),
		).
		OrderBy("captured_at ASC").
		Limit(limit).
		ToSQL()
}

func (r *SnapshotRepository) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	query, args, err := pruneSnapshotsQuery(olderThan)
	if err != nil {
		return 0, fmt.Errorf("build prune snapshots query: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, storeError("prune snapshots", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune snapshots rows affected: %w", err)
	}
	return affected, nil
}

func pruneSnapshotsQuery(olderThan time.Time) (string, []any, error) {
	return qb.DeleteFrom(snapshotTable + " AS s").
		Where(
			qb.Lt("s.captured_at", olderThan.UTC()),
			qb.Expr(`s.captured_at < (
    SELECT MAX(latest.captured_at) FROM player_snapshots AS latest
    WHERE latest.game = s.game AND latest.external_id = s.external_id
)`),
		).
		ToSQL()
}
