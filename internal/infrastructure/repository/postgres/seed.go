package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/rank-tracker/internal/domain/player"
)

// BootstrapTrackedAccounts upserts the configured identities when the table
// is empty, so a fresh database starts with the same roster as memory mode.
func BootstrapTrackedAccounts(ctx context.Context, db *sqlx.DB, identities []player.Identity) (int, error) {
	if len(identities) == 0 {
		return 0, nil
	}

	var count int
	if err := db.GetContext(ctx, &count, `SELECT COUNT(1) FROM tracked_accounts`); err != nil {
		return 0, storeError("count tracked accounts for bootstrap", err)
	}
	if count > 0 {
		return 0, nil
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin bootstrap tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, identity := range identities {
		if err := upsertTrackedAccount(ctx, tx, identity); err != nil {
			return 0, fmt.Errorf("bootstrap tracked account %s: %w", identity.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit bootstrap tx: %w", err)
	}
	return len(identities), nil
}
