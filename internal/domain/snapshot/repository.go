package snapshot

import (
	"context"
	"iter"
	"time"

	"github.com/riskibarqy/rank-tracker/internal/domain/player"
)

// Repository is append-only storage of snapshots per player.
type Repository interface {
	Append(ctx context.Context, s Snapshot) (string, error)
	Latest(ctx context.Context, key player.Key) (Snapshot, bool, error)
	LatestBefore(ctx context.Context, key player.Key, before time.Time) (Snapshot, bool, error)
	// Range yields snapshots in [from, to] by CapturedAt ascending. Every
	// iteration reads the store again.
	Range(ctx context.Context, key player.Key, from, to time.Time) iter.Seq2[Snapshot, error]
	// Prune deletes snapshots captured before olderThan, keeping each
	// player's latest snapshot.
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}
