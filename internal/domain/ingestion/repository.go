package ingestion

import (
	"context"
	"time"

	"github.com/riskibarqy/rank-tracker/internal/domain/player"
)

// Repository keeps a short audit trail of ingestion results.
type Repository interface {
	Record(ctx context.Context, results []Result) error
	LatestByPlayer(ctx context.Context, key player.Key) (Result, bool, error)
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}
