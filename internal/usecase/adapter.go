package usecase

import (
	"context"
	"time"

	"github.com/riskibarqy/rank-tracker/internal/domain/game"
	"github.com/riskibarqy/rank-tracker/internal/domain/player"
	"github.com/riskibarqy/rank-tracker/internal/domain/snapshot"
)

// RateBudget exposes an adapter's throttle hint.
type RateBudget interface {
	NextAllowedAt() time.Time
}

// GameAdapter fetches a normalized snapshot from one game's upstream API.
//
// FetchSnapshot fails with ErrUpstreamUnavailable, *RateLimitedError,
// ErrIdentityNotFound or ErrUpstreamSchema. Each call consumes one unit of
// the adapter's budget.
type GameAdapter interface {
	Game() game.ID
	FetchSnapshot(ctx context.Context, identity player.Identity) (snapshot.Snapshot, error)
	Budget() RateBudget
}
