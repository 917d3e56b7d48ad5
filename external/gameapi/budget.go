package gameapi

import (
	"sync"
	"time"

	"github.com/riskibarqy/rank-tracker/internal/usecase"
	"golang.org/x/time/rate"
)

// Budget is a provider's local token bucket plus the penalty window set by
// upstream Retry-After hints.
type Budget struct {
	mu           sync.Mutex
	limiter      *rate.Limiter
	penaltyUntil time.Time
	now          func() time.Time
}

// NewBudget allows perMinute calls with the given burst. A non-positive rate
// disables local throttling.
func NewBudget(perMinute, burst int) *Budget {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / 60.0)
	}
	if burst < 1 {
		burst = 1
	}
	return &Budget{
		limiter: rate.NewLimiter(limit, burst),
		now:     time.Now,
	}
}

// NextAllowedAt reports the earliest instant a call would be admitted.
func (b *Budget) NextAllowedAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	next := now
	if tokens := b.limiter.TokensAt(now); tokens < 1 && b.limiter.Limit() != rate.Inf {
		missing := 1 - tokens
		next = now.Add(time.Duration(missing / float64(b.limiter.Limit()) * float64(time.Second)))
	}
	if b.penaltyUntil.After(next) {
		next = b.penaltyUntil
	}
	return next
}

// Take consumes one unit or fails with a *usecase.RateLimitedError carrying
// the wait until the next unit.
func (b *Budget) Take() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if wait := b.penaltyUntil.Sub(now); wait > 0 {
		return &usecase.RateLimitedError{RetryAfter: wait}
	}
	reservation := b.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return &usecase.RateLimitedError{}
	}
	if wait := reservation.DelayFrom(now); wait > 0 {
		reservation.CancelAt(now)
		return &usecase.RateLimitedError{RetryAfter: wait}
	}
	return nil
}

// Penalize blocks the budget for d, typically from an upstream Retry-After.
func (b *Budget) Penalize(d time.Duration) {
	if d <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	until := b.now().Add(d)
	if until.After(b.penaltyUntil) {
		b.penaltyUntil = until
	}
}
