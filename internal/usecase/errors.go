package usecase

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrNotFound              = errors.New("resource not found")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrCycleInFlight         = errors.New("run already in flight")
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrRateLimited         = errors.New("rate limited")
	ErrIdentityNotFound    = errors.New("identity not found")
	ErrUpstreamSchema      = errors.New("upstream schema error")
	ErrUnknownGame         = errors.New("unknown game")
	ErrDeliveryFailed      = errors.New("delivery failed")
)

// RateLimitedError carries the upstream retry hint. It matches ErrRateLimited.
type RateLimitedError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *RateLimitedError) Error() string {
	msg := "rate limited"
	if e.RetryAfter > 0 {
		msg = fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

func (e *RateLimitedError) Unwrap() error {
	return e.Cause
}

// RetryAfterHint extracts the retry hint of a rate limited error.
func RetryAfterHint(err error) time.Duration {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}
