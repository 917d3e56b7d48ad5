package ingestion

import (
	"time"

	"github.com/riskibarqy/rank-tracker/internal/domain/player"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

type SkipReason string

const (
	SkipUnchanged SkipReason = "unchanged"
	SkipRace      SkipReason = "race"
)

// ErrorKind classifies a failed pair for reporting and metrics.
type ErrorKind string

const (
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"
	KindRateLimited         ErrorKind = "rate_limited"
	KindIdentityNotFound    ErrorKind = "identity_not_found"
	KindUpstreamSchema      ErrorKind = "upstream_schema"
	KindUnknownGame         ErrorKind = "unknown_game"
	KindStoreUnavailable    ErrorKind = "store_unavailable"
	KindStore               ErrorKind = "store_error"
	KindTimeout             ErrorKind = "timeout"
	KindCanceled            ErrorKind = "canceled"
)

type Outcome struct {
	Status     Status
	SnapshotID string
	Reason     SkipReason
	ErrorKind  ErrorKind
	Detail     string
}

func Success(snapshotID string) Outcome {
	return Outcome{Status: StatusSuccess, SnapshotID: snapshotID}
}

func Skipped(reason SkipReason) Outcome {
	return Outcome{Status: StatusSkipped, Reason: reason}
}

func Failed(kind ErrorKind, detail string) Outcome {
	return Outcome{Status: StatusFailed, ErrorKind: kind, Detail: detail}
}

// Label is the metric label for the outcome, e.g. "skipped_race".
func (o Outcome) Label() string {
	switch o.Status {
	case StatusSkipped:
		return string(o.Status) + "_" + string(o.Reason)
	case StatusFailed:
		return string(o.Status) + "_" + string(o.ErrorKind)
	default:
		return string(o.Status)
	}
}

// Result is the outcome of ingesting one player within a cycle.
type Result struct {
	CycleID     string
	Player      player.Identity
	AttemptedAt time.Time
	Attempts    int
	Outcome     Outcome
}
