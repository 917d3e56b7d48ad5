package jobscheduler

import "time"

type DispatchStatus string

const (
	StatusSent      DispatchStatus = "sent"
	StatusCompleted DispatchStatus = "completed"
	StatusFailed    DispatchStatus = "failed"
	StatusCoalesced DispatchStatus = "coalesced"
)

// Kind groups dispatches that must not overlap.
type Kind string

const (
	KindIngestion Kind = "ingestion"
	KindReport    Kind = "report"
	KindPrune     Kind = "prune"
)

// DispatchEvent records one scheduler dispatch transition.
type DispatchEvent struct {
	DispatchID   string
	JobName      string
	Kind         Kind
	Trigger      string
	Status       DispatchStatus
	Payload      map[string]any
	ErrorMessage string
	OccurredAt   time.Time
	TraceID      string
	SpanID       string
}
