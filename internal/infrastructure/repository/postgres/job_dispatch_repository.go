package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/rank-tracker/internal/domain/jobscheduler"
	qb "github.com/riskibarqy/rank-tracker/internal/platform/querybuilder"
)

const jobDispatchUpsertSuffix = `ON CONFLICT (dispatch_id)
DO UPDATE SET
    job_name = EXCLUDED.job_name,
    kind = EXCLUDED.kind,
    trigger = EXCLUDED.trigger,
    payload = EXCLUDED.payload,
    status = EXCLUDED.status,
    sent_at = COALESCE(job_dispatch_events.sent_at, EXCLUDED.sent_at),
    completed_at = CASE
        WHEN EXCLUDED.status = 'completed' THEN EXCLUDED.completed_at
        ELSE job_dispatch_events.completed_at
    END,
    failed_at = CASE
        WHEN EXCLUDED.status = 'failed' THEN EXCLUDED.failed_at
        WHEN EXCLUDED.status = 'completed' THEN NULL
        ELSE job_dispatch_events.failed_at
    END,
    coalesced_at = COALESCE(EXCLUDED.coalesced_at, job_dispatch_events.coalesced_at),
    last_error = CASE
        WHEN EXCLUDED.status IN ('failed', 'coalesced') THEN EXCLUDED.last_error
        ELSE NULL
    END,
    sent_trace_id = COALESCE(job_dispatch_events.sent_trace_id, EXCLUDED.sent_trace_id),
    sent_span_id = COALESCE(job_dispatch_events.sent_span_id, EXCLUDED.sent_span_id),
    completed_trace_id = CASE
        WHEN EXCLUDED.status = 'completed' THEN EXCLUDED.completed_trace_id
        ELSE job_dispatch_events.completed_trace_id
    END,
    completed_span_id = CASE
        WHEN EXCLUDED.status = 'completed' THEN EXCLUDED.completed_span_id
        ELSE job_dispatch_events.completed_span_id
    END,
    failed_trace_id = CASE
        WHEN EXCLUDED.status = 'failed' THEN EXCLUDED.failed_trace_id
        ELSE job_dispatch_events.failed_trace_id
    END,
    failed_span_id = CASE
        WHEN EXCLUDED.status = 'failed' THEN EXCLUDED.failed_span_id
        ELSE job_dispatch_events.failed_span_id
    END,
    updated_at = EXCLUDED.updated_at`

// JobDispatchRepository keeps one row per dispatch, updated as the dispatch
// moves from sent to completed or failed.
type JobDispatchRepository struct {
	db *sqlx.DB
}

func NewJobDispatchRepository(db *sqlx.DB) *JobDispatchRepository {
	return &JobDispatchRepository{db: db}
}

func (r *JobDispatchRepository) UpsertEvent(ctx context.Context, event jobscheduler.DispatchEvent) error {
	model, err := newJobDispatchInsertModel(event)
	if err != nil {
		return err
	}

	query, args, err := qb.InsertModel("job_dispatch_events", model, jobDispatchUpsertSuffix)
	if err != nil {
		return fmt.Errorf("build upsert job dispatch query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return storeError(fmt.Sprintf("upsert job dispatch dispatch_id=%s status=%s", model.DispatchID, event.Status), err)
	}
	return nil
}

func newJobDispatchInsertModel(event jobscheduler.DispatchEvent) (jobDispatchInsertModel, error) {
	dispatchID := strings.TrimSpace(event.DispatchID)
	if dispatchID == "" {
		return jobDispatchInsertModel{}, fmt.Errorf("dispatch id is required")
	}
	jobName := strings.TrimSpace(event.JobName)
	if jobName == "" {
		jobName = "unknown"
	}
	trigger := strings.TrimSpace(event.Trigger)
	if trigger == "" {
		trigger = "schedule"
	}

	occurredAt := event.OccurredAt.UTC()
	if event.OccurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	payloadJSON, err := marshalJSON(event.Payload)
	if err != nil {
		return jobDispatchInsertModel{}, fmt.Errorf("marshal job dispatch payload: %w", err)
	}

	model := jobDispatchInsertModel{
		DispatchID: dispatchID,
		JobName:    jobName,
		Kind:       string(event.Kind),
		Trigger:    trigger,
		Payload:    payloadJSON,
		Status:     string(event.Status),
		LastError:  optionalString(event.ErrorMessage),
		UpdatedAt:  occurredAt,
	}

	switch event.Status {
	case jobscheduler.StatusSent:
		model.SentAt = &occurredAt
		model.SentTraceID = optionalString(event.TraceID)
		model.SentSpanID = optionalString(event.SpanID)
		model.LastError = nil
	case jobscheduler.StatusCompleted:
		model.CompletedAt = &occurredAt
		model.CompletedTraceID = optionalString(event.TraceID)
		model.CompletedSpanID = optionalString(event.SpanID)
		model.LastError = nil
	case jobscheduler.StatusFailed:
		model.FailedAt = &occurredAt
		model.FailedTraceID = optionalString(event.TraceID)
		model.FailedSpanID = optionalString(event.SpanID)
	case jobscheduler.StatusCoalesced:
		model.CoalescedAt = &occurredAt
	}
	return model, nil
}
