package httpapi

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/riskibarqy/rank-tracker/internal/domain/report"
	"github.com/riskibarqy/rank-tracker/internal/domain/snapshot"
	"github.com/riskibarqy/rank-tracker/internal/platform/logging"
	"github.com/riskibarqy/rank-tracker/internal/usecase"
)

type SnapshotQuerier interface {
	Latest(ctx context.Context, game, externalID string) (usecase.PlayerLatest, error)
	Range(ctx context.Context, game, externalID string, from, to time.Time) ([]snapshot.Snapshot, error)
}

type ReportPreviewer interface {
	Preview(ctx context.Context, name string) (usecase.ReportRunResult, report.Formatted, error)
}

// JobTrigger dispatches scheduler jobs outside their cadence.
type JobTrigger interface {
	Trigger(ctx context.Context, name string) error
	Jobs() []usecase.JobStatus
}

type Handler struct {
	queries   SnapshotQuerier
	reports   ReportPreviewer
	jobs      JobTrigger
	logger    *logging.Logger
	validator *validator.Validate
}

func NewHandler(
	queries SnapshotQuerier,
	reports ReportPreviewer,
	jobs JobTrigger,
	logger *logging.Logger,
) *Handler {
	if logger == nil {
		logger = logging.Default()
	}

	return &Handler{
		queries:   queries,
		reports:   reports,
		jobs:      jobs,
		logger:    logger,
		validator: validator.New(),
	}
}

func (h *Handler) validateRequest(ctx context.Context, payload any) error {
	ctx, span := startSpan(ctx, "httpapi.validateRequest")
	defer span.End()

	if err := h.validator.StructCtx(ctx, payload); err != nil {
		return fmt.Errorf("%w: %v", usecase.ErrInvalidInput, err)
	}
	return nil
}
