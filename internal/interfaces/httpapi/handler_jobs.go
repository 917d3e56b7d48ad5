package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/riskibarqy/rank-tracker/internal/usecase"
)

func (h *Handler) RunIngestJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RunIngestJob")
	defer span.End()

	h.triggerJob(w, r.WithContext(ctx), usecase.JobIngestion)
}

func (h *Handler) RunPruneJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RunPruneJob")
	defer span.End()

	h.triggerJob(w, r.WithContext(ctx), usecase.JobPrune)
}

func (h *Handler) RunReportJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RunReportJob")
	defer span.End()

	var req internalJobReportRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := h.validateRequest(ctx, req); err != nil {
		writeError(ctx, w, err)
		return
	}

	h.triggerJob(w, r.WithContext(ctx), usecase.ReportJobName(req.Name))
}

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListJobs")
	defer span.End()

	if h.jobs == nil {
		writeError(ctx, w, fmt.Errorf("%w: scheduler is not configured", usecase.ErrDependencyUnavailable))
		return
	}
	writeSuccess(ctx, w, http.StatusOK, jobStatusesToDTO(h.jobs.Jobs()))
}

func (h *Handler) triggerJob(w http.ResponseWriter, r *http.Request, name string) {
	ctx := r.Context()
	if h.jobs == nil {
		writeError(ctx, w, fmt.Errorf("%w: scheduler is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	if err := h.jobs.Trigger(ctx, name); err != nil {
		h.logger.WarnContext(ctx, "trigger job failed", "job", name, "error", err)
		writeError(ctx, w, err)
		return
	}

	h.logger.InfoContext(ctx, "job dispatched by internal trigger", "job", name)
	writeSuccess(ctx, w, http.StatusAccepted, jobDispatchDTO{Job: name, Status: "dispatched"})
}

func decodeJSONBody(r *http.Request, dst any) error {
	decoder := jsoniter.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", usecase.ErrInvalidInput)
		}
		return fmt.Errorf("%w: invalid JSON payload: %v", usecase.ErrInvalidInput, err)
	}
	return nil
}
