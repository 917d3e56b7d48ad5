package httpapi

import "net/http"

// PreviewReport computes a report for the window ending now without
// publishing it.
func (h *Handler) PreviewReport(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.PreviewReport")
	defer span.End()

	name := r.PathValue("name")
	result, formatted, err := h.reports.Preview(ctx, name)
	if err != nil {
		h.logger.WarnContext(ctx, "preview report failed", "report", name, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, reportPreviewToDTO(result, formatted))
}
