package httpapi

import "net/http"

func registerSystemRoutes(mux *http.ServeMux, handler *Handler, metricsHandler http.Handler) {
	mux.HandleFunc("GET /healthz", handler.Healthz)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}
}

func registerQueryRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("GET /v1/players/{game}/{externalId}/snapshots", handler.ListPlayerSnapshots)
	mux.HandleFunc("GET /v1/players/{game}/{externalId}/latest", handler.GetPlayerLatest)
	mux.HandleFunc("GET /v1/reports/{name}/preview", handler.PreviewReport)
}

func registerInternalJobRoutes(mux *http.ServeMux, handler *Handler, internalJobToken string) {
	mux.Handle("GET /v1/internal/jobs", RequireInternalJobToken(internalJobToken, http.HandlerFunc(handler.ListJobs)))
	mux.Handle("POST /v1/internal/jobs/ingest", RequireInternalJobToken(internalJobToken, http.HandlerFunc(handler.RunIngestJob)))
	mux.Handle("POST /v1/internal/jobs/report", RequireInternalJobToken(internalJobToken, http.HandlerFunc(handler.RunReportJob)))
	mux.Handle("POST /v1/internal/jobs/prune", RequireInternalJobToken(internalJobToken, http.HandlerFunc(handler.RunPruneJob)))
}
