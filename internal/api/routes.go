package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
		CORS(),
	)

	// Pipeline
	mux.Handle("POST /api/v1/upload", chain(http.HandlerFunc(h.Upload)))
	mux.Handle("GET /api/v1/status", chain(http.HandlerFunc(h.GetStatus)))
	mux.Handle("GET /api/v1/status/ws", chain(http.HandlerFunc(h.StatusWS)))
	mux.Handle("POST /api/v1/clear", chain(http.HandlerFunc(h.Clear)))

	// Artifacts
	mux.Handle("GET /api/v1/dataset/preview", chain(http.HandlerFunc(h.DatasetPreview)))
	mux.Handle("GET /api/v1/model/info", chain(http.HandlerFunc(h.ModelInfo)))

	// Inference
	mux.Handle("POST /api/v1/predict", chain(http.HandlerFunc(h.Predict)))

	// Runs
	mux.Handle("GET /api/v1/runs", chain(http.HandlerFunc(h.ListRuns)))
	mux.Handle("GET /api/v1/runs/active", chain(http.HandlerFunc(h.GetActiveRun)))
	mux.Handle("GET /api/v1/runs/{id}", chain(http.HandlerFunc(h.GetRun)))

	// CORS preflight
	mux.Handle("OPTIONS /api/v1/", chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		NoContent(w)
	})))
}
