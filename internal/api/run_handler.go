package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
)

const (
	defaultRunsLimit = 50
	maxRunsLimit     = 500
)

// ListRuns возвращает последние запуски.
// GET /api/v1/runs?limit=...
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			BadRequest(w, "invalid limit")
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := h.pipeline.Runs(r.Context(), limit)
	if HandleError(w, h.logger, err) {
		return
	}

	result := make([]RunResponse, len(runs))
	for i, run := range runs {
		result[i] = RunFromDomain(run)
	}

	List(w, result, len(result))
}

// GetRun возвращает run по ID.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	run, err := h.pipeline.Run(r.Context(), id)
	if HandleError(w, h.logger, err) {
		return
	}

	Success(w, RunFromDomain(*run))
}

// GetActiveRun возвращает выполняющийся run.
// GET /api/v1/runs/active
func (h *Handler) GetActiveRun(w http.ResponseWriter, _ *http.Request) {
	run, ok := h.pipeline.Active()
	if !ok {
		NotFound(w, "no active run")
		return
	}
	Success(w, RunFromDomain(*run))
}
