package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/shaiso/mlpipe/internal/domain"
)

// maxPredictBody — лимит тела predict-запроса.
const maxPredictBody = 1 << 20

// Predict пересылает JSON inference worker'у и возвращает его ответ
// без изменений (статус и тело).
// POST /api/v1/predict
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPredictBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			TooLarge(w, "request body too large")
			return
		}
		BadRequest(w, "failed to read request body")
		return
	}
	if !json.Valid(payload) {
		BadRequest(w, "invalid JSON body")
		return
	}

	resp, err := h.predictor.Predict(r.Context(), payload)
	if err != nil {
		if errors.Is(err, domain.ErrServiceUnavailable) {
			h.tracker.Logf(domain.LogLevelError, "inference call failed: %v", err)
			ServiceUnavailable(w, "inference service unavailable")
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}
