package api

import (
	"net/http"

	"github.com/shaiso/mlpipe/internal/dataset"
)

// DatasetPreview возвращает сводку по датасету: cleaned, если есть,
// иначе сырой канонический CSV.
// GET /api/v1/dataset/preview
func (h *Handler) DatasetPreview(w http.ResponseWriter, _ *http.Request) {
	preview, err := dataset.LoadPreview(h.settings)
	if HandleError(w, h.logger, err) {
		return
	}
	Success(w, preview)
}

// ModelInfo возвращает наличие артефактов обучения.
// GET /api/v1/model/info
func (h *Handler) ModelInfo(w http.ResponseWriter, _ *http.Request) {
	info, err := dataset.LoadModelInfo(h.settings, h.logger)
	if HandleError(w, h.logger, err) {
		return
	}
	Success(w, info)
}
