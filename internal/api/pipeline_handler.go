package api

import (
	"errors"
	"net/http"
)

// multipartMemory — часть multipart формы, которая держится в памяти,
// остальное уходит во временные файлы.
const multipartMemory = 32 << 20

// Upload принимает файл датасета и запускает pipeline.
// POST /api/v1/upload (multipart, поле file)
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.settings.MaxUploadSize)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			TooLarge(w, "file exceeds upload size limit")
			return
		}
		BadRequest(w, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		BadRequest(w, "no file part")
		return
	}
	defer file.Close()

	run, err := h.pipeline.Submit(r.Context(), header.Filename, file)
	if HandleError(w, h.logger, err) {
		return
	}

	Success(w, UploadResponse{
		Success:  true,
		Filename: run.Filename,
		RunID:    run.ID,
	})
}

// GetStatus возвращает снимок статуса pipeline.
// GET /api/v1/status
func (h *Handler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	Success(w, h.tracker.Snapshot())
}

// Clear останавливает inference worker и удаляет данные.
// POST /api/v1/clear
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	if HandleError(w, h.logger, h.pipeline.Clear(r.Context())) {
		return
	}
	Success(w, ClearResponse{Success: true})
}
