package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shaiso/mlpipe/internal/dataset"
	"github.com/shaiso/mlpipe/internal/domain"
	"github.com/shaiso/mlpipe/internal/orchestrator"
)

// ErrorCode — код ошибки API.
type ErrorCode string

const (
	ErrCodeBadRequest         ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeConflict           ErrorCode = "CONFLICT"
	ErrCodeTooLarge           ErrorCode = "PAYLOAD_TOO_LARGE"
	ErrCodeInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// ErrorResponse — структура ответа с ошибкой.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail — детали ошибки.
type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// DataResponse — структура успешного ответа.
type DataResponse struct {
	Data any `json:"data"`
}

// ListResponse — структура ответа со списком.
type ListResponse struct {
	Data  any `json:"data"`
	Total int `json:"total,omitempty"`
}

// JSON отправляет JSON ответ. Ошибку записи клиенту уже не сообщить,
// поэтому она только логируется.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

// Success отправляет успешный ответ с данными.
func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, DataResponse{Data: data})
}

// NoContent отправляет ответ без тела (204).
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// List отправляет ответ со списком.
func List(w http.ResponseWriter, data any, total int) {
	JSON(w, http.StatusOK, ListResponse{Data: data, Total: total})
}

// Error отправляет ответ с ошибкой.
func Error(w http.ResponseWriter, status int, code ErrorCode, message string) {
	JSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// BadRequest отправляет ошибку 400.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// NotFound отправляет ошибку 404.
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// TooLarge отправляет ошибку 413.
func TooLarge(w http.ResponseWriter, message string) {
	Error(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, message)
}

// InternalError отправляет ошибку 500.
func InternalError(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
}

// ServiceUnavailable отправляет ошибку 503.
func ServiceUnavailable(w http.ResponseWriter, message string) {
	Error(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, message)
}

// errorMapping сопоставляет sentinel-ошибки с HTTP статусом и кодом.
// Порядок важен: первая совпавшая запись выигрывает.
var errorMapping = []struct {
	target error
	status int
	code   ErrorCode
}{
	{domain.ErrValidation, http.StatusBadRequest, ErrCodeBadRequest},
	{orchestrator.ErrRunAlreadyActive, http.StatusConflict, ErrCodeConflict},
	{orchestrator.ErrRunNotFound, http.StatusNotFound, ErrCodeNotFound},
	{dataset.ErrNoDataset, http.StatusNotFound, ErrCodeNotFound},
	{domain.ErrServiceUnavailable, http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
	{orchestrator.ErrOrchestratorStopped, http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
}

// HandleError пишет ответ для ошибки pipeline. Неизвестные ошибки
// логируются и скрываются за 500. Возвращает false, если err == nil.
func HandleError(w http.ResponseWriter, logger *slog.Logger, err error) bool {
	if err == nil {
		return false
	}

	for _, m := range errorMapping {
		if errors.Is(err, m.target) {
			Error(w, m.status, m.code, err.Error())
			return true
		}
	}
	InternalError(w, logger, err)
	return true
}
