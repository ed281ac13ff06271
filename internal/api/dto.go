package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/mlpipe/internal/domain"
)

// UploadResponse — ответ на upload.
type UploadResponse struct {
	Success  bool      `json:"success"`
	Filename string    `json:"filename"`
	RunID    uuid.UUID `json:"run_id"`
}

// ClearResponse — ответ на clear.
type ClearResponse struct {
	Success bool `json:"success"`
}

// StatusMessage — сообщение WebSocket канала статуса.
type StatusMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// RunResponse — ответ с run.
type RunResponse struct {
	ID          uuid.UUID                          `json:"id"`
	Filename    string                             `json:"filename"`
	Status      domain.RunStatus                   `json:"status"`
	FailedPhase domain.Phase                       `json:"failed_phase,omitempty"`
	Error       string                             `json:"error,omitempty"`
	Phases      map[domain.Phase]domain.PhaseState `json:"phases,omitempty"`
	StartedAt   time.Time                          `json:"started_at"`
	FinishedAt  *time.Time                         `json:"finished_at,omitempty"`
	DurationMs  int64                              `json:"duration_ms,omitempty"`
}

// RunFromDomain конвертирует domain.Run в RunResponse.
func RunFromDomain(r domain.Run) RunResponse {
	return RunResponse{
		ID:          r.ID,
		Filename:    r.Filename,
		Status:      r.Status,
		FailedPhase: r.FailedPhase,
		Error:       r.Error,
		Phases:      r.Phases,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		DurationMs:  r.Duration().Milliseconds(),
	}
}
