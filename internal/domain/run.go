package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — один запуск pipeline.
//
// Run создаётся при каждом trigger (upload через API/CLI или сообщение
// из очереди) и фиксирует итог для истории запусков. Живой статус фаз
// хранит tracker, в Run попадает только финальный снимок.
type Run struct {
	// ID — уникальный идентификатор run (он же run token).
	ID uuid.UUID `json:"id"`

	// Filename — имя загруженного файла до канонизации.
	Filename string `json:"filename"`

	// Status — итоговый статус.
	Status RunStatus `json:"status"`

	// FailedPhase — фаза, на которой run остановился. Пусто при успехе.
	FailedPhase Phase `json:"failed_phase,omitempty"`

	// Error — сообщение об ошибке, если run завершился с FAILED.
	Error string `json:"error,omitempty"`

	// Phases — финальный снимок фаз.
	Phases map[Phase]PhaseState `json:"phases,omitempty"`

	// StartedAt — время trigger.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt — время завершения. Nil, если run ещё выполняется.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewRun создаёт run в статусе RUNNING.
func NewRun(filename string) *Run {
	return &Run{
		ID:        uuid.New(),
		Filename:  filename,
		Status:    RunStatusRunning,
		StartedAt: time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// IsFinished возвращает true, если run завершён.
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// MarkSucceeded переводит run в статус SUCCEEDED.
func (r *Run) MarkSucceeded(status PipelineStatus) {
	now := time.Now()
	r.Status = RunStatusSucceeded
	r.FinishedAt = &now
	r.Phases = status.Clone().Phases
}

// MarkFailed переводит run в статус FAILED.
func (r *Run) MarkFailed(status PipelineStatus) {
	now := time.Now()
	r.Status = RunStatusFailed
	r.FinishedAt = &now
	r.Phases = status.Clone().Phases
	if p, ok := status.FailedPhase(); ok {
		r.FailedPhase = p
		r.Error = status.Phases[p].Message
	}
}
