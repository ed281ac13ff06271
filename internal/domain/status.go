package domain

// PhaseStatus — статус отдельной фазы pipeline.
//
// Жизненный цикл:
//
//	pending → running → completed
//	                  ↘ error
//
// Допускается прямой переход pending → completed / pending → error
// (например, upload или пропущенная conversion), но не обратный.
type PhaseStatus string

const (
	// PhaseStatusPending — фаза ещё не начиналась.
	PhaseStatusPending PhaseStatus = "pending"

	// PhaseStatusRunning — фаза выполняется.
	PhaseStatusRunning PhaseStatus = "running"

	// PhaseStatusCompleted — фаза успешно завершена.
	PhaseStatusCompleted PhaseStatus = "completed"

	// PhaseStatusError — фаза завершилась ошибкой.
	PhaseStatusError PhaseStatus = "error"
)

// IsTerminal возвращает true, если статус финальный.
func (s PhaseStatus) IsTerminal() bool {
	switch s {
	case PhaseStatusCompleted, PhaseStatusError:
		return true
	default:
		return false
	}
}

// rank — порядок статуса в жизненном цикле.
func (s PhaseStatus) rank() int {
	switch s {
	case PhaseStatusPending:
		return 0
	case PhaseStatusRunning:
		return 1
	case PhaseStatusCompleted, PhaseStatusError:
		return 2
	default:
		return -1
	}
}

// Valid проверяет, что статус известен.
func (s PhaseStatus) Valid() bool {
	return s.rank() >= 0
}

// CanTransition проверяет допустимость перехода from → to.
// Переход только вперёд, терминальные статусы не меняются.
func CanTransition(from, to PhaseStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from.IsTerminal() {
		return false
	}
	return to.rank() > from.rank()
}

// RunStatus — итоговый статус запуска pipeline (для истории запусков).
type RunStatus string

const (
	// RunStatusRunning — запуск выполняется.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusSucceeded — все фазы завершены, модель готова.
	RunStatusSucceeded RunStatus = "SUCCEEDED"

	// RunStatusFailed — одна из фаз завершилась ошибкой.
	RunStatusFailed RunStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed
}

// LogLevel — уровень записи в журнале pipeline.
type LogLevel string

const (
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)
