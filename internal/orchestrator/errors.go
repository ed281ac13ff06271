package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrRunAlreadyActive — run уже выполняется (или идёт очистка).
	ErrRunAlreadyActive = errors.New("pipeline run already active")

	// ErrRunNotFound — run не найден в истории.
	ErrRunNotFound = errors.New("run not found")

	// ErrOrchestratorStopped — оркестратор остановлен.
	ErrOrchestratorStopped = errors.New("orchestrator stopped")

	// ErrInvalidStateTransition — недопустимый переход RunState.
	ErrInvalidStateTransition = errors.New("invalid run state transition")

	// errHalted — stage упал, причина уже записана в tracker.
	errHalted = errors.New("pipeline halted")
)
