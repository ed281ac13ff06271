package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Категории ошибок pipeline. Типизированные ошибки ниже оборачивают их,
// поэтому работают и errors.Is, и errors.As.
var (
	// ErrValidation — некорректный upload (формат, отсутствие файла).
	ErrValidation = errors.New("validation error")

	// ErrFilesystemContract — stage отработал, но ожидаемого артефакта нет.
	ErrFilesystemContract = errors.New("filesystem contract violated")

	// ErrStageTimeout — stage превысил таймаут.
	ErrStageTimeout = errors.New("stage timeout")

	// ErrStageExecution — stage завершился с ненулевым кодом.
	ErrStageExecution = errors.New("stage execution failed")

	// ErrServiceUnavailable — inference worker недоступен.
	ErrServiceUnavailable = errors.New("inference service unavailable")

	// ErrOrchestrationFault — непредвиденная ошибка во время оркестрации.
	ErrOrchestrationFault = errors.New("orchestration fault")
)

// ValidationError — ошибка валидации входных данных.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// FilesystemContractError — артефакт stage отсутствует.
type FilesystemContractError struct {
	Stage string
	Path  string
}

func (e *FilesystemContractError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: expected output missing", e.Stage)
	}
	return fmt.Sprintf("%s: expected output %s missing", e.Stage, e.Path)
}

func (e *FilesystemContractError) Unwrap() error { return ErrFilesystemContract }

// StageTimeoutError — stage остановлен по таймауту.
type StageTimeoutError struct {
	Stage string
}

func (e *StageTimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out", e.Stage)
}

func (e *StageTimeoutError) Unwrap() error { return ErrStageTimeout }

// StageExecutionError — ненулевой код завершения, содержит stderr.
type StageExecutionError struct {
	Stage    string
	ExitCode int
	Stderr   string
}

func (e *StageExecutionError) Error() string {
	msg := fmt.Sprintf("%s: exit code %d", e.Stage, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *StageExecutionError) Unwrap() error { return ErrStageExecution }

// ServiceUnavailableError — inference worker недоступен.
type ServiceUnavailableError struct {
	URL string
	Err error
}

func (e *ServiceUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("inference service unavailable at %s", e.URL)
	}
	return fmt.Sprintf("inference service unavailable at %s: %v", e.URL, e.Err)
}

func (e *ServiceUnavailableError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrServiceUnavailable}
	}
	return []error{ErrServiceUnavailable, e.Err}
}

// OrchestrationFault — непредвиденная ошибка (включая panic) в ходе run.
type OrchestrationFault struct {
	Phase Phase
	Cause any
}

func (e *OrchestrationFault) Error() string {
	return fmt.Sprintf("orchestration fault in %s: %v", e.Phase, e.Cause)
}

func (e *OrchestrationFault) Unwrap() []error {
	if err, ok := e.Cause.(error); ok {
		return []error{ErrOrchestrationFault, err}
	}
	return []error{ErrOrchestrationFault}
}
