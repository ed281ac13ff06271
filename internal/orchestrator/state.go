package orchestrator

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/mlpipe/internal/domain"
)

// State — состояние run в машине состояний оркестратора.
type State string

const (
	StateIdle              State = "idle"
	StateUploaded          State = "uploaded"
	StateConverting        State = "converting"
	StateCleaning          State = "cleaning"
	StateTraining          State = "training"
	StateStartingInference State = "starting_inference"
	StateReady             State = "ready"
	StateError             State = "error"
)

// transitions — допустимые переходы вперёд. В StateError можно попасть
// из любого активного состояния, поэтому здесь он не перечислен.
var transitions = map[State][]State{
	StateIdle:              {StateUploaded},
	StateUploaded:          {StateConverting, StateCleaning},
	StateConverting:        {StateCleaning},
	StateCleaning:          {StateTraining},
	StateTraining:          {StateStartingInference},
	StateStartingInference: {StateReady},
}

// IsTerminal — Ready и Error финальные.
func (s State) IsTerminal() bool {
	return s == StateReady || s == StateError
}

// RunState — состояние одного run в памяти.
//
// Создаётся в Submit, удаляется из оркестратора после завершения run.
// Run читается API параллельно с выполнением, поэтому доступ к нему
// идёт через RunCopy и Finish.
type RunState struct {
	run *domain.Run

	mu      sync.RWMutex
	state   State
	visited []State
}

// NewRunState создаёт RunState в StateIdle.
func NewRunState(run *domain.Run) *RunState {
	return &RunState{
		run:     run,
		state:   StateIdle,
		visited: []State{StateIdle},
	}
}

// Advance переводит run в следующее состояние.
func (s *RunState) Advance(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, next := range transitions[s.state] {
		if next == to {
			s.state = to
			s.visited = append(s.visited, to)
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, s.state, to)
}

// Fail переводит run в StateError. Из Ready и Error не действует.
func (s *RunState) Fail() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsTerminal() {
		return
	}
	s.state = StateError
	s.visited = append(s.visited, StateError)
}

// Current возвращает текущее состояние.
func (s *RunState) Current() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Visited возвращает пройденные состояния по порядку.
func (s *RunState) Visited() []State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]State(nil), s.visited...)
}

// RunID возвращает ID run.
func (s *RunState) RunID() uuid.UUID {
	return s.run.ID
}

// Filename возвращает имя загруженного файла.
func (s *RunState) Filename() string {
	return s.run.Filename
}

// RunCopy возвращает копию записи run.
func (s *RunState) RunCopy() domain.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.run
}

// Finish фиксирует итог run по финальному статусу pipeline. Всё, что
// не дошло до Ready, считается ошибкой.
func (s *RunState) Finish(status domain.PipelineStatus) domain.Run {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateReady {
		s.run.MarkSucceeded(status)
	} else {
		if s.state != StateError {
			s.state = StateError
			s.visited = append(s.visited, StateError)
		}
		s.run.MarkFailed(status)
	}
	return *s.run
}
