package orchestrator

import (
	"errors"
	"testing"

	"github.com/shaiso/mlpipe/internal/domain"
)

func TestRunState_ExcelPath(t *testing.T) {
	s := NewRunState(domain.NewRun("data.xlsx"))

	for _, to := range []State{StateUploaded, StateConverting, StateCleaning, StateTraining, StateStartingInference, StateReady} {
		if err := s.Advance(to); err != nil {
			t.Fatalf("Advance(%s): %v", to, err)
		}
	}
	if s.Current() != StateReady {
		t.Errorf("Current() = %s, want %s", s.Current(), StateReady)
	}

	run := s.Finish(domain.NewPipelineStatus())
	if run.Status != domain.RunStatusSucceeded {
		t.Errorf("Status = %s, want %s", run.Status, domain.RunStatusSucceeded)
	}
	if run.FinishedAt == nil {
		t.Error("FinishedAt not set")
	}
}

func TestRunState_CSVSkipsConverting(t *testing.T) {
	s := NewRunState(domain.NewRun("data.csv"))

	if err := s.Advance(StateUploaded); err != nil {
		t.Fatal(err)
	}
	if err := s.Advance(StateCleaning); err != nil {
		t.Fatalf("Uploaded -> Cleaning: %v", err)
	}
	want := []State{StateIdle, StateUploaded, StateCleaning}
	got := s.Visited()
	if len(got) != len(want) {
		t.Fatalf("Visited() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Visited()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestRunState_InvalidTransition(t *testing.T) {
	tests := []struct {
		name string
		from []State
		to   State
	}{
		{"skip upload", nil, StateCleaning},
		{"backwards", []State{StateUploaded, StateCleaning}, StateConverting},
		{"after ready", []State{StateUploaded, StateCleaning, StateTraining, StateStartingInference, StateReady}, StateTraining},
		{"repeat", []State{StateUploaded}, StateUploaded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewRunState(domain.NewRun("data.csv"))
			for _, st := range tt.from {
				if err := s.Advance(st); err != nil {
					t.Fatalf("setup Advance(%s): %v", st, err)
				}
			}
			err := s.Advance(tt.to)
			if !errors.Is(err, ErrInvalidStateTransition) {
				t.Errorf("Advance(%s) error = %v, want ErrInvalidStateTransition", tt.to, err)
			}
		})
	}
}

func TestRunState_Fail(t *testing.T) {
	s := NewRunState(domain.NewRun("data.csv"))
	_ = s.Advance(StateUploaded)
	_ = s.Advance(StateCleaning)

	s.Fail()
	if s.Current() != StateError {
		t.Fatalf("Current() = %s, want %s", s.Current(), StateError)
	}
	s.Fail()
	if n := len(s.Visited()); n != 4 {
		t.Errorf("len(Visited()) = %d, want 4", n)
	}
	if err := s.Advance(StateTraining); err == nil {
		t.Error("Advance after Fail should return error")
	}

	status := domain.NewPipelineStatus()
	status.Phases[domain.PhaseCleaning] = domain.PhaseState{Status: domain.PhaseStatusError, Message: "cleaning: exit code 1"}

	run := s.Finish(status)
	if run.Status != domain.RunStatusFailed {
		t.Errorf("Status = %s, want %s", run.Status, domain.RunStatusFailed)
	}
	if run.FailedPhase != domain.PhaseCleaning {
		t.Errorf("FailedPhase = %s, want %s", run.FailedPhase, domain.PhaseCleaning)
	}
	if run.Error != "cleaning: exit code 1" {
		t.Errorf("Error = %q", run.Error)
	}
}

func TestRunState_FinishUnfinished(t *testing.T) {
	s := NewRunState(domain.NewRun("data.csv"))
	_ = s.Advance(StateUploaded)

	run := s.Finish(domain.NewPipelineStatus())
	if run.Status != domain.RunStatusFailed {
		t.Errorf("Status = %s, want %s", run.Status, domain.RunStatusFailed)
	}
	if s.Current() != StateError {
		t.Errorf("Current() = %s, want %s", s.Current(), StateError)
	}
}
