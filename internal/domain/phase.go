package domain

import "time"

// Phase — фаза pipeline, видимая наблюдателям.
type Phase string

const (
	PhaseUpload     Phase = "upload"
	PhaseConversion Phase = "conversion"
	PhaseCleaning   Phase = "cleaning"
	PhaseTraining   Phase = "training"
	PhaseInference  Phase = "inference"

	// PhaseIdle — значение CurrentPhase после reset. В Phases не входит.
	PhaseIdle Phase = "idle"
)

// Phases — фиксированный порядок фаз.
var Phases = []Phase{
	PhaseUpload,
	PhaseConversion,
	PhaseCleaning,
	PhaseTraining,
	PhaseInference,
}

// Index возвращает позицию фазы в фиксированном порядке, -1 для неизвестной.
func (p Phase) Index() int {
	for i, ph := range Phases {
		if ph == p {
			return i
		}
	}
	return -1
}

// Valid проверяет, что фаза входит в фиксированный набор.
func (p Phase) Valid() bool {
	return p.Index() >= 0
}

// PhaseState — состояние одной фазы.
type PhaseState struct {
	Status    PhaseStatus `json:"status"`
	Timestamp *time.Time  `json:"timestamp"`
	Message   string      `json:"message"`
}

// LogEntry — запись журнала pipeline.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Level     LogLevel  `json:"level"`
}

// PipelineStatus — полный статус pipeline.
//
// В процессе существует ровно один живой экземпляр (владелец — tracker).
// Наружу отдаются только копии, полученные через Clone.
type PipelineStatus struct {
	CurrentPhase Phase                `json:"current_phase"`
	Phases       map[Phase]PhaseState `json:"phases"`
	ModelReady   bool                 `json:"model_ready"`
	Logs         []LogEntry           `json:"logs"`
}

// NewPipelineStatus создаёт статус в состоянии idle: все фазы pending, журнал пуст.
func NewPipelineStatus() PipelineStatus {
	phases := make(map[Phase]PhaseState, len(Phases))
	for _, p := range Phases {
		phases[p] = PhaseState{Status: PhaseStatusPending}
	}
	return PipelineStatus{
		CurrentPhase: PhaseIdle,
		Phases:       phases,
		Logs:         []LogEntry{},
	}
}

// Clone возвращает глубокую копию статуса.
func (s PipelineStatus) Clone() PipelineStatus {
	out := PipelineStatus{
		CurrentPhase: s.CurrentPhase,
		ModelReady:   s.ModelReady,
		Phases:       make(map[Phase]PhaseState, len(s.Phases)),
		Logs:         make([]LogEntry, len(s.Logs)),
	}
	for p, st := range s.Phases {
		if st.Timestamp != nil {
			ts := *st.Timestamp
			st.Timestamp = &ts
		}
		out.Phases[p] = st
	}
	copy(out.Logs, s.Logs)
	return out
}

// FailedPhase возвращает первую фазу в статусе error.
func (s PipelineStatus) FailedPhase() (Phase, bool) {
	for _, p := range Phases {
		if s.Phases[p].Status == PhaseStatusError {
			return p, true
		}
	}
	return "", false
}
