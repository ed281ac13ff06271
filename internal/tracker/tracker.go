// Package tracker хранит единственный статус pipeline и рассылает его изменения.
//
// Tracker — явный держатель статуса: создаётся в main, передаётся
// оркестратору (единственный writer) и API (readers). Глобальной
// переменной со статусом нет.
//
// Гарантии:
//   - Update и Reset атомарны относительно Snapshot: читатель никогда
//     не видит частично обновлённый статус.
//   - Каждая мутация рассылается подписчикам полным снимком; каждая новая
//     запись журнала дополнительно рассылается отдельным событием.
//   - Переходы фаз только вперёд; после error более поздние фазы не меняются.
package tracker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/shaiso/mlpipe/internal/domain"
	"github.com/shaiso/mlpipe/internal/telemetry"
)

// Ошибки tracker'а.
var (
	// ErrUnknownPhase — фаза не входит в фиксированный набор.
	ErrUnknownPhase = errors.New("unknown phase")

	// ErrInvalidTransition — переход статуса назад или из терминального.
	ErrInvalidTransition = errors.New("invalid phase transition")

	// ErrPipelineHalted — более ранняя фаза уже в error.
	ErrPipelineHalted = errors.New("pipeline halted by earlier error")
)

const defaultSubscriptionBuffer = 64

// EventType — тип события для подписчиков.
type EventType string

const (
	// EventStatus — полный снимок статуса после мутации.
	EventStatus EventType = "status_update"

	// EventLog — новая запись журнала.
	EventLog EventType = "new_log"
)

// Event — событие для подписчиков.
type Event struct {
	Type   EventType
	Status *domain.PipelineStatus
	Log    *domain.LogEntry
}

// Subscription — подписка на события tracker'а.
type Subscription struct {
	id string
	ch chan Event
}

// C возвращает канал событий. Закрывается при Unsubscribe.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Tracker — держатель статуса pipeline.
type Tracker struct {
	mu     sync.RWMutex
	status domain.PipelineStatus

	subs   cmap.ConcurrentMap[string, *Subscription]
	logger *slog.Logger
	now    func() time.Time
}

// New создаёт Tracker в состоянии idle.
func New(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		status: domain.NewPipelineStatus(),
		subs:   cmap.New[*Subscription](),
		logger: logger,
		now:    time.Now,
	}
}

// Update меняет статус фазы, делает её текущей, пишет запись в журнал
// и рассылает полный снимок.
func (t *Tracker) Update(phase domain.Phase, status domain.PhaseStatus, message string) error {
	if !phase.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownPhase, phase)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, p := range domain.Phases[:phase.Index()] {
		if t.status.Phases[p].Status == domain.PhaseStatusError {
			return fmt.Errorf("%w: %s failed before %s", ErrPipelineHalted, p, phase)
		}
	}

	current := t.status.Phases[phase]
	if !domain.CanTransition(current.Status, status) {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, phase, current.Status, status)
	}

	now := t.now()
	t.status.Phases[phase] = domain.PhaseState{
		Status:    status,
		Timestamp: &now,
		Message:   message,
	}
	t.status.CurrentPhase = phase
	t.status.ModelReady = t.status.Phases[domain.PhaseInference].Status == domain.PhaseStatusCompleted

	level := domain.LogLevelInfo
	if status == domain.PhaseStatusError {
		level = domain.LogLevelError
	}
	t.appendLogLocked(level, fmt.Sprintf("phase %s: %s - %s", phase, status, message))
	t.broadcastStatusLocked()

	return nil
}

// Log добавляет запись в журнал и рассылает её отдельным событием.
func (t *Tracker) Log(level domain.LogLevel, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.appendLogLocked(level, message)
}

// Logf — Log с форматированием.
func (t *Tracker) Logf(level domain.LogLevel, format string, args ...any) {
	t.Log(level, fmt.Sprintf(format, args...))
}

// Reset возвращает статус в idle и рассылает его. Идемпотентен.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status = domain.NewPipelineStatus()
	t.broadcastStatusLocked()
}

// Snapshot возвращает независимую копию статуса.
func (t *Tracker) Snapshot() domain.PipelineStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.status.Clone()
}

// Subscribe регистрирует подписчика. buffer <= 0 — размер по умолчанию.
//
// Подписчик, не успевающий читать, теряет события: writer не блокируется.
func (t *Tracker) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultSubscriptionBuffer
	}
	sub := &Subscription{
		id: uuid.NewString(),
		ch: make(chan Event, buffer),
	}

	// Регистрация не трогает t.mu: ConcurrentMap сам синхронизирует
	// доступ, и подписка не ждёт рассылки, идущей под lock.
	t.subs.Set(sub.id, sub)

	telemetry.StatusSubscribers.Inc()
	return sub
}

// Unsubscribe удаляет подписчика и закрывает его канал.
func (t *Tracker) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	// Pop атомарен, поэтому канал закрывается ровно один раз. Close под
	// write-lock: рассылка идёт под тем же lock и не пишет в закрытый канал.
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.subs.Pop(sub.id); !ok {
		return
	}
	close(sub.ch)
	telemetry.StatusSubscribers.Dec()
}

// SubscriberCount возвращает количество подписчиков.
func (t *Tracker) SubscriberCount() int {
	return t.subs.Count()
}

// appendLogLocked добавляет запись журнала. Вызывается под t.mu.
func (t *Tracker) appendLogLocked(level domain.LogLevel, message string) {
	entry := domain.LogEntry{
		Timestamp: t.now(),
		Message:   message,
		Level:     level,
	}
	t.status.Logs = append(t.status.Logs, entry)

	switch level {
	case domain.LogLevelError:
		t.logger.Error(message, "source", "pipeline")
	case domain.LogLevelWarning:
		t.logger.Warn(message, "source", "pipeline")
	default:
		t.logger.Info(message, "source", "pipeline")
	}

	t.broadcastLocked(Event{Type: EventLog, Log: &entry})
}

// broadcastStatusLocked рассылает копию текущего статуса. Вызывается под t.mu.
func (t *Tracker) broadcastStatusLocked() {
	snapshot := t.status.Clone()
	t.broadcastLocked(Event{Type: EventStatus, Status: &snapshot})
}

// broadcastLocked неблокирующе рассылает событие всем подписчикам.
func (t *Tracker) broadcastLocked(ev Event) {
	t.subs.IterCb(func(_ string, sub *Subscription) {
		select {
		case sub.ch <- ev:
		default:
			telemetry.DroppedEvents.Inc()
			t.logger.Debug("status subscriber is slow, event dropped",
				"subscriber", sub.id,
				"event", ev.Type,
			)
		}
	})
}
