package mq

import (
	"context"
	"log/slog"

	"github.com/shaiso/mlpipe/internal/domain"
	"github.com/shaiso/mlpipe/internal/tracker"
)

const relayBuffer = 256

// StatusPublisher — то, что Relay делает с событиями.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, status domain.PipelineStatus) error
	PublishLog(ctx context.Context, entry domain.LogEntry) error
}

// Relay пересылает события tracker'а в exchange mlpipe.status.
type Relay struct {
	tracker   *tracker.Tracker
	publisher StatusPublisher
	logger    *slog.Logger
}

// NewRelay создаёт Relay.
func NewRelay(tr *tracker.Tracker, publisher StatusPublisher, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		tracker:   tr,
		publisher: publisher,
		logger:    logger,
	}
}

// Run пересылает события до отмены ctx. Ошибка публикации не
// останавливает relay: событие теряется, следующее снова полное.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.tracker.Subscribe(relayBuffer)
	defer r.tracker.Unsubscribe(sub)

	r.logger.Info("status relay started", "exchange", ExchangeStatus)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("status relay stopped")
			return nil

		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			r.forward(ctx, ev)
		}
	}
}

func (r *Relay) forward(ctx context.Context, ev tracker.Event) {
	var err error
	switch ev.Type {
	case tracker.EventStatus:
		err = r.publisher.PublishStatus(ctx, *ev.Status)
	case tracker.EventLog:
		err = r.publisher.PublishLog(ctx, *ev.Log)
	default:
		return
	}
	if err != nil {
		r.logger.Warn("failed to relay status event", "event", ev.Type, "error", err)
	}
}
