package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/mlpipe/internal/domain"
	"github.com/shaiso/mlpipe/internal/mq"
)

// handleRunTrigger обрабатывает run.trigger из очереди.
//
// Файл уже должен лежать в raw/. Занятый pipeline и неверное имя файла
// не ретраятся: сообщение уходит в DLQ.
func (o *Orchestrator) handleRunTrigger(ctx context.Context, d *mq.Delivery) error {
	logger := o.logger

	payload, err := mq.ParsePayload[mq.RunTriggerPayload](&d.Message)
	if err != nil {
		return fmt.Errorf("%w: parse payload: %v", mq.ErrPermanent, err)
	}

	logger.Info("received run trigger", "message_id", d.Message.ID, "filename", payload.Filename)

	run, err := o.SubmitExisting(ctx, payload.Filename)
	switch {
	case err == nil:
		logger.Info("run triggered from queue", "run_id", run.ID, "filename", run.Filename)
		return nil
	case errors.Is(err, ErrRunAlreadyActive), errors.Is(err, domain.ErrValidation):
		return fmt.Errorf("%w: %v", mq.ErrPermanent, err)
	default:
		return err
	}
}
