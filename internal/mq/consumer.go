package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler обрабатывает одно сообщение.
//
// nil — ack. Ошибка, обёрнутая в ErrPermanent, — nack без requeue
// (сообщение уходит в DLQ). Любая другая ошибка — один повтор через
// requeue, при повторной неудаче тоже DLQ.
type Handler func(ctx context.Context, msg *Delivery) error

// ErrPermanent помечает ошибку, повтор которой бессмыслен.
var ErrPermanent = errors.New("permanent failure")

// Delivery — разобранное сообщение вместе с исходной доставкой.
type Delivery struct {
	Message Message
	Raw     amqp.Delivery
}

// Consumer читает очередь и раздаёт сообщения обработчику.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    string
	types    []MessageType
	handler  Handler
	prefetch int

	cancelFunc context.CancelFunc
}

// ConsumerConfig — параметры Consumer.
type ConsumerConfig struct {
	Queue   string
	Handler Handler

	// Types ограничивает принимаемые типы сообщений. Чужие типы
	// подтверждаются и отбрасываются. Пустой список — принимать всё.
	Types []MessageType

	// Prefetch — сколько неподтверждённых сообщений держит брокер, по умолчанию 1.
	Prefetch int
}

// NewConsumer создаёт Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	return &Consumer{
		conn:     conn,
		logger:   logger.With("queue", cfg.Queue),
		queue:    cfg.Queue,
		types:    cfg.Types,
		handler:  cfg.Handler,
		prefetch: prefetch,
	}
}

// Start блокирует до отмены ctx, переподписываясь после каждого
// переподключения Connection.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel

	for {
		deliveries, err := c.subscribe()
		if err != nil {
			c.logger.Error("failed to subscribe", "error", err)
		} else {
			c.logger.Info("consumer started")
			c.drain(ctx, deliveries)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err == nil {
			c.logger.Warn("deliveries channel closed, waiting for reconnect")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.ReconnectNotify():
			c.logger.Info("reconnected, restarting consumer")
		}
	}
}

// Stop останавливает consumer.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

func (c *Consumer) subscribe() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, fmt.Errorf("no channel available")
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	// autoAck=false: подтверждаем сами после обработки.
	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	return deliveries, nil
}

// drain возвращается при отмене ctx или закрытии канала доставок.
func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-deliveries:
			if !ok {
				return
			}
			c.handleDelivery(ctx, raw)
		}
	}
}

// outcome — чем закончилась доставка.
type outcome int

const (
	outcomeAck outcome = iota
	outcomeRequeue
	outcomeDeadLetter
)

func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	switch c.process(ctx, raw) {
	case outcomeAck:
		raw.Ack(false)
	case outcomeRequeue:
		raw.Nack(false, true)
	case outcomeDeadLetter:
		raw.Nack(false, false)
	}
}

func (c *Consumer) process(ctx context.Context, raw amqp.Delivery) outcome {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		c.logger.Error("failed to unmarshal message", "error", err, "size", len(raw.Body))
		return outcomeDeadLetter
	}

	logger := c.logger.With("message_id", msg.ID, "type", msg.Type)
	if len(c.types) > 0 && !slices.Contains(c.types, msg.Type) {
		logger.Warn("dropping message of unexpected type")
		return outcomeAck
	}
	logger.Debug("received message")

	err := c.handler(ctx, &Delivery{Message: msg, Raw: raw})
	switch {
	case err == nil:
		return outcomeAck
	case errors.Is(err, ErrPermanent) || raw.Redelivered:
		logger.Error("handler failed, dead-lettering", "error", err, "redelivered", raw.Redelivered)
		return outcomeDeadLetter
	default:
		logger.Warn("handler failed, requeueing", "error", err)
		return outcomeRequeue
	}
}

// ParsePayload декодирует payload сообщения в T.
//
// После json.Unmarshal конверта Payload — это map[string]any, поэтому
// он перекодируется через JSON.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(payload, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}
	return result, nil
}
