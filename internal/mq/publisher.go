package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/mlpipe/internal/domain"
)

// MessageType — тип сообщения.
type MessageType string

// Типы сообщений.
const (
	MessageTypeRunTrigger   MessageType = "run.trigger"
	MessageTypeStatusUpdate MessageType = "status_update"
	MessageTypeLog          MessageType = "new_log"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — конверт сообщения.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// RunTriggerPayload — запустить pipeline для файла, уже лежащего в raw/.
type RunTriggerPayload struct {
	Filename string `json:"filename"`
}

// NewMessage создаёт сообщение с новым ID.
func NewMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// Publish публикует сообщение. persistent=false для событий статуса:
// после рестарта брокера они бесполезны.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message, persistent bool) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	mode := amqp.Transient
	if persistent {
		mode = amqp.Persistent
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: mode,
				MessageId:    msg.ID,
				Type:         string(msg.Type),
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishRunTrigger ставит в очередь запуск pipeline.
// Потребитель: orchestrator.
func (p *Publisher) PublishRunTrigger(ctx context.Context, filename string) error {
	msg := NewMessage(MessageTypeRunTrigger, RunTriggerPayload{Filename: filename})
	return p.Publish(ctx, ExchangeRuns, RoutingKeyTrigger, msg, true)
}

// PublishStatus публикует полный снимок статуса.
func (p *Publisher) PublishStatus(ctx context.Context, status domain.PipelineStatus) error {
	msg := NewMessage(MessageTypeStatusUpdate, status)
	return p.Publish(ctx, ExchangeStatus, RoutingKeyStatus, msg, false)
}

// PublishLog публикует запись журнала.
func (p *Publisher) PublishLog(ctx context.Context, entry domain.LogEntry) error {
	msg := NewMessage(MessageTypeLog, entry)
	return p.Publish(ctx, ExchangeStatus, RoutingKeyStatus, msg, false)
}
