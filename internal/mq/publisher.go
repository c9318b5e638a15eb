package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeCreate  MessageType = "task.create"
	MessageTypeFlatten MessageType = "task.flatten"
	MessageTypeStatus  MessageType = "task.status"
)

// Message — конверт сообщения.
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage упаковывает payload в конверт.
func NewMessage(msgType MessageType, payload any) (*Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   body,
		Timestamp: time.Now().UTC(),
	}, nil
}

// CreatePayload — запрос на создание задачи clone/recover.
type CreatePayload struct {
	Owner       string `json:"owner"`
	Mode        string `json:"mode"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	PoolSet     string `json:"pool_set,omitempty"`
	FileType    string `json:"file_type"`
	IsLazy      bool   `json:"is_lazy"`
}

// FlattenPayload — запрос на flatten ленивой задачи.
type FlattenPayload struct {
	TaskID uuid.UUID `json:"task_id"`
}

// TaskEvent — событие изменения статуса задачи.
type TaskEvent struct {
	TaskID   uuid.UUID `json:"task_id"`
	Mode     string    `json:"mode"`
	Step     string    `json:"step"`
	Status   string    `json:"status"`
	Progress int       `json:"progress"`
	Error    string    `json:"error,omitempty"`
	Outcome  string    `json:"outcome"`
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn     *Connection
	exchange Exchange
	logger   *slog.Logger
}

// NewPublisher создаёт Publisher в обменник ExchangeTasks.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:     conn,
		exchange: ExchangeTasks,
		logger:   logger,
	}
}

// Publish публикует сообщение с routing key.
func (p *Publisher) Publish(ctx context.Context, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(ctx, string(p.exchange), string(routingKey), false, false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Type:         string(msg.Type),
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", p.exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishTaskEvent публикует событие статуса задачи.
func (p *Publisher) PublishTaskEvent(ctx context.Context, event TaskEvent) error {
	msg, err := NewMessage(MessageTypeStatus, event)
	if err != nil {
		return err
	}
	return p.Publish(ctx, RoutingKeyStatus, msg)
}

// PublishCreate публикует запрос на создание задачи.
func (p *Publisher) PublishCreate(ctx context.Context, req CreatePayload) error {
	msg, err := NewMessage(MessageTypeCreate, req)
	if err != nil {
		return err
	}
	return p.Publish(ctx, RoutingKeyCreate, msg)
}

// PublishFlatten публикует запрос на flatten.
func (p *Publisher) PublishFlatten(ctx context.Context, taskID uuid.UUID) error {
	msg, err := NewMessage(MessageTypeFlatten, FlattenPayload{TaskID: taskID})
	if err != nil {
		return err
	}
	return p.Publish(ctx, RoutingKeyFlatten, msg)
}
