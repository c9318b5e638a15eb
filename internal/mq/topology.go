package mq

import (
	"context"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeTasks Exchange = "snapclone.tasks"
	ExchangeDLQ   Exchange = "snapclone.dlq"
)

// Queues — имена очередей.
const (
	QueueRequests    Queue = "snapclone.requests"
	QueueEvents      Queue = "snapclone.events"
	QueueDLQRequests Queue = "snapclone.dlq.requests"
)

// Routing keys.
const (
	RoutingKeyCreate   RoutingKey = "task.create"
	RoutingKeyFlatten  RoutingKey = "task.flatten"
	RoutingKeyStatus   RoutingKey = "task.status"
	RoutingKeyRejected RoutingKey = "requests"
)

// ExchangeDecl — объявление обменника.
type ExchangeDecl struct {
	Name Exchange
	Kind string
}

// QueueDecl — объявление очереди.
type QueueDecl struct {
	Name Queue
	Args amqp.Table
}

// Binding — привязка очереди к обменнику.
type Binding struct {
	Queue      Queue
	RoutingKey RoutingKey
	Exchange   Exchange
}

// Topology — полный набор объявлений брокера.
type Topology struct {
	Exchanges []ExchangeDecl
	Queues    []QueueDecl
	Bindings  []Binding
}

// DefaultTopology возвращает топологию сервиса:
// запросы create/flatten с DLQ и события статусов задач.
func DefaultTopology() Topology {
	return Topology{
		Exchanges: []ExchangeDecl{
			{ExchangeTasks, amqp.ExchangeTopic},
			{ExchangeDLQ, amqp.ExchangeDirect},
		},
		Queues: []QueueDecl{
			{QueueRequests, amqp.Table{
				"x-dead-letter-exchange":    string(ExchangeDLQ),
				"x-dead-letter-routing-key": string(RoutingKeyRejected),
			}},
			{QueueEvents, nil},
			{QueueDLQRequests, nil},
		},
		Bindings: []Binding{
			{QueueRequests, RoutingKeyCreate, ExchangeTasks},
			{QueueRequests, RoutingKeyFlatten, ExchangeTasks},
			{QueueEvents, RoutingKeyStatus, ExchangeTasks},
			{QueueDLQRequests, RoutingKeyRejected, ExchangeDLQ},
		},
	}
}

// Declarer — часть amqp.Channel, нужная для объявления топологии.
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// Declare объявляет обменники, очереди и привязки. Все объекты durable.
func (t Topology) Declare(ch Declarer) error {
	for _, ex := range t.Exchanges {
		if err := ch.ExchangeDeclare(string(ex.Name), ex.Kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.Name, err)
		}
	}

	for _, q := range t.Queues {
		if _, err := ch.QueueDeclare(string(q.Name), true, false, false, false, q.Args); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.Name, err)
		}
	}

	for _, b := range t.Bindings {
		if err := ch.QueueBind(string(b.Queue), string(b.RoutingKey), string(b.Exchange), false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s/%s: %w", b.Queue, b.Exchange, b.RoutingKey, err)
		}
	}

	return nil
}

// String описывает топологию для логирования при старте.
func (t Topology) String() string {
	var sb strings.Builder
	for _, ex := range t.Exchanges {
		fmt.Fprintf(&sb, "%s (%s)\n", ex.Name, ex.Kind)
		for _, b := range t.Bindings {
			if b.Exchange == ex.Name {
				fmt.Fprintf(&sb, "  -> %s [%s]\n", b.Queue, b.RoutingKey)
			}
		}
	}
	return sb.String()
}

// SetupTopology объявляет DefaultTopology на соединении.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		return DefaultTopology().Declare(ch)
	})
}
