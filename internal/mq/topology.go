package mq

import (
	"context"
	"fmt"

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
	ExchangeExecutions Exchange = "cadence.executions"
)

// Queues — имена очередей.
const (
	QueueExecutionsCompleted Queue = "executions.completed"
	QueueExecutionsFailed    Queue = "executions.failed"
)

// RoutingKeys — ключи маршрутизации.
const (
	RoutingKeyExecutionCompleted RoutingKey = "execution.completed"
	RoutingKeyExecutionFailed    RoutingKey = "execution.failed"
)

// DeclareTopology объявляет обменники, очереди и привязки.
// Идемпотентна: повторное объявление с теми же параметрами безопасно.
func DeclareTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := ch.ExchangeDeclare(
			string(ExchangeExecutions),
			"topic",
			true,  // durable
			false, // auto-delete
			false, // internal
			false, // no-wait
			nil,
		); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ExchangeExecutions, err)
		}

		bindings := []struct {
			queue Queue
			key   RoutingKey
		}{
			{QueueExecutionsCompleted, RoutingKeyExecutionCompleted},
			{QueueExecutionsFailed, RoutingKeyExecutionFailed},
		}

		for _, b := range bindings {
			if _, err := ch.QueueDeclare(
				string(b.queue),
				true,  // durable
				false, // auto-delete
				false, // exclusive
				false, // no-wait
				nil,
			); err != nil {
				return fmt.Errorf("declare queue %s: %w", b.queue, err)
			}

			if err := ch.QueueBind(
				string(b.queue),
				string(b.key),
				string(ExchangeExecutions),
				false,
				nil,
			); err != nil {
				return fmt.Errorf("bind queue %s: %w", b.queue, err)
			}
		}

		return nil
	})
}
