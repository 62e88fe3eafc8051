package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"novelverse/internal/domain"
)

// AMQPOpenQueue реализует очередь событий открытия книг поверх RabbitMQ.
// Доставка at-least-once: событие подтверждается только после успешной
// обработки, иначе возвращается в очередь.
type AMQPOpenQueue struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string

	mu         sync.Mutex
	deliveries <-chan amqp.Delivery
}

// NewAMQPOpenQueue подключается к RabbitMQ и объявляет durable очередь.
func NewAMQPOpenQueue(url, queue string) (*AMQPOpenQueue, error) {
	if url == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &AMQPOpenQueue{conn: conn, ch: ch, queue: queue}, nil
}

var _ domain.OpenEventQueue = (*AMQPOpenQueue)(nil)

// Enqueue публикует событие в очередь.
func (q *AMQPOpenQueue) Enqueue(ctx context.Context, event domain.OpenEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Body:         payload,
	})
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Receive блокирующе читает событие из очереди.
func (q *AMQPOpenQueue) Receive(ctx context.Context) (domain.OpenEvent, domain.AckFunc, error) {
	deliveries, err := q.consumer()
	if err != nil {
		return domain.OpenEvent{}, nil, err
	}

	select {
	case <-ctx.Done():
		return domain.OpenEvent{}, nil, ctx.Err()
	case delivery, ok := <-deliveries:
		if !ok {
			return domain.OpenEvent{}, nil, errors.New("amqp queue: канал доставки закрыт")
		}
		var event domain.OpenEvent
		if err := json.Unmarshal(delivery.Body, &event); err != nil {
			// нечитаемое событие не вернётся в очередь
			_ = delivery.Reject(false)
			return domain.OpenEvent{}, nil, fmt.Errorf("decode event: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return delivery.Ack(false)
			}
			return delivery.Nack(false, true)
		}
		return event, ack, nil
	}
}

func (q *AMQPOpenQueue) consumer() (<-chan amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deliveries != nil {
		return q.deliveries, nil
	}
	deliveries, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("amqp consume: %w", err)
	}
	q.deliveries = deliveries
	return deliveries, nil
}

// Close закрывает канал и соединение.
func (q *AMQPOpenQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		_ = q.conn.Close()
		return err
	}
	return q.conn.Close()
}
