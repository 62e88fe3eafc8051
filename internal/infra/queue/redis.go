package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"novelverse/internal/domain"
)

// RedisOpenQueue реализует очередь событий открытия книг на базе Redis lists.
type RedisOpenQueue struct {
	client *redis.Client
	key    string
}

// NewRedisOpenQueue создаёт очередь по указанному ключу.
func NewRedisOpenQueue(client *redis.Client, key string) *RedisOpenQueue {
	return &RedisOpenQueue{client: client, key: key}
}

var _ domain.OpenEventQueue = (*RedisOpenQueue)(nil)

// Enqueue публикует событие в очередь.
func (q *RedisOpenQueue) Enqueue(ctx context.Context, event domain.OpenEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push event: %w", err)
	}
	return nil
}

// Receive блокирующе читает событие из очереди. Неуспешная обработка
// возвращает событие в хвост очереди.
func (q *RedisOpenQueue) Receive(ctx context.Context) (domain.OpenEvent, domain.AckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.OpenEvent{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.OpenEvent{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.OpenEvent{}, nil, err
		}
		if len(res) != 2 {
			return domain.OpenEvent{}, nil, errors.New("redis queue: unexpected response")
		}
		var event domain.OpenEvent
		if err := json.Unmarshal([]byte(res[1]), &event); err != nil {
			return domain.OpenEvent{}, nil, fmt.Errorf("decode event: %w", err)
		}

		payload := res[1]
		ack := func(success bool) error {
			if success {
				return nil
			}
			return q.client.LPush(context.Background(), q.key, payload).Err()
		}
		return event, ack, nil
	}
}
