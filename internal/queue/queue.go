package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event is a presence trigger waiting for the pipeline worker.
type Event struct {
	ID          string    `json:"id"`
	Identity    string    `json:"identity"`
	Kind        string    `json:"kind"`
	RequestedAt time.Time `json:"requested_at"`
}

// Queue is the abstraction over different backends. Consuming from a single
// worker is what serializes sessions per device.
type Queue interface {
	Publish(ctx context.Context, evt Event) error
	Consume(ctx context.Context) (<-chan Event, error)
}

// InMemory is a bounded channel-backed queue, the default on a single device.
type InMemory struct {
	ch chan Event
}

// NewInMemory creates a queue holding at most size pending events.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Event, size)}
}

// Publish enqueues an event.
func (q *InMemory) Publish(ctx context.Context, evt Event) error {
	select {
	case q.ch <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel for the worker.
func (q *InMemory) Consume(ctx context.Context) (<-chan Event, error) {
	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			select {
			case evt := <-q.ch:
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue is a Redis list-backed queue for kiosk fleets where triggers and
// the worker may live in different processes.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue connects to redis with short timeouts and uses LPUSH/BRPOP
// semantics on key.
func NewRedisQueue(addr, key string) *RedisQueue {
	if key == "" {
		key = "presence:events"
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  6 * time.Second, // must exceed the BRPOP block
		WriteTimeout: 1 * time.Second,
	})
	return &RedisQueue{client: client, key: key}
}

// Healthy verifies redis connectivity.
func (q *RedisQueue) Healthy(ctx context.Context) bool {
	return q.client.Ping(ctx).Err() == nil
}

// Publish enqueues an event as JSON.
func (q *RedisQueue) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, body).Err()
}

// Consume streams events using BRPOP.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Event, error) {
	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				continue
			}
			if len(res) != 2 {
				continue
			}
			var evt Event
			if err := json.Unmarshal([]byte(res[1]), &evt); err != nil {
				continue
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
