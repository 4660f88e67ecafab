package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisQueue is a FIFO list on Redis: LPUSH to publish, BRPOP to
// consume. BRPOP gives at-least-once delivery across competing
// workers; a crashed worker's id is re-enqueued by the staleness
// sweep, not by the queue.
type RedisQueue struct {
	client   *redis.Client
	queueKey string
}

func NewRedisQueue(client *redis.Client, queueKey string) *RedisQueue {
	return &RedisQueue{client: client, queueKey: queueKey}
}

func (q *RedisQueue) Enqueue(ctx context.Context, taskID string) error {
	if err := q.client.LPush(ctx, q.queueKey, taskID).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", taskID, err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (string, bool, error) {
	res, err := q.client.BRPop(ctx, timeout, q.queueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("dequeue: %w", err)
	}
	// BRPop returns [key, value].
	if len(res) < 2 {
		return "", false, fmt.Errorf("dequeue: unexpected reply %v", res)
	}
	return res[1], true, nil
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
