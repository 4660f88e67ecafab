package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

// Runs only when REDIS_ADDR points at a live instance.
func newRedisQueue(t *testing.T) *RedisQueue {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	key := "test_queue_" + t.Name()
	t.Cleanup(func() {
		client.Del(context.Background(), key)
		client.Close()
	})
	return NewRedisQueue(client, key)
}

func TestRedisQueueFIFO(t *testing.T) {
	q := newRedisQueue(t)
	ctx := context.Background()

	for _, id := range []string{"task_0000000001_aaaaaaaa", "task_0000000002_bbbbbbbb"} {
		if err := q.Enqueue(ctx, id); err != nil {
			t.Fatalf("Enqueue(%s): %v", id, err)
		}
	}

	first, ok, err := q.Dequeue(ctx, time.Second)
	if err != nil || !ok {
		t.Fatalf("Dequeue = %q, %v, %v", first, ok, err)
	}
	if first != "task_0000000001_aaaaaaaa" {
		t.Errorf("first = %q", first)
	}

	second, ok, err := q.Dequeue(ctx, time.Second)
	if err != nil || !ok {
		t.Fatalf("Dequeue = %q, %v, %v", second, ok, err)
	}
	if second != "task_0000000002_bbbbbbbb" {
		t.Errorf("second = %q", second)
	}
}

func TestRedisQueueDequeueEmpty(t *testing.T) {
	q := newRedisQueue(t)

	id, ok, err := q.Dequeue(context.Background(), 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if ok || id != "" {
		t.Errorf("expected empty dequeue, got %q, %v", id, ok)
	}
}
