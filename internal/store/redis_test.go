package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/USTC-KnowledgeComputingLab/MMDocParser/internal/model"
)

// Runs only when REDIS_ADDR points at a live instance.
func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, "test_task_status_"+t.Name(), time.Minute)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	s := newRedisStore(t)
	ctx := context.Background()

	task, err := model.NewTask([]string{"documents/a.pdf"}, "chemistry", "document_analysis")
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	if err := s.Create(ctx, task); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != model.StatusPending {
		t.Errorf("status = %q", got.Status)
	}

	updated, err := s.ConditionalUpdate(ctx, task.ID, 0, func(tk *model.Task) error {
		tk.Attempts++
		return tk.Transition(model.StatusProcessing)
	})
	if err != nil {
		t.Fatalf("ConditionalUpdate: %v", err)
	}
	if updated.Version != 1 {
		t.Errorf("version = %d, want 1", updated.Version)
	}

	if _, err := s.ConditionalUpdate(ctx, task.ID, 0, func(tk *model.Task) error {
		return tk.Transition(model.StatusProcessing)
	}); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("stale update = %v, want ErrVersionConflict", err)
	}
}
