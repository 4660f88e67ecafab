// Package queue carries task identifiers from the submission path to
// workers. Delivery is at-least-once: consumers must tolerate
// duplicate ids and must not assume any ordering across tasks.
package queue

import (
	"context"
	"time"
)

type Queue interface {
	// Enqueue publishes a task id for worker pickup.
	Enqueue(ctx context.Context, taskID string) error
	// Dequeue blocks up to timeout for the next task id. ok is false
	// when the timeout elapsed with nothing available.
	Dequeue(ctx context.Context, timeout time.Duration) (taskID string, ok bool, err error)
	Close() error
}
