// Package store persists task records and provides the conditional
// update that guards every status transition against lost writes.
package store

import (
	"context"
	"errors"

	"github.com/USTC-KnowledgeComputingLab/MMDocParser/internal/model"
)

var (
	ErrNotFound = errors.New("task not found")
	// ErrVersionConflict means the caller's version token is stale:
	// re-read the record and retry the transition, not the whole task.
	ErrVersionConflict = errors.New("task version conflict")
	ErrAlreadyExists   = errors.New("task already exists")
)

// Mutation edits a task record in place. It runs against the latest
// stored copy; returning an error aborts the update with no write.
type Mutation func(*model.Task) error

type TaskStore interface {
	Create(ctx context.Context, task *model.Task) error
	Get(ctx context.Context, id string) (*model.Task, error)
	// ConditionalUpdate applies mutate to the record only if its
	// current Version equals expectedVersion, then bumps Version.
	// Returns ErrVersionConflict otherwise; the record is untouched.
	ConditionalUpdate(ctx context.Context, id string, expectedVersion int, mutate Mutation) (*model.Task, error)
	// ListIDs returns all known task ids, for the reconciliation sweep.
	ListIDs(ctx context.Context) ([]string, error)
}
