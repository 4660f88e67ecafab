// Package model defines the task record, its status state machine, and
// the structured error taxonomy shared by the worker pool and the
// service facade.
package model

import (
	"fmt"
	"time"
)

// ErrorKind classifies a task failure. Kinds map one-to-one onto the
// retry policy: only KindInternal and KindStorageIO are retryable.
type ErrorKind string

const (
	KindUnsupportedFormat  ErrorKind = "unsupported_format"
	KindCorruptInput       ErrorKind = "corrupt_input"
	KindUnsupportedFeature ErrorKind = "unsupported_feature"
	KindInternal           ErrorKind = "internal"
	KindStorageIO          ErrorKind = "storage_io"
)

// TaskError is the structured error persisted on a failed task record.
type TaskError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Retryable reports whether a failure of this kind may be retried by
// re-enqueueing the task.
func (e *TaskError) Retryable() bool {
	return e.Kind == KindInternal || e.Kind == KindStorageIO
}

// Task is the unit of work tracked end-to-end. Records are stored as
// JSON in the task store; Version is the conditional-update token and
// is bumped by the store on every successful write.
type Task struct {
	ID           string     `json:"id"`
	Status       Status     `json:"status"`
	InputRefs    []string   `json:"input_refs"`
	TemplateType string     `json:"template_type"`
	TaskType     string     `json:"task_type"`
	ResultRef    string     `json:"result_ref,omitempty"`
	Error        *TaskError `json:"error,omitempty"`
	Attempts     int        `json:"attempts"`
	Version      int        `json:"version"`
	CreatedAt    string     `json:"created_at"`
	UpdatedAt    string     `json:"updated_at"`
}

// NewTask creates a pending task record with a fresh ID.
func NewTask(inputRefs []string, templateType, taskType string) (*Task, error) {
	if len(inputRefs) == 0 {
		return nil, fmt.Errorf("task requires at least one input ref")
	}
	id, err := GenerateID(IDTypeTask)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	refs := make([]string, len(inputRefs))
	copy(refs, inputRefs)
	return &Task{
		ID:           id,
		Status:       StatusPending,
		InputRefs:    refs,
		TemplateType: templateType,
		TaskType:     taskType,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Transition moves the task to the given status after validating the
// FSM edge. On an illegal edge the record is left untouched.
func (t *Task) Transition(to Status) error {
	if err := ValidateTransition(t.Status, to); err != nil {
		return err
	}
	t.Status = to
	t.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return nil
}

// Age returns the duration since the last update. Records with an
// unparseable timestamp report zero age and are never swept.
func (t *Task) Age(now time.Time) time.Duration {
	updated, err := time.Parse(time.RFC3339, t.UpdatedAt)
	if err != nil {
		return 0
	}
	return now.Sub(updated)
}
