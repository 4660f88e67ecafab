// Package service is the contract consumed by the API layer: task
// submission, status queries, and result retrieval. It never touches
// the queue on reads; task state is answered from the task store
// alone.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/USTC-KnowledgeComputingLab/MMDocParser/internal/config"
	"github.com/USTC-KnowledgeComputingLab/MMDocParser/internal/model"
	"github.com/USTC-KnowledgeComputingLab/MMDocParser/internal/parser"
	"github.com/USTC-KnowledgeComputingLab/MMDocParser/internal/queue"
	"github.com/USTC-KnowledgeComputingLab/MMDocParser/internal/storage"
	"github.com/USTC-KnowledgeComputingLab/MMDocParser/internal/store"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	// ErrNotReady is returned by GetResult while the task is still
	// pending or processing.
	ErrNotReady = errors.New("task result not ready")
)

// ValidationError rejects a malformed submission.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TaskFailedError is returned by GetResult for a failed task, carrying
// the recorded error verbatim.
type TaskFailedError struct {
	TaskID string
	Cause  *model.TaskError
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("task %s failed: %v", e.TaskID, e.Cause)
}

func (e *TaskFailedError) Unwrap() error {
	return e.Cause
}

// StatusInfo is the status-query projection of a task record.
type StatusInfo struct {
	TaskID    string       `json:"task_id"`
	Status    model.Status `json:"status"`
	Attempts  int          `json:"attempts"`
	UpdatedAt string       `json:"updated_at"`
}

// Result carries the result reference and the fetched result bytes for
// a completed task.
type Result struct {
	TaskID    string `json:"task_id"`
	ResultRef string `json:"result_ref"`
	Data      []byte `json:"data"`
}

// Pinger is implemented by backends that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Service struct {
	cfg      config.SubmitConfig
	tasks    store.TaskStore
	queue    queue.Queue
	objects  storage.ObjectStore
	registry *parser.Registry
	logger   *log.Logger
}

func New(
	cfg config.SubmitConfig,
	tasks store.TaskStore,
	q queue.Queue,
	objects storage.ObjectStore,
	registry *parser.Registry,
	logger *log.Logger,
) *Service {
	return &Service{
		cfg:      cfg,
		tasks:    tasks,
		queue:    q,
		objects:  objects,
		registry: registry,
		logger:   logger,
	}
}

// Submit validates the request, creates a pending task record, and
// enqueues its id for worker pickup.
func (s *Service) Submit(ctx context.Context, inputRefs []string, templateType, taskType string) (string, error) {
	if err := s.validate(inputRefs, templateType, taskType); err != nil {
		return "", err
	}

	task, err := model.NewTask(inputRefs, templateType, taskType)
	if err != nil {
		return "", err
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return "", fmt.Errorf("create task record: %w", err)
	}
	if err := s.queue.Enqueue(ctx, task.ID); err != nil {
		// The pending record stays behind; resubmission is the
		// caller's recovery path.
		return "", fmt.Errorf("enqueue task %s: %w", task.ID, err)
	}

	s.logger.Printf("%s INFO service: task_submitted id=%s files=%d template=%s type=%s",
		time.Now().Format(time.RFC3339), task.ID, len(inputRefs), templateType, taskType)
	return task.ID, nil
}

func (s *Service) validate(inputRefs []string, templateType, taskType string) error {
	if len(inputRefs) == 0 {
		return &ValidationError{Field: "input_refs", Reason: "must not be empty"}
	}
	if len(inputRefs) > s.cfg.MaxFilesPerTask {
		return &ValidationError{
			Field:  "input_refs",
			Reason: fmt.Sprintf("%d files exceeds limit of %d", len(inputRefs), s.cfg.MaxFilesPerTask),
		}
	}
	for i, ref := range inputRefs {
		if ref == "" {
			return &ValidationError{Field: "input_refs", Reason: fmt.Sprintf("ref %d is empty", i)}
		}
	}
	if !contains(s.cfg.TemplateTypes, templateType) {
		return &ValidationError{
			Field:  "template_type",
			Reason: fmt.Sprintf("%q not in %v", templateType, s.cfg.TemplateTypes),
		}
	}
	if !contains(s.cfg.TaskTypes, taskType) {
		return &ValidationError{
			Field:  "task_type",
			Reason: fmt.Sprintf("%q not in %v", taskType, s.cfg.TaskTypes),
		}
	}
	return nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// GetStatus reports the task's current state. It always succeeds for a
// known task id, regardless of status.
func (s *Service) GetStatus(ctx context.Context, taskID string) (*StatusInfo, error) {
	task, err := s.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return &StatusInfo{
		TaskID:    task.ID,
		Status:    task.Status,
		Attempts:  task.Attempts,
		UpdatedAt: task.UpdatedAt,
	}, nil
}

// GetResult returns the stored parse result for a completed task. A
// failed task surfaces its recorded error verbatim as TaskFailedError.
func (s *Service) GetResult(ctx context.Context, taskID string) (*Result, error) {
	task, err := s.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	switch task.Status {
	case model.StatusCompleted:
		data, err := s.objects.Get(ctx, task.ResultRef)
		if err != nil {
			return nil, fmt.Errorf("fetch result %s: %w", task.ResultRef, err)
		}
		return &Result{TaskID: task.ID, ResultRef: task.ResultRef, Data: data}, nil
	case model.StatusFailed:
		return nil, &TaskFailedError{TaskID: task.ID, Cause: task.Error}
	default:
		return nil, fmt.Errorf("%w: status is %s", ErrNotReady, task.Status)
	}
}

func (s *Service) getTask(ctx context.Context, taskID string) (*model.Task, error) {
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
		}
		return nil, err
	}
	return task, nil
}

// SupportedFormats lists the registered parser names in priority order.
func (s *Service) SupportedFormats() []string {
	return s.registry.SupportedFormats()
}

// HealthCheck probes every backend that exposes a Ping.
func (s *Service) HealthCheck(ctx context.Context) error {
	for name, dep := range map[string]any{
		"queue":        s.queue,
		"task_store":   s.tasks,
		"object_store": s.objects,
	} {
		p, ok := dep.(Pinger)
		if !ok {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%s unhealthy: %w", name, err)
		}
	}
	return nil
}
