// Package worker drains the task queue, executes parsing jobs against
// the parser registry, and drives the task-state machine through
// guarded store updates.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/USTC-KnowledgeComputingLab/MMDocParser/internal/config"
	"github.com/USTC-KnowledgeComputingLab/MMDocParser/internal/model"
	"github.com/USTC-KnowledgeComputingLab/MMDocParser/internal/parser"
	"github.com/USTC-KnowledgeComputingLab/MMDocParser/internal/queue"
	"github.com/USTC-KnowledgeComputingLab/MMDocParser/internal/storage"
	"github.com/USTC-KnowledgeComputingLab/MMDocParser/internal/store"
)

const sniffLen = 512

// Pool runs N worker loops over a shared queue. Each worker handles
// one task at a time: parsing is resource-heavy and deliberately never
// overlaps with other parsing work on the same worker.
type Pool struct {
	cfg          config.WorkerConfig
	resultPrefix string

	queue    queue.Queue
	tasks    store.TaskStore
	objects  storage.ObjectStore
	registry *parser.Registry

	logger   *log.Logger
	logLevel LogLevel
}

func NewPool(
	cfg config.WorkerConfig,
	resultPrefix string,
	q queue.Queue,
	tasks store.TaskStore,
	objects storage.ObjectStore,
	registry *parser.Registry,
	logger *log.Logger,
	logLevel LogLevel,
) *Pool {
	return &Pool{
		cfg:          cfg,
		resultPrefix: resultPrefix,
		queue:        q,
		tasks:        tasks,
		objects:      objects,
		registry:     registry,
		logger:       logger,
		logLevel:     logLevel,
	}
}

// Run starts the worker loops and the staleness sweeper, and blocks
// until ctx is cancelled and all in-flight tasks have drained.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < p.cfg.Count; i++ {
		workerID := fmt.Sprintf("worker_%d", i)
		g.Go(func() error {
			return p.runWorker(gctx, workerID)
		})
	}

	sweeper := NewSweeper(p.cfg, p.tasks, p.queue, p.logger, p.logLevel)
	g.Go(func() error {
		return sweeper.Run(gctx)
	})

	return g.Wait()
}

func (p *Pool) runWorker(ctx context.Context, workerID string) error {
	p.log(LogLevelInfo, "worker_start id=%s", workerID)
	for {
		select {
		case <-ctx.Done():
			p.log(LogLevelInfo, "worker_stop id=%s", workerID)
			return nil
		default:
		}

		taskID, ok, err := p.queue.Dequeue(ctx, p.cfg.PollTimeout())
		if err != nil {
			if ctx.Err() != nil {
				p.log(LogLevelInfo, "worker_stop id=%s", workerID)
				return nil
			}
			p.log(LogLevelError, "dequeue_failed worker=%s error=%v", workerID, err)
			// Back off so a dead broker doesn't spin the loop.
			select {
			case <-time.After(p.cfg.PollTimeout()):
			case <-ctx.Done():
			}
			continue
		}
		if !ok {
			continue
		}

		// In-flight tasks finish during shutdown: stop accepting new
		// dequeues, never abort mid-parse.
		p.handleTask(context.WithoutCancel(ctx), workerID, taskID)
	}
}

// handleTask runs the per-task protocol: guarded claim, parse, then a
// terminal or retry transition. Every store write is conditional on
// the version observed by this worker.
func (p *Pool) handleTask(ctx context.Context, workerID, taskID string) {
	task, claimed := p.claim(ctx, workerID, taskID)
	if !claimed {
		return
	}

	result, taskErr := p.process(ctx, task)
	if taskErr == nil {
		p.complete(ctx, workerID, task, result)
		return
	}
	p.fail(ctx, workerID, task, taskErr)
}

// claim transitions pending → processing. Duplicate deliveries and
// already-terminal tasks are skipped, which makes at-least-once queue
// delivery safe.
func (p *Pool) claim(ctx context.Context, workerID, taskID string) (*model.Task, bool) {
	task, err := p.tasks.Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			p.log(LogLevelWarn, "claim_unknown_task worker=%s id=%s", workerID, taskID)
		} else {
			p.log(LogLevelError, "claim_read_failed worker=%s id=%s error=%v", workerID, taskID, err)
		}
		return nil, false
	}
	if task.Status != model.StatusPending {
		p.log(LogLevelDebug, "claim_skip worker=%s id=%s status=%s", workerID, taskID, task.Status)
		return nil, false
	}

	updated, err := p.tasks.ConditionalUpdate(ctx, taskID, task.Version, func(t *model.Task) error {
		if err := t.Transition(model.StatusProcessing); err != nil {
			return err
		}
		t.Attempts++
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			// Another worker claimed a duplicate delivery first.
			p.log(LogLevelDebug, "claim_lost_race worker=%s id=%s", workerID, taskID)
			return nil, false
		}
		var ite *model.IllegalTransitionError
		if errors.As(err, &ite) {
			p.log(LogLevelDebug, "claim_skip worker=%s id=%s error=%v", workerID, taskID, err)
			return nil, false
		}
		p.log(LogLevelError, "claim_failed worker=%s id=%s error=%v", workerID, taskID, err)
		return nil, false
	}

	p.log(LogLevelInfo, "task_claimed worker=%s id=%s attempt=%d", workerID, taskID, updated.Attempts)
	return updated, true
}

// process fetches and parses every input ref in order.
func (p *Pool) process(ctx context.Context, task *model.Task) (*parser.TaskResult, *model.TaskError) {
	result := &parser.TaskResult{
		TaskID:    task.ID,
		Documents: make([]parser.Document, 0, len(task.InputRefs)),
	}

	for _, ref := range task.InputRefs {
		data, err := p.objects.Get(ctx, ref)
		if err != nil {
			return nil, &model.TaskError{
				Kind:    model.KindStorageIO,
				Message: fmt.Sprintf("fetch input %s: %v", ref, err),
			}
		}

		sniff := data
		if len(sniff) > sniffLen {
			sniff = sniff[:sniffLen]
		}
		pr, err := p.registry.Select(path.Base(ref), sniff)
		if err != nil {
			return nil, &model.TaskError{
				Kind:    model.KindUnsupportedFormat,
				Message: fmt.Sprintf("input %s: %v", ref, err),
			}
		}

		doc, err := pr.Parse(ctx, data, parser.Options{
			Filename:     path.Base(ref),
			TemplateType: task.TemplateType,
			TaskType:     task.TaskType,
		})
		if err != nil {
			return nil, parseTaskError(ref, err)
		}
		doc.Source = ref
		result.Documents = append(result.Documents, *doc)
	}

	return result, nil
}

func parseTaskError(ref string, err error) *model.TaskError {
	kind := model.KindInternal
	var pe *parser.ParseError
	if errors.As(err, &pe) {
		switch pe.Kind {
		case parser.KindCorruptInput:
			kind = model.KindCorruptInput
		case parser.KindUnsupportedFeature:
			kind = model.KindUnsupportedFeature
		}
	}
	return &model.TaskError{
		Kind:    kind,
		Message: fmt.Sprintf("input %s: %v", ref, err),
	}
}

func (p *Pool) complete(ctx context.Context, workerID string, task *model.Task, result *parser.TaskResult) {
	data, err := json.Marshal(result)
	if err != nil {
		p.fail(ctx, workerID, task, &model.TaskError{
			Kind:    model.KindInternal,
			Message: fmt.Sprintf("serialize result: %v", err),
		})
		return
	}

	resultRef := fmt.Sprintf("%s/%s.json", p.resultPrefix, task.ID)
	if err := p.objects.Put(ctx, resultRef, data); err != nil {
		p.fail(ctx, workerID, task, &model.TaskError{
			Kind:    model.KindStorageIO,
			Message: fmt.Sprintf("store result: %v", err),
		})
		return
	}

	_, err = p.tasks.ConditionalUpdate(ctx, task.ID, task.Version, func(t *model.Task) error {
		if err := t.Transition(model.StatusCompleted); err != nil {
			return err
		}
		t.ResultRef = resultRef
		t.Error = nil
		return nil
	})
	if err != nil {
		// The sweeper may have reclaimed a long-running task; the
		// retry attempt owns the record now.
		p.log(LogLevelWarn, "complete_transition_failed worker=%s id=%s error=%v", workerID, task.ID, err)
		return
	}
	p.log(LogLevelInfo, "task_completed worker=%s id=%s result=%s docs=%d",
		workerID, task.ID, resultRef, len(result.Documents))
}

// fail applies the retry policy: retryable errors below the attempt
// limit bounce the task back to pending and re-enqueue it, everything
// else records a terminal failure.
func (p *Pool) fail(ctx context.Context, workerID string, task *model.Task, taskErr *model.TaskError) {
	retry := taskErr.Retryable() && task.Attempts < p.cfg.MaxAttempts

	if retry {
		_, err := p.tasks.ConditionalUpdate(ctx, task.ID, task.Version, func(t *model.Task) error {
			return t.Transition(model.StatusPending)
		})
		if err != nil {
			p.log(LogLevelWarn, "retry_transition_failed worker=%s id=%s error=%v", workerID, task.ID, err)
			return
		}
		if err := p.queue.Enqueue(ctx, task.ID); err != nil {
			// Stuck pending until the staleness sweep re-enqueues it.
			p.log(LogLevelError, "retry_enqueue_failed worker=%s id=%s error=%v", workerID, task.ID, err)
			return
		}
		p.log(LogLevelInfo, "task_retry worker=%s id=%s attempt=%d kind=%s",
			workerID, task.ID, task.Attempts, taskErr.Kind)
		return
	}

	_, err := p.tasks.ConditionalUpdate(ctx, task.ID, task.Version, func(t *model.Task) error {
		if err := t.Transition(model.StatusFailed); err != nil {
			return err
		}
		t.Error = taskErr
		t.ResultRef = ""
		return nil
	})
	if err != nil {
		p.log(LogLevelWarn, "fail_transition_failed worker=%s id=%s error=%v", workerID, task.ID, err)
		return
	}
	p.log(LogLevelInfo, "task_failed worker=%s id=%s attempt=%d kind=%s error=%q",
		workerID, task.ID, task.Attempts, taskErr.Kind, taskErr.Message)
}

func (p *Pool) log(level LogLevel, format string, args ...any) {
	logf(p.logger, p.logLevel, level, "pool", format, args...)
}
