package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/USTC-KnowledgeComputingLab/MMDocParser/internal/config"
	"github.com/USTC-KnowledgeComputingLab/MMDocParser/internal/model"
	"github.com/USTC-KnowledgeComputingLab/MMDocParser/internal/queue"
	"github.com/USTC-KnowledgeComputingLab/MMDocParser/internal/store"
)

// Sweeper is the periodic reconciliation pass over the task store. It
// repairs two stuck shapes:
//
//   - pending tasks with attempts > 0 whose retry re-enqueue was lost:
//     re-enqueue the id (duplicate delivery is safe).
//   - processing tasks abandoned by a dead worker: bounce back to
//     pending and re-enqueue, or fail them once attempts are
//     exhausted.
type Sweeper struct {
	cfg   config.WorkerConfig
	tasks store.TaskStore
	queue queue.Queue

	logger   *log.Logger
	logLevel LogLevel
}

// SweepRepair describes a single repair action performed by the sweeper.
type SweepRepair struct {
	TaskID string
	Action string // "requeue_pending", "reclaim_processing", "fail_exhausted"
}

func NewSweeper(cfg config.WorkerConfig, tasks store.TaskStore, q queue.Queue, logger *log.Logger, logLevel LogLevel) *Sweeper {
	return &Sweeper{
		cfg:      cfg,
		tasks:    tasks,
		queue:    q,
		logger:   logger,
		logLevel: logLevel,
	}
}

func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.SweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			repairs := s.SweepOnce(ctx)
			if len(repairs) > 0 {
				s.log(LogLevelInfo, "sweep_done repairs=%d", len(repairs))
			}
		}
	}
}

// SweepOnce scans every task record and repairs the stale ones.
func (s *Sweeper) SweepOnce(ctx context.Context) []SweepRepair {
	ids, err := s.tasks.ListIDs(ctx)
	if err != nil {
		s.log(LogLevelError, "sweep_list_failed error=%v", err)
		return nil
	}

	now := time.Now().UTC()
	var repairs []SweepRepair

	for _, id := range ids {
		task, err := s.tasks.Get(ctx, id)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				s.log(LogLevelWarn, "sweep_read_failed id=%s error=%v", id, err)
			}
			continue
		}
		if model.IsTerminal(task.Status) {
			continue
		}
		if age := task.Age(now); age < s.cfg.StaleThreshold() {
			continue
		}

		switch task.Status {
		case model.StatusPending:
			if task.Attempts == 0 {
				// Freshly submitted and waiting; queue backlog, not a
				// lost re-enqueue.
				continue
			}
			if err := s.queue.Enqueue(ctx, task.ID); err != nil {
				s.log(LogLevelError, "sweep_enqueue_failed id=%s error=%v", task.ID, err)
				continue
			}
			s.log(LogLevelWarn, "sweep_requeue_pending id=%s attempts=%d", task.ID, task.Attempts)
			repairs = append(repairs, SweepRepair{TaskID: task.ID, Action: "requeue_pending"})

		case model.StatusProcessing:
			repairs = append(repairs, s.reclaimProcessing(ctx, task)...)
		}
	}

	return repairs
}

func (s *Sweeper) reclaimProcessing(ctx context.Context, task *model.Task) []SweepRepair {
	if task.Attempts >= s.cfg.MaxAttempts {
		_, err := s.tasks.ConditionalUpdate(ctx, task.ID, task.Version, func(t *model.Task) error {
			if err := t.Transition(model.StatusFailed); err != nil {
				return err
			}
			t.Error = &model.TaskError{
				Kind:    model.KindInternal,
				Message: "abandoned by worker and attempt limit reached",
			}
			return nil
		})
		if err != nil {
			// The owning worker finished after all, or another sweep won.
			s.log(LogLevelDebug, "sweep_fail_skipped id=%s error=%v", task.ID, err)
			return nil
		}
		s.log(LogLevelWarn, "sweep_fail_exhausted id=%s attempts=%d", task.ID, task.Attempts)
		return []SweepRepair{{TaskID: task.ID, Action: "fail_exhausted"}}
	}

	_, err := s.tasks.ConditionalUpdate(ctx, task.ID, task.Version, func(t *model.Task) error {
		return t.Transition(model.StatusPending)
	})
	if err != nil {
		s.log(LogLevelDebug, "sweep_reclaim_skipped id=%s error=%v", task.ID, err)
		return nil
	}
	if err := s.queue.Enqueue(ctx, task.ID); err != nil {
		// Now stuck pending with attempts > 0: the next sweep retries
		// the enqueue.
		s.log(LogLevelError, "sweep_enqueue_failed id=%s error=%v", task.ID, err)
		return nil
	}
	s.log(LogLevelWarn, "sweep_reclaim_processing id=%s attempts=%d", task.ID, task.Attempts)
	return []SweepRepair{{TaskID: task.ID, Action: "reclaim_processing"}}
}

func (s *Sweeper) log(level LogLevel, format string, args ...any) {
	logf(s.logger, s.logLevel, level, "sweeper", format, args...)
}
