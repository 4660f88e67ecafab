package service

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/USTC-KnowledgeComputingLab/MMDocParser/internal/config"
	"github.com/USTC-KnowledgeComputingLab/MMDocParser/internal/model"
	"github.com/USTC-KnowledgeComputingLab/MMDocParser/internal/parser"
	"github.com/USTC-KnowledgeComputingLab/MMDocParser/internal/queue"
	"github.com/USTC-KnowledgeComputingLab/MMDocParser/internal/storage"
	"github.com/USTC-KnowledgeComputingLab/MMDocParser/internal/store"
	"github.com/USTC-KnowledgeComputingLab/MMDocParser/internal/worker"
)

type fixture struct {
	svc     *Service
	queue   *queue.MemoryQueue
	tasks   *store.MemoryStore
	objects *storage.MemoryStore
	pool    *worker.Pool
}

// stubParser echoes the input bytes into a single text chunk.
type stubParser struct{}

func (stubParser) Name() string                                { return "stub" }
func (stubParser) CanParse(filename string, sniff []byte) bool { return true }
func (stubParser) Parse(ctx context.Context, data []byte, opts parser.Options) (*parser.Document, error) {
	return &parser.Document{
		Title:  opts.Filename,
		Chunks: []parser.Chunk{{Type: parser.ChunkText, Name: "body", Content: string(data)}},
	}, nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	q := queue.NewMemoryQueue(16)
	tasks := store.NewMemoryStore()
	objects := storage.NewMemoryStore()
	reg := parser.NewRegistry(stubParser{})
	logger := log.New(io.Discard, "", 0)

	wcfg := cfg.Worker
	wcfg.Count = 1
	wcfg.PollTimeoutSec = 1

	return &fixture{
		svc:     New(cfg.Submit, tasks, q, objects, reg, logger),
		queue:   q,
		tasks:   tasks,
		objects: objects,
		pool:    worker.NewPool(wcfg, "results", q, tasks, objects, reg, logger, worker.LogLevelError),
	}
}

func TestSubmitCreatesPendingTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.svc.Submit(ctx, []string{"documents/report.pdf"}, "chemistry", "document_analysis")
	require.NoError(t, err)
	require.True(t, model.ValidateID(id))

	info, err := f.svc.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, info.Status)
	assert.Zero(t, info.Attempts)
	assert.Equal(t, 1, f.queue.Len())
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		refs     []string
		template string
		taskType string
	}{
		{"empty refs", nil, "chemistry", "document_analysis"},
		{"blank ref", []string{""}, "chemistry", "document_analysis"},
		{"bad template", []string{"documents/a.pdf"}, "astrology", "document_analysis"},
		{"bad task type", []string{"documents/a.pdf"}, "chemistry", "mind_reading"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Submit(ctx, tt.refs, tt.template, tt.taskType)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
		})
	}

	// Unrecognized classifications fail at submission, not at parse
	// time: nothing reached the queue or the store.
	assert.Zero(t, f.queue.Len())
	ids, err := f.tasks.ListIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSubmitFileCountLimit(t *testing.T) {
	f := newFixture(t)
	refs := make([]string, 21)
	for i := range refs {
		refs[i] = "documents/a.pdf"
	}
	_, err := f.svc.Submit(context.Background(), refs, "chemistry", "document_analysis")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "input_refs", ve.Field)
}

func TestGetStatusUnknownTask(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetStatus(context.Background(), "task_0000000000_00000000")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestGetResultNotReady(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.svc.Submit(ctx, []string{"documents/report.pdf"}, "chemistry", "document_analysis")
	require.NoError(t, err)

	_, err = f.svc.GetResult(ctx, id)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestSubmitProcessResultRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, f.objects.Put(ctx, "documents/report.pdf", []byte("pdf bytes")))

	id, err := f.svc.Submit(ctx, []string{"documents/report.pdf"}, "chemistry", "document_analysis")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- f.pool.Run(ctx) }()

	require.Eventually(t, func() bool {
		info, err := f.svc.GetStatus(context.Background(), id)
		return err == nil && info.Status == model.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	res, err := f.svc.GetResult(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, res.TaskID)
	require.NotEmpty(t, res.ResultRef)

	// Byte-identical to what the worker stored.
	stored, err := f.objects.Get(context.Background(), res.ResultRef)
	require.NoError(t, err)
	assert.Equal(t, stored, res.Data)

	cancel()
	<-done
}

func TestGetResultFailedTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, err := model.NewTask([]string{"documents/a.bin"}, "chemistry", "document_analysis")
	require.NoError(t, err)
	require.NoError(t, f.tasks.Create(ctx, task))
	_, err = f.tasks.ConditionalUpdate(ctx, task.ID, 0, func(tk *model.Task) error {
		if err := tk.Transition(model.StatusProcessing); err != nil {
			return err
		}
		tk.Attempts = 1
		return nil
	})
	require.NoError(t, err)
	_, err = f.tasks.ConditionalUpdate(ctx, task.ID, 1, func(tk *model.Task) error {
		if err := tk.Transition(model.StatusFailed); err != nil {
			return err
		}
		tk.Error = &model.TaskError{Kind: model.KindUnsupportedFormat, Message: "no parser for .bin"}
		return nil
	})
	require.NoError(t, err)

	_, err = f.svc.GetResult(ctx, task.ID)
	var tfe *TaskFailedError
	require.ErrorAs(t, err, &tfe)
	// Recorded error surfaces verbatim.
	assert.Equal(t, model.KindUnsupportedFormat, tfe.Cause.Kind)
	assert.Equal(t, "no parser for .bin", tfe.Cause.Message)
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.HealthCheck(context.Background()))
}

func TestSupportedFormats(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, []string{"stub"}, f.svc.SupportedFormats())
}

func TestSubmitEnqueueFailure(t *testing.T) {
	f := newFixture(t)
	f.queue.Close()

	_, err := f.svc.Submit(context.Background(), []string{"documents/a.pdf"}, "chemistry", "document_analysis")
	require.Error(t, err)
	assert.True(t, errors.Is(err, queue.ErrClosed))
}
