package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/USTC-KnowledgeComputingLab/MMDocParser/internal/model"
)

// MemoryStore is an in-process TaskStore for tests. Records are kept
// as deep copies so callers cannot mutate stored state without going
// through ConditionalUpdate.
type MemoryStore struct {
	mu    sync.Mutex
	tasks map[string]*model.Task
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*model.Task)}
}

func cloneTask(t *model.Task) *model.Task {
	data, _ := json.Marshal(t)
	var out model.Task
	_ = json.Unmarshal(data, &out)
	return &out
}

func (s *MemoryStore) Create(ctx context.Context, task *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; exists {
		return ErrAlreadyExists
	}
	s.tasks[task.ID] = cloneTask(task)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTask(task), nil
}

func (s *MemoryStore) ConditionalUpdate(ctx context.Context, id string, expectedVersion int, mutate Mutation) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	if current.Version != expectedVersion {
		return nil, ErrVersionConflict
	}

	candidate := cloneTask(current)
	if err := mutate(candidate); err != nil {
		return nil, err
	}
	candidate.Version++
	s.tasks[id] = candidate
	return cloneTask(candidate), nil
}

func (s *MemoryStore) ListIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
