package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/USTC-KnowledgeComputingLab/MMDocParser/internal/model"
)

// RedisStore keeps each task record as JSON under
// <statusPrefix>:<id> plus a set of known ids for the sweep.
// Conditional updates run inside WATCH/MULTI so two workers racing on
// a duplicate delivery cannot both win.
type RedisStore struct {
	client       *redis.Client
	statusPrefix string
	statusTTL    time.Duration
}

func NewRedisStore(client *redis.Client, statusPrefix string, statusTTL time.Duration) *RedisStore {
	return &RedisStore{
		client:       client,
		statusPrefix: statusPrefix,
		statusTTL:    statusTTL,
	}
}

func (s *RedisStore) taskKey(id string) string {
	return s.statusPrefix + ":" + id
}

func (s *RedisStore) indexKey() string {
	return s.statusPrefix + ":ids"
}

func (s *RedisStore) Create(ctx context.Context, task *model.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", task.ID, err)
	}

	set, err := s.client.SetNX(ctx, s.taskKey(task.ID), data, s.statusTTL).Result()
	if err != nil {
		return fmt.Errorf("create task %s: %w", task.ID, err)
	}
	if !set {
		return ErrAlreadyExists
	}
	if err := s.client.SAdd(ctx, s.indexKey(), task.ID).Err(); err != nil {
		return fmt.Errorf("index task %s: %w", task.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*model.Task, error) {
	data, err := s.client.Get(ctx, s.taskKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	var task model.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("unmarshal task %s: %w", id, err)
	}
	return &task, nil
}

func (s *RedisStore) ConditionalUpdate(ctx context.Context, id string, expectedVersion int, mutate Mutation) (*model.Task, error) {
	key := s.taskKey(id)
	var updated *model.Task

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}

		var task model.Task
		if err := json.Unmarshal(data, &task); err != nil {
			return fmt.Errorf("unmarshal task %s: %w", id, err)
		}
		if task.Version != expectedVersion {
			return ErrVersionConflict
		}

		if err := mutate(&task); err != nil {
			return err
		}
		task.Version++

		out, err := json.Marshal(&task)
		if err != nil {
			return fmt.Errorf("marshal task %s: %w", id, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, s.statusTTL)
			return nil
		})
		if err != nil {
			return err
		}
		updated = &task
		return nil
	}, key)

	if err != nil {
		// A concurrent write between WATCH and EXEC aborts the
		// transaction; surface it as the same stale-token conflict.
		if errors.Is(err, redis.TxFailedErr) {
			return nil, ErrVersionConflict
		}
		return nil, err
	}
	return updated, nil
}

func (s *RedisStore) ListIDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list task ids: %w", err)
	}
	return ids, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
