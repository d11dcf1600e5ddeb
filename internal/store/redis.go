package store

import (
	"context"
	"time"

	"github.com/flowforge/enginecore/internal/engine"
	"github.com/flowforge/enginecore/internal/platform/cache"
	"github.com/flowforge/enginecore/internal/platform/logger"
)

// RedisExecutionStore wraps a durable ExecutionStore with a
// cache-aside progress cache, so a status poll for a running
// execution (the common case during a long-running workflow) hits
// Redis instead of the backing database on every call. Writes always
// go through to the backing store first; the cache only ever serves
// reads and is invalidated, never authoritative.
type RedisExecutionStore struct {
	backing engine.ExecutionStore
	cache   *cache.RedisCache
	ttl     time.Duration
	log     logger.Logger
}

// NewRedisExecutionStore wraps backing with a Redis progress cache.
// ttl bounds how long a cached execution snapshot is served before a
// fresh read goes to backing; pass 0 to use the cache's default.
func NewRedisExecutionStore(backing engine.ExecutionStore, rc *cache.RedisCache, ttl time.Duration, log logger.Logger) *RedisExecutionStore {
	return &RedisExecutionStore{backing: backing, cache: rc, ttl: ttl, log: log}
}

func (s *RedisExecutionStore) Save(exec *engine.Execution) error {
	if err := s.backing.Save(exec); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.cache.Set(ctx, progressKey(exec.ID), exec, s.ttl); err != nil {
		s.log.Warn("execution progress cache: set failed", "executionId", exec.ID, "error", err)
	}
	return nil
}

func (s *RedisExecutionStore) FindById(id string) (*engine.Execution, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var cached engine.Execution
	if err := s.cache.Get(ctx, progressKey(id), &cached); err == nil {
		return &cached, nil
	}

	exec, err := s.backing.FindById(id)
	if err != nil || exec == nil {
		return exec, err
	}
	if err := s.cache.Set(ctx, progressKey(id), exec, s.ttl); err != nil {
		s.log.Warn("execution progress cache: set failed", "executionId", id, "error", err)
	}
	return exec, nil
}

// FindByWorkflowIdDesc, FindRunning and FindByTimeRange return lists,
// which churn too fast to be worth caching; they pass straight
// through to backing.
func (s *RedisExecutionStore) FindByWorkflowIdDesc(workflowID string, limit int) ([]*engine.Execution, error) {
	return s.backing.FindByWorkflowIdDesc(workflowID, limit)
}

func (s *RedisExecutionStore) FindRunning() ([]*engine.Execution, error) {
	return s.backing.FindRunning()
}

func (s *RedisExecutionStore) FindByTimeRange(start, end time.Time) ([]*engine.Execution, error) {
	return s.backing.FindByTimeRange(start, end)
}

func (s *RedisExecutionStore) DeleteAll(workflowID string) error {
	if err := s.backing.DeleteAll(workflowID); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.cache.InvalidatePattern(ctx, "execprogress:*"); err != nil {
		s.log.Warn("execution progress cache: invalidate failed", "workflowId", workflowID, "error", err)
	}
	return nil
}

func progressKey(executionID string) string {
	return "execprogress:" + executionID
}
