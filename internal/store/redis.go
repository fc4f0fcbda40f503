package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/solvegate/solvegate/internal/task"

	"context"
)

const (
	keyTasks         = "tasks"
	keyResults       = "results"
	keyTasksByTime   = "tasks_by_time"
	keyResultsByTime = "results_by_time"
)

// RedisStore keeps tasks and results in Redis so several gateway
// processes can share one result cache. Entries live in two hashes with
// companion time-indexed sorted sets driving the sweep.
type RedisStore struct {
	mu        sync.Mutex
	client    *redis.Client
	ctx       context.Context
	config    Config
	lastSweep time.Time
	now       func() time.Time
}

func NewRedisStore(redisAddr string, cfg Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	s := &RedisStore{
		client: client,
		ctx:    ctx,
		config: cfg.withDefaults(),
		now:    time.Now,
	}
	s.lastSweep = s.now()

	return s, nil
}

func (s *RedisStore) Put(t *task.Task) error {
	taskJSON, err := t.ToJSON()
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(s.ctx, keyTasks, t.ID, taskJSON)
	pipe.ZAdd(s.ctx, keyTasksByTime, redis.Z{
		Score:  float64(s.now().Unix()),
		Member: t.ID,
	})
	if _, err := pipe.Exec(s.ctx); err != nil {
		return err
	}

	s.Sweep()

	return nil
}

func (s *RedisStore) MoveToResult(id string, r *task.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.client.HExists(s.ctx, keyTasks, id).Result()
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotActive
	}

	resultJSON, err := r.ToJSON()
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.HDel(s.ctx, keyTasks, id)
	pipe.ZRem(s.ctx, keyTasksByTime, id)
	pipe.HSet(s.ctx, keyResults, id, resultJSON)
	pipe.ZAdd(s.ctx, keyResultsByTime, redis.Z{
		Score:  float64(s.now().Unix()),
		Member: id,
	})
	_, err = pipe.Exec(s.ctx)

	s.maybeSweepLocked()

	return err
}

func (s *RedisStore) Remove(id string) bool {
	removed, err := s.client.HDel(s.ctx, keyTasks, id).Result()
	if err != nil {
		return false
	}

	s.client.ZRem(s.ctx, keyTasksByTime, id)

	return removed > 0
}

func (s *RedisStore) Active(id string) bool {
	exists, err := s.client.HExists(s.ctx, keyTasks, id).Result()

	return err == nil && exists
}

func (s *RedisStore) Lookup(id string) *task.Result {
	defer s.Sweep()

	resultJSON, err := s.client.HGet(s.ctx, keyResults, id).Result()
	if err == nil {
		if r, err := task.ResultFromJSON(resultJSON); err == nil {
			return r
		}
	}

	if s.Active(id) {
		return &task.Result{TaskID: id, Status: task.StatusProcessing}
	}

	return task.Failed(id, NotFoundDescription)
}

func (s *RedisStore) Counts() (int, int) {
	active, err := s.client.HLen(s.ctx, keyTasks).Result()
	if err != nil {
		return 0, 0
	}

	results, err := s.client.HLen(s.ctx, keyResults).Result()
	if err != nil {
		return int(active), 0
	}

	return int(active), int(results)
}

func (s *RedisStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.maybeSweepLocked()
}

func (s *RedisStore) maybeSweepLocked() {
	now := s.now()
	if now.Sub(s.lastSweep) < s.config.SweepInterval {
		return
	}
	s.lastSweep = now

	taskCutoff := fmt.Sprintf("%d", now.Add(-s.config.TaskTTL).Unix())
	expired, err := s.client.ZRangeByScore(s.ctx, keyTasksByTime, &redis.ZRangeBy{
		Min: "-inf",
		Max: taskCutoff,
	}).Result()
	if err == nil {
		for _, id := range expired {
			resultJSON, err := task.Failed(id, ExpiredDescription).ToJSON()
			if err != nil {
				continue
			}

			pipe := s.client.TxPipeline()
			pipe.HDel(s.ctx, keyTasks, id)
			pipe.ZRem(s.ctx, keyTasksByTime, id)
			pipe.HSet(s.ctx, keyResults, id, resultJSON)
			pipe.ZAdd(s.ctx, keyResultsByTime, redis.Z{
				Score:  float64(now.Unix()),
				Member: id,
			})
			_, _ = pipe.Exec(s.ctx)
		}
	}

	resultCutoff := fmt.Sprintf("%d", now.Add(-s.config.ResultTTL).Unix())
	stale, err := s.client.ZRangeByScore(s.ctx, keyResultsByTime, &redis.ZRangeBy{
		Min: "-inf",
		Max: resultCutoff,
	}).Result()
	if err == nil {
		for _, id := range stale {
			pipe := s.client.TxPipeline()
			pipe.HDel(s.ctx, keyResults, id)
			pipe.ZRem(s.ctx, keyResultsByTime, id)
			_, _ = pipe.Exec(s.ctx)
		}
	}
}

func (s *RedisStore) Clear() error {
	return s.client.Del(s.ctx, keyTasks, keyResults, keyTasksByTime, keyResultsByTime).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
