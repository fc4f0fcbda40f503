// Package store holds in-flight tasks and finished results, each under
// its own TTL. It is the single point of truth for whether a task id is
// processing, ready, or gone.
package store

import (
	"errors"
	"sync"
	"time"

	"github.com/solvegate/solvegate/internal/task"
)

// ErrNotActive is returned by MoveToResult when the task id is no longer
// in the active set, e.g. after a force reset detached it. The caller is
// expected to discard the result.
var ErrNotActive = errors.New("task is not active")

// NotFoundDescription is the error text served for unknown or expired ids.
const NotFoundDescription = "Response expired or task not exists"

// ExpiredDescription is the error text synthesized for swept tasks.
const ExpiredDescription = "Task expired"

// Store is the task and result storage used by the engine and the API.
//
// A task id lives in at most one of the two internal sets at any time:
// Put registers it as active, MoveToResult atomically retires it and
// records the result.
type Store interface {
	// Put registers a task as active.
	Put(t *task.Task) error

	// MoveToResult removes the task from the active set and records its
	// result in the same step. Results for detached ids are rejected
	// with ErrNotActive.
	MoveToResult(id string, r *task.Result) error

	// Remove drops a task from the active set without recording a
	// result. It reports whether the task was still active.
	Remove(id string) bool

	// Active reports whether the task id is in the active set.
	Active(id string) bool

	// Lookup returns the answer for a poll: the stored result if one
	// exists, a processing placeholder if the task is still active, and
	// a not-found error result otherwise.
	Lookup(id string) *task.Result

	// Counts returns the number of active tasks and stored results.
	Counts() (active, results int)

	// Sweep expires old tasks and results. Implementations gate it so
	// repeated calls within the sweep interval are no-ops.
	Sweep()

	// Clear drops all tasks and results.
	Clear() error
}

type Config struct {
	TaskTTL       time.Duration
	ResultTTL     time.Duration
	SweepInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		TaskTTL:       120 * time.Second,
		ResultTTL:     300 * time.Second,
		SweepInterval: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.TaskTTL <= 0 {
		c.TaskTTL = def.TaskTTL
	}
	if c.ResultTTL <= 0 {
		c.ResultTTL = def.ResultTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = def.SweepInterval
	}

	return c
}

type taskEntry struct {
	t    time.Time
	task *task.Task
}

type resultEntry struct {
	t      time.Time
	result *task.Result
}

// MemoryStore is the default single-process implementation backed by two
// time-indexed maps.
type MemoryStore struct {
	mu        sync.Mutex
	config    Config
	tasks     map[string]taskEntry
	results   map[string]resultEntry
	lastSweep time.Time
	now       func() time.Time // injectable clock for testing
}

func NewMemoryStore(cfg Config) *MemoryStore {
	s := &MemoryStore{
		config:  cfg.withDefaults(),
		tasks:   make(map[string]taskEntry),
		results: make(map[string]resultEntry),
		now:     time.Now,
	}
	s.lastSweep = s.now()

	return s
}

func (s *MemoryStore) Put(t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks[t.ID] = taskEntry{t: s.now(), task: t}
	s.maybeSweepLocked()

	return nil
}

func (s *MemoryStore) MoveToResult(id string, r *task.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	defer s.maybeSweepLocked()

	if _, ok := s.tasks[id]; !ok {
		return ErrNotActive
	}

	delete(s.tasks, id)
	s.results[id] = resultEntry{t: s.now(), result: r}

	return nil
}

func (s *MemoryStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.tasks[id]
	delete(s.tasks, id)

	return ok
}

func (s *MemoryStore) Active(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.tasks[id]

	return ok
}

func (s *MemoryStore) Lookup(id string) *task.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	defer s.maybeSweepLocked()

	if entry, ok := s.results[id]; ok {
		return entry.result
	}
	if _, ok := s.tasks[id]; ok {
		return &task.Result{TaskID: id, Status: task.StatusProcessing}
	}

	return task.Failed(id, NotFoundDescription)
}

func (s *MemoryStore) Counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.tasks), len(s.results)
}

func (s *MemoryStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.maybeSweepLocked()
}

// maybeSweepLocked runs the expulsion logic at most once per sweep
// interval. Callers must hold s.mu.
func (s *MemoryStore) maybeSweepLocked() {
	now := s.now()
	if now.Sub(s.lastSweep) < s.config.SweepInterval {
		return
	}

	for id, entry := range s.tasks {
		if now.Sub(entry.t) > s.config.TaskTTL {
			delete(s.tasks, id)
			s.results[id] = resultEntry{t: now, result: task.Failed(id, ExpiredDescription)}
		}
	}

	for id, entry := range s.results {
		if now.Sub(entry.t) > s.config.ResultTTL {
			delete(s.results, id)
		}
	}

	s.lastSweep = now
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = make(map[string]taskEntry)
	s.results = make(map[string]resultEntry)

	return nil
}
