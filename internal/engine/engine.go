// Package engine implements the solve pipeline: admission control, the
// bounded worker pool dispatching tasks to the solver, per-task timeout
// supervision, and the health monitor with auto-recovery.
package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/solvegate/solvegate/internal/breaker"
	"github.com/solvegate/solvegate/internal/metrics"
	"github.com/solvegate/solvegate/internal/solver"
	"github.com/solvegate/solvegate/internal/stats"
	"github.com/solvegate/solvegate/internal/store"
	"github.com/solvegate/solvegate/internal/task"
)

// Config collects the hand-tuned thresholds of the pipeline. They are
// deliberate knobs, not derived values.
type Config struct {
	Workers     int
	TaskTimeout time.Duration

	// Admission guards.
	NoSuccessWindow  time.Duration // reject when no success for this long
	FailureRateLimit float64       // reject above this failure ratio
	MinObservedTasks int           // failure-ratio guard needs this many finished tasks
	OverloadFactor   int           // reject when active > factor * workers

	// Health monitor.
	MonitorInterval    time.Duration
	RestartThreshold   int           // consecutive flagged ticks before auto-recovery
	UnhealthyNoSuccess time.Duration // flag when no success for this long
	MinSuccessRate     float64       // flag below this percentage
	StuckActiveFactor  int           // flag when active > factor * workers

	Breaker breaker.Config
}

func DefaultConfig() Config {
	return Config{
		Workers:            3,
		TaskTimeout:        120 * time.Second,
		NoSuccessWindow:    300 * time.Second,
		FailureRateLimit:   0.8,
		MinObservedTasks:   10,
		OverloadFactor:     3,
		MonitorInterval:    30 * time.Second,
		RestartThreshold:   5,
		UnhealthyNoSuccess: 600 * time.Second,
		MinSuccessRate:     20,
		StuckActiveFactor:  2,
		Breaker:            breaker.DefaultConfig(),
	}
}

// RejectionError is returned by Submit when admission control turns a
// task away. It never reaches the breaker: rejections are not execution
// outcomes.
type RejectionError struct {
	Reason      string
	Description string
}

func (e *RejectionError) Error() string {
	return e.Description
}

// The four admission rejections, in check order.
var (
	ErrBreakerOpen = &RejectionError{
		Reason:      "circuit breaker",
		Description: "Service temporarily unavailable (circuit breaker)",
	}
	ErrNoRecentSuccess = &RejectionError{
		Reason:      "no recent success",
		Description: "Service temporarily unavailable (no recent success)",
	}
	ErrHighFailureRate = &RejectionError{
		Reason:      "high failure rate",
		Description: "Service temporarily unavailable (high failure rate)",
	}
	ErrOverloaded = &RejectionError{
		Reason:      "overloaded",
		Description: "The solver is overloaded",
	}
)

// Sink receives every delivered result together with the task type and
// solve duration. Sinks run after the result has been moved into the store.
type Sink func(r *task.Result, taskType string, elapsed time.Duration)

// Engine owns the worker pool, the circuit breaker, and the rolling
// statistics. The store and solver are injected.
type Engine struct {
	config Config
	store  store.Store
	solver solver.Solver

	// mu guards the rebuildable pieces: auto-recovery swaps slots and
	// breaker in place while in-flight solves keep their captured
	// references.
	mu      sync.Mutex
	slots   chan struct{}
	breaker *breaker.Breaker
	stats   *stats.Stats

	timersMu sync.Mutex
	timers   map[string]*time.Timer

	monitorMu           sync.Mutex
	consecutiveFailures int

	sinks         []Sink
	recoveryHooks []func(issues []string)
}

func New(cfg Config, st store.Store, sv solver.Solver) *Engine {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = def.TaskTimeout
	}
	if cfg.NoSuccessWindow <= 0 {
		cfg.NoSuccessWindow = def.NoSuccessWindow
	}
	if cfg.FailureRateLimit <= 0 {
		cfg.FailureRateLimit = def.FailureRateLimit
	}
	if cfg.MinObservedTasks <= 0 {
		cfg.MinObservedTasks = def.MinObservedTasks
	}
	if cfg.OverloadFactor <= 0 {
		cfg.OverloadFactor = def.OverloadFactor
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = def.MonitorInterval
	}
	if cfg.RestartThreshold <= 0 {
		cfg.RestartThreshold = def.RestartThreshold
	}
	if cfg.UnhealthyNoSuccess <= 0 {
		cfg.UnhealthyNoSuccess = def.UnhealthyNoSuccess
	}
	if cfg.MinSuccessRate <= 0 {
		cfg.MinSuccessRate = def.MinSuccessRate
	}
	if cfg.StuckActiveFactor <= 0 {
		cfg.StuckActiveFactor = def.StuckActiveFactor
	}

	return &Engine{
		config:  cfg,
		store:   st,
		solver:  sv,
		slots:   make(chan struct{}, cfg.Workers),
		breaker: breaker.New(cfg.Breaker),
		stats:   stats.New(),
		timers:  make(map[string]*time.Timer),
	}
}

// AddSink registers a result sink, e.g. the solve archive.
func (e *Engine) AddSink(s Sink) {
	e.sinks = append(e.sinks, s)
}

// AddRecoveryHook registers a callback fired after every auto-recovery.
func (e *Engine) AddRecoveryHook(fn func(issues []string)) {
	e.recoveryHooks = append(e.recoveryHooks, fn)
}

// Submit admits a task and schedules it on the worker pool. The task is
// registered as active before a slot is acquired so queued tasks count
// toward the overload guard.
func (e *Engine) Submit(t *task.Task) error {
	e.mu.Lock()
	br := e.breaker
	st := e.stats
	slots := e.slots
	e.mu.Unlock()

	st.RecordSubmitted()

	if rej := e.admit(br, st); rej != nil {
		log.Printf("Task %s rejected: %s", t.ID, rej.Reason)
		metrics.RecordTaskRejected(rej.Reason)
		return rej
	}

	if err := e.store.Put(t); err != nil {
		return err
	}
	metrics.RecordTaskSubmitted(t.Type)

	e.armTimeout(t, st)
	go e.solve(t, slots, br, st)

	return nil
}

// admit applies the four admission guards in order.
func (e *Engine) admit(br *breaker.Breaker, st *stats.Stats) *RejectionError {
	if br.ShouldReject() {
		return ErrBreakerOpen
	}

	if st.SinceLastSuccess() > e.config.NoSuccessWindow {
		return ErrNoRecentSuccess
	}

	snap := st.Snapshot()
	if snap.Total > e.config.MinObservedTasks && st.FailureRate() > e.config.FailureRateLimit {
		return ErrHighFailureRate
	}

	// The submitted task counts toward the limit, so with capacity w and
	// factor f the (w*f+1)-th concurrent task is turned away.
	active, _ := e.store.Counts()
	if active >= e.config.Workers*e.config.OverloadFactor {
		return ErrOverloaded
	}

	return nil
}

// solve runs on its own goroutine. It captures the slot channel, breaker
// and stats that were current at submission so a force reset cannot mix
// generations.
func (e *Engine) solve(t *task.Task, slots chan struct{}, br *breaker.Breaker, st *stats.Stats) {
	start := time.Now()

	slots <- struct{}{}
	defer func() { <-slots }()
	defer e.cancelTimeout(t.ID)

	// Detached while waiting for a slot: timed out, swept, or reset.
	if !e.store.Active(t.ID) {
		log.Printf("Task %s was cancelled", t.ID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.config.TaskTimeout)
	defer cancel()

	token, err := e.solver.Solve(ctx, t)

	var result *task.Result
	success := false
	switch {
	case err != nil:
		result = task.Failed(t.ID, err.Error())
		log.Printf("Task %s failed: %v", t.ID, err)
	case token == "":
		result = task.Failed(t.ID, "Token not found")
		log.Printf("Task %s failed: token not found", t.ID)
	default:
		result = task.Ready(t.ID, token, t.Type)
		success = true
		log.Printf("Task %s completed in %.1fs", t.ID, time.Since(start).Seconds())
	}

	br.Report(success)
	if success {
		st.RecordSuccess()
	} else {
		st.RecordFailure()
	}

	e.deliver(result, t.Type, time.Since(start))
}

// deliver moves a result into the store and fans it out to the sinks.
// Results for detached tasks are discarded silently.
func (e *Engine) deliver(r *task.Result, taskType string, elapsed time.Duration) {
	if err := e.store.MoveToResult(r.TaskID, r); err != nil {
		if errors.Is(err, store.ErrNotActive) {
			log.Printf("Discarding result for detached task %s", r.TaskID)
		} else {
			log.Printf("Failed to store result for task %s: %v", r.TaskID, err)
		}
		return
	}

	if r.Status == task.StatusReady {
		metrics.RecordTaskCompleted(taskType, elapsed)
	} else {
		metrics.RecordTaskFailed(taskType, elapsed)
	}

	for _, sink := range e.sinks {
		sink(r, taskType, elapsed)
	}
}

// armTimeout starts the per-task supervisor. It fires at most once and
// is cancelled when the task finishes first.
func (e *Engine) armTimeout(t *task.Task, st *stats.Stats) {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()

	e.timers[t.ID] = time.AfterFunc(e.config.TaskTimeout, func() {
		e.expire(t, st)
	})
}

func (e *Engine) cancelTimeout(id string) {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()

	if timer, ok := e.timers[id]; ok {
		timer.Stop()
		delete(e.timers, id)
	}
}

// expire force-completes a task that is still active when its deadline
// passes. The store move is the single-assignment race against the
// solve path: whichever loses finds the task gone and backs off.
func (e *Engine) expire(t *task.Task, st *stats.Stats) {
	e.cancelTimeout(t.ID)

	result := task.Failed(t.ID, "Task timeout")
	if err := e.store.MoveToResult(t.ID, result); err != nil {
		return
	}

	log.Printf("Task %s timed out after %s", t.ID, e.config.TaskTimeout)
	st.RecordTimeout()
	metrics.RecordTaskTimedOut(t.Type)

	for _, sink := range e.sinks {
		sink(result, t.Type, e.config.TaskTimeout)
	}
}

// Lookup answers a result poll straight from the store.
func (e *Engine) Lookup(id string) *task.Result {
	return e.store.Lookup(id)
}

// Workers returns the configured pool capacity.
func (e *Engine) Workers() int {
	return e.config.Workers
}

// Counts reports the store's active task and stored result counts.
func (e *Engine) Counts() (active, results int) {
	return e.store.Counts()
}

// ForceReset cancels every timeout supervisor, clears the store, and
// rebuilds the breaker and worker pool in place. In-flight solves keep
// their old references and their eventual results are discarded.
func (e *Engine) ForceReset() {
	log.Printf("Force resetting engine...")

	e.timersMu.Lock()
	for id, timer := range e.timers {
		timer.Stop()
		delete(e.timers, id)
	}
	e.timersMu.Unlock()

	if err := e.store.Clear(); err != nil {
		log.Printf("Failed to clear store during reset: %v", err)
	}

	e.mu.Lock()
	e.breaker = breaker.New(e.config.Breaker)
	e.slots = make(chan struct{}, e.config.Workers)
	e.stats = stats.New()
	e.mu.Unlock()

	e.monitorMu.Lock()
	e.consecutiveFailures = 0
	e.monitorMu.Unlock()

	metrics.RecordAutoRecovery()
	log.Printf("Engine reset completed")
}
