// Package stats tracks rolling task counters used by admission control
// and the health monitor. Counters accumulate until an explicit reset.
package stats

import (
	"sync"
	"time"
)

type Stats struct {
	mu          sync.Mutex
	total       int
	successful  int
	failed      int
	timeouts    int
	lastSuccess time.Time
	now         func() time.Time // injectable clock for testing
}

type Snapshot struct {
	Total       int       `json:"total_tasks"`
	Successful  int       `json:"successful_tasks"`
	Failed      int       `json:"failed_tasks"`
	Timeouts    int       `json:"timeout_tasks"`
	LastSuccess time.Time `json:"last_success"`
}

func New() *Stats {
	s := &Stats{now: time.Now}
	s.lastSuccess = s.now()

	return s
}

// RecordSubmitted counts every submission attempt, accepted or not.
func (s *Stats) RecordSubmitted() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
}

func (s *Stats) RecordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.successful++
	s.lastSuccess = s.now()
}

func (s *Stats) RecordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failed++
}

// RecordTimeout counts a task killed by its timeout supervisor. Timeouts
// are tracked separately from solve failures.
func (s *Stats) RecordTimeout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.timeouts++
}

// SinceLastSuccess returns the elapsed time since the last successful
// solve, measured from construction if none has happened yet.
func (s *Stats) SinceLastSuccess() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.now().Sub(s.lastSuccess)
}

// FailureRate returns failed / (failed + successful), or 0 when no task
// has finished yet.
func (s *Stats) FailureRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	finished := s.successful + s.failed
	if finished == 0 {
		return 0
	}

	return float64(s.failed) / float64(finished)
}

// SuccessRate returns successful tasks as a percentage of all submitted.
func (s *Stats) SuccessRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := s.total
	if total == 0 {
		total = 1
	}

	return float64(s.successful) / float64(total) * 100
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Total:       s.total,
		Successful:  s.successful,
		Failed:      s.failed,
		Timeouts:    s.timeouts,
		LastSuccess: s.lastSuccess,
	}
}

// Reset zeroes all counters and restarts the last-success clock.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total = 0
	s.successful = 0
	s.failed = 0
	s.timeouts = 0
	s.lastSuccess = s.now()
}
