// Package breaker implements the circuit breaker guarding the solver
// backend.
//
// States:
//   - CLOSED    (normal): failures decay on success, trip at threshold
//   - OPEN      (tripped): all new work rejected
//   - HALF_OPEN (probing): one failure reopens, one success closes
//
// Recovery from OPEN to HALF_OPEN is passive: it is evaluated on each
// outcome report once the recovery timeout has elapsed since the last
// failure, not on a separate timer.
package breaker

import (
	"sync"
	"time"
)

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

type Config struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
	}
}

type Breaker struct {
	mu          sync.Mutex
	config      Config
	state       State
	failures    int
	lastFailure time.Time
	now         func() time.Time // injectable clock for testing
}

type Snapshot struct {
	State    State `json:"state"`
	Failures int   `json:"failures"`
}

func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultConfig().RecoveryTimeout
	}

	return &Breaker{
		config: cfg,
		state:  Closed,
		now:    time.Now,
	}
}

// Report records a task outcome and applies the resulting transitions.
func (b *Breaker) Report(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		switch b.state {
		case HalfOpen:
			b.state = Closed
			b.failures = 0
		case Closed:
			if b.failures > 0 {
				b.failures--
			}
		}
	} else {
		b.failures++
		b.lastFailure = b.now()

		switch b.state {
		case Closed:
			if b.failures >= b.config.FailureThreshold {
				b.state = Open
			}
		case HalfOpen:
			b.state = Open
		}
	}

	// Passive recovery: OPEN -> HALF_OPEN after the recovery timeout.
	if b.state == Open && b.now().Sub(b.lastFailure) > b.config.RecoveryTimeout {
		b.state = HalfOpen
		b.failures = 0
	}
}

// ShouldReject reports whether new work must be turned away.
func (b *Breaker) ShouldReject() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state == Open
}

func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Snapshot{
		State:    b.state,
		Failures: b.failures,
	}
}
