package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStats_Counters(t *testing.T) {
	s := New()

	s.RecordSubmitted()
	s.RecordSubmitted()
	s.RecordSuccess()
	s.RecordFailure()
	s.RecordTimeout()

	snap := s.Snapshot()
	assert.Equal(t, 2, snap.Total)
	assert.Equal(t, 1, snap.Successful)
	assert.Equal(t, 1, snap.Failed)
	assert.Equal(t, 1, snap.Timeouts)
}

func TestStats_FailureRate(t *testing.T) {
	s := New()

	assert.Equal(t, 0.0, s.FailureRate())

	s.RecordSuccess()
	s.RecordFailure()
	s.RecordFailure()
	s.RecordFailure()

	assert.InDelta(t, 0.75, s.FailureRate(), 0.001)
}

func TestStats_SuccessRate(t *testing.T) {
	s := New()

	assert.Equal(t, 0.0, s.SuccessRate())

	for i := 0; i < 10; i++ {
		s.RecordSubmitted()
	}
	s.RecordSuccess()
	s.RecordSuccess()

	assert.InDelta(t, 20.0, s.SuccessRate(), 0.001)
}

func TestStats_SinceLastSuccess(t *testing.T) {
	now := time.Now()
	s := New()
	s.now = func() time.Time { return now }
	s.lastSuccess = now

	now = now.Add(5 * time.Minute)
	assert.Equal(t, 5*time.Minute, s.SinceLastSuccess())

	s.RecordSuccess()
	assert.Equal(t, time.Duration(0), s.SinceLastSuccess())
}

func TestStats_Reset(t *testing.T) {
	s := New()

	s.RecordSubmitted()
	s.RecordSuccess()
	s.RecordFailure()
	s.RecordTimeout()

	s.Reset()

	snap := s.Snapshot()
	assert.Equal(t, 0, snap.Total)
	assert.Equal(t, 0, snap.Successful)
	assert.Equal(t, 0, snap.Failed)
	assert.Equal(t, 0, snap.Timeouts)
	assert.False(t, snap.LastSuccess.IsZero())
}
