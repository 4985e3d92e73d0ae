package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedule_Validation(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	_, err := s.Schedule("no-fn", "10s", nil)
	assert.Error(t, err)

	_, err = s.Schedule("bad", "often", func() {})
	assert.Error(t, err)

	_, err = s.Schedule("negative", "-5s", func() {})
	assert.Error(t, err)

	_, err = s.Schedule("interval", "10s", func() {})
	assert.NoError(t, err)

	_, err = s.Schedule("cron", "*/5 * * * *", func() {})
	assert.NoError(t, err)

	assert.Equal(t, 2, s.Count())
}

func TestIntervalTaskFires(t *testing.T) {
	s := New(nil)
	var fired atomic.Int32
	_, err := s.Schedule("tick", "10ms", func() { fired.Add(1) })
	require.NoError(t, err)

	s.Start()
	assert.Eventually(t, func() bool { return fired.Load() >= 3 },
		2*time.Second, 5*time.Millisecond)
	s.Stop()

	// No further firings after Stop.
	n := fired.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, fired.Load())
}

func TestScheduleAfterStart(t *testing.T) {
	s := New(nil)
	s.Start()
	defer s.Stop()

	var fired atomic.Int32
	_, err := s.Schedule("late", "10ms", func() { fired.Add(1) })
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return fired.Load() >= 1 },
		2*time.Second, 5*time.Millisecond)
}

func TestCancel(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	var fired atomic.Int32
	id, err := s.Schedule("tick", "10ms", func() { fired.Add(1) })
	require.NoError(t, err)
	s.Start()

	assert.Eventually(t, func() bool { return fired.Load() >= 1 },
		2*time.Second, 5*time.Millisecond)

	s.Cancel(id)
	assert.Equal(t, 0, s.Count())
	n := fired.Load()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, fired.Load(), n+1) // at most one in-flight tick
}

func TestStopIsIdempotentAndFinal(t *testing.T) {
	s := New(nil)
	s.Start()
	s.Stop()
	s.Stop()

	_, err := s.Schedule("late", "10ms", func() {})
	assert.Error(t, err)
}
