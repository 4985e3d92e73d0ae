package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testWork struct {
	id int
}

func TestNewPool_Defaults(t *testing.T) {
	p := NewPool[testWork](0, func(context.Context, testWork) error { return nil })
	assert.Equal(t, DefaultWorkers, p.workers)
	assert.Equal(t, DefaultQueueSize, p.queueSize)

	p = NewPool[testWork](3, func(context.Context, testWork) error { return nil }, WithQueueSize[testWork](16))
	assert.Equal(t, 3, p.workers)
	assert.Equal(t, 16, p.queueSize)
}

func TestNewPool_NilProcessorPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewPool[testWork](2, nil)
	})
}

func TestPool_SubmitBeforeStart(t *testing.T) {
	p := NewPool[testWork](2, func(context.Context, testWork) error { return nil })
	assert.ErrorIs(t, p.Submit(testWork{}), ErrPoolNotStarted)
}

func TestPool_ProcessesAllSubmitted(t *testing.T) {
	var processed atomic.Int64
	p := NewPool[testWork](4, func(_ context.Context, _ testWork) error {
		processed.Add(1)
		return nil
	})
	require.NoError(t, p.Start(context.Background()))

	for i := 0; i < 100; i++ {
		require.NoError(t, p.Submit(testWork{id: i}))
	}
	require.NoError(t, p.Stop(5*time.Second))
	assert.Equal(t, int64(100), processed.Load())

	stats := p.Stats()
	assert.Equal(t, int64(100), stats.Submitted)
	assert.Equal(t, int64(100), stats.Processed)
	assert.Equal(t, int64(0), stats.Dropped)
}

func TestPool_StopDrainsQueue(t *testing.T) {
	var processed atomic.Int64
	block := make(chan struct{})
	p := NewPool[testWork](1, func(_ context.Context, _ testWork) error {
		<-block
		processed.Add(1)
		return nil
	}, WithQueueSize[testWork](10))
	require.NoError(t, p.Start(context.Background()))

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(testWork{id: i}))
	}
	close(block)

	// Stop must not return until every accepted item has been processed.
	require.NoError(t, p.Stop(5*time.Second))
	assert.Equal(t, int64(5), processed.Load())
}

func TestPool_QueueFullDrops(t *testing.T) {
	block := make(chan struct{})
	p := NewPool[testWork](1, func(_ context.Context, _ testWork) error {
		<-block
		return nil
	}, WithQueueSize[testWork](1))
	require.NoError(t, p.Start(context.Background()))

	// First item occupies the worker, second fills the queue; more drop.
	require.NoError(t, p.Submit(testWork{id: 0}))
	var full bool
	for i := 1; i < 10; i++ {
		if err := p.Submit(testWork{id: i}); errors.Is(err, ErrQueueFull) {
			full = true
			break
		}
	}
	assert.True(t, full)
	assert.Positive(t, p.Stats().Dropped)

	close(block)
	require.NoError(t, p.Stop(5*time.Second))
}

func TestPool_SubmitAfterStop(t *testing.T) {
	p := NewPool[testWork](1, func(context.Context, testWork) error { return nil })
	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Stop(time.Second))
	assert.ErrorIs(t, p.Submit(testWork{}), ErrPoolStopped)

	// Second stop is a no-op.
	assert.NoError(t, p.Stop(time.Second))
}

func TestPool_DoubleStart(t *testing.T) {
	p := NewPool[testWork](1, func(context.Context, testWork) error { return nil })
	require.NoError(t, p.Start(context.Background()))
	assert.ErrorIs(t, p.Start(context.Background()), ErrPoolAlreadyStarted)
	require.NoError(t, p.Stop(time.Second))
}

func TestPool_FailedCounter(t *testing.T) {
	p := NewPool[testWork](2, func(_ context.Context, w testWork) error {
		if w.id%2 == 0 {
			return errors.New("boom")
		}
		return nil
	})
	require.NoError(t, p.Start(context.Background()))
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit(testWork{id: i}))
	}
	require.NoError(t, p.Stop(5*time.Second))
	assert.Equal(t, int64(5), p.Stats().Failed)
}

func TestPool_PrometheusRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPool[testWork](2, func(context.Context, testWork) error { return nil },
		WithPrometheus[testWork](reg, "event_post"))
	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Submit(testWork{}))
	require.NoError(t, p.Stop(5*time.Second))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["event_post_submitted_total"])
	assert.True(t, names["event_post_processed_total"])
}
