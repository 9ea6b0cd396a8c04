package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestQueueProcessesJobs(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	q := NewQueue("test", func(_ context.Context, job Job) error {
		mu.Lock()
		seen = append(seen, job.Payload.(string))
		mu.Unlock()
		return nil
	}, QueueConfig{Workers: 2, BufferSize: 8, Logger: zap.NewNop()})

	q.Start(context.Background())
	require.NoError(t, q.Enqueue(Job{Payload: "a"}))
	require.NoError(t, q.Enqueue(Job{Payload: "b"}))
	require.NoError(t, q.Stop(context.Background()))

	assert.ElementsMatch(t, []string{"a", "b"}, seen)
}

func TestQueueCoalescesPendingKeys(t *testing.T) {
	block := make(chan struct{})
	var runs int32
	q := NewQueue("test", func(_ context.Context, job Job) error {
		if job.Key == "blocker" {
			<-block
			return nil
		}
		atomic.AddInt32(&runs, 1)
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 8})

	q.Start(context.Background())
	require.NoError(t, q.Enqueue(Job{Key: "blocker"}))
	// Wait until the worker has picked the blocker up so the section jobs stay buffered.
	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		_, waiting := q.pending["blocker"]
		return !waiting
	}, time.Second, time.Millisecond)

	require.NoError(t, q.Enqueue(Job{Key: "section:ongoingBatches"}))
	require.NoError(t, q.Enqueue(Job{Key: "section:ongoingBatches"}))
	require.NoError(t, q.Enqueue(Job{Key: "section:ongoingBatches"}))
	close(block)
	require.NoError(t, q.Stop(context.Background()))

	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
}

func TestQueueSwallowsHandlerFailures(t *testing.T) {
	var calls int32
	q := NewQueue("test", func(context.Context, Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("boom")
	}, QueueConfig{Workers: 1})

	q.Start(context.Background())
	require.NoError(t, q.Enqueue(Job{}))
	require.NoError(t, q.Stop(context.Background()))

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "failed jobs are not retried")
}

func TestQueueRejectsWhenNotRunning(t *testing.T) {
	q := NewQueue("test", func(context.Context, Job) error { return nil }, QueueConfig{})
	assert.ErrorIs(t, q.Enqueue(Job{}), ErrQueueStopped)

	q.Start(context.Background())
	require.NoError(t, q.Stop(context.Background()))
	assert.ErrorIs(t, q.Enqueue(Job{}), ErrQueueStopped)
}

func TestQueueFull(t *testing.T) {
	block := make(chan struct{})
	q := NewQueue("test", func(context.Context, Job) error {
		<-block
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer func() {
		close(block)
		_ = q.Stop(context.Background())
	}()

	require.NoError(t, q.Enqueue(Job{}))
	require.Eventually(t, func() bool { return len(q.jobs) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.Enqueue(Job{}))
	assert.ErrorIs(t, q.Enqueue(Job{}), ErrQueueFull)
}
