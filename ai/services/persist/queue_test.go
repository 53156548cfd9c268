package persist

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRunsTasks(t *testing.T) {
	q := NewQueue(Config{Size: 10, Workers: 2})

	var mu sync.Mutex
	var ran []string
	for _, name := range []string{"a", "b", "c"} {
		id, ok := q.Enqueue(&Task{Kind: "messages", Run: func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			ran = append(ran, name)
			return nil
		}})
		require.True(t, ok)
		assert.NotEmpty(t, id)
	}

	require.NoError(t, q.Close(5*time.Second))
	assert.ElementsMatch(t, []string{"a", "b", "c"}, ran)
	assert.Zero(t, q.QueueSize())
}

func TestQueueDropsWhenFull(t *testing.T) {
	q := NewQueue(Config{Size: 1, Workers: 1})

	started := make(chan struct{})
	release := make(chan struct{})
	_, ok := q.Enqueue(&Task{Kind: "messages", Run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}})
	require.True(t, ok)
	<-started

	var secondRan atomic.Bool
	_, ok = q.Enqueue(&Task{Kind: "messages", Run: func(context.Context) error {
		secondRan.Store(true)
		return nil
	}})
	require.True(t, ok)
	assert.Equal(t, 1, q.QueueSize())

	_, ok = q.Enqueue(&Task{Kind: "messages", Run: func(context.Context) error { return nil }})
	assert.False(t, ok, "full queue drops the task")

	close(release)
	require.NoError(t, q.Close(5*time.Second))
	assert.True(t, secondRan.Load())
}

func TestQueueFailuresDoNotStopWorkers(t *testing.T) {
	q := NewQueue(Config{Size: 10, Workers: 1})

	var done atomic.Int32
	q.Enqueue(&Task{Kind: "subject", Run: func(context.Context) error { return errors.New("disk full") }})
	q.Enqueue(&Task{Kind: "subject", Run: func(context.Context) error { panic("boom") }})
	q.Enqueue(&Task{Kind: "subject", Run: func(context.Context) error {
		done.Add(1)
		return nil
	}})

	require.NoError(t, q.Close(5*time.Second))
	assert.Equal(t, int32(1), done.Load())
}

func TestQueueTaskTimeout(t *testing.T) {
	q := NewQueue(Config{Size: 1, Workers: 1, TaskTimeout: 20 * time.Millisecond})

	errCh := make(chan error, 1)
	q.Enqueue(&Task{Kind: "subject", Run: func(ctx context.Context) error {
		<-ctx.Done()
		errCh <- ctx.Err()
		return ctx.Err()
	}})
	require.NoError(t, q.Close(5*time.Second))
	assert.ErrorIs(t, <-errCh, context.DeadlineExceeded)
}

func TestQueueDeduplicatesKeys(t *testing.T) {
	q := NewQueue(Config{Size: 10, Workers: 1})

	_, ok := q.Enqueue(&Task{Kind: "subject", Key: "subject:c1", Run: func(context.Context) error { return nil }})
	assert.True(t, ok)
	_, ok = q.Enqueue(&Task{Kind: "subject", Key: "subject:c1", Run: func(context.Context) error { return nil }})
	assert.False(t, ok)
	_, ok = q.Enqueue(&Task{Kind: "subject", Key: "subject:c2", Run: func(context.Context) error { return nil }})
	assert.True(t, ok)

	require.NoError(t, q.Close(5*time.Second))
}

func TestQueueRejectsAfterClose(t *testing.T) {
	q := NewQueue(Config{})
	require.NoError(t, q.Close(time.Second))
	require.NoError(t, q.Close(time.Second))

	_, ok := q.Enqueue(&Task{Kind: "messages", Run: func(context.Context) error { return nil }})
	assert.False(t, ok)
}

func TestQueueCloseTimeout(t *testing.T) {
	q := NewQueue(Config{Size: 1, Workers: 1})
	release := make(chan struct{})
	defer close(release)

	started := make(chan struct{})
	q.Enqueue(&Task{Kind: "messages", Run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}})
	<-started

	assert.ErrorIs(t, q.Close(20*time.Millisecond), context.DeadlineExceeded)
}
