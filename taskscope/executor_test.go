package taskscope

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMaxConcurrencyBound(t *testing.T) {
	t.Parallel()
	const N = 8
	const M = 40
	s := Open(NewAwaitAll[int](), WithMaxConcurrency(N))
	defer s.Close()
	var cur, maxSeen atomic.Int64
	block := make(chan struct{})
	for i := range M {
		_, err := s.Fork(func(ctx context.Context) (int, error) {
			c := cur.Add(1)
			defer cur.Add(-1)
			for {
				if m := maxSeen.Load(); c > m {
					maxSeen.CompareAndSwap(m, c)
				}
				select {
				case <-block:
					return i, nil
				case <-ctx.Done():
					return 0, ctx.Err()
				case <-time.After(time.Millisecond):
				}
			}
		})
		require.NoError(t, err)
	}
	time.Sleep(50 * time.Millisecond)
	close(block)
	outcomes, err := s.Join()
	require.NoError(t, err)
	require.Len(t, outcomes, M)
	require.LessOrEqual(t, int(maxSeen.Load()), N,
		"observed concurrency exceeds limit")
}

func TestParkedSubtaskCancelledWithoutRunning(t *testing.T) {
	t.Parallel()
	s := Open(NewAwaitAll[int](), WithMaxConcurrency(1))
	defer s.Close()
	block := make(chan struct{})
	holding := make(chan struct{})
	first, err := s.Fork(func(ctx context.Context) (int, error) {
		close(holding)
		select {
		case <-block:
			return 1, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	})
	require.NoError(t, err)
	<-holding // first owns the only permit before the next fork

	var ran atomic.Bool
	parked, err := s.Fork(func(ctx context.Context) (int, error) {
		ran.Store(true)
		return 2, nil
	})
	require.NoError(t, err)

	// Give the second subtask time to park on the semaphore, then stop.
	time.Sleep(10 * time.Millisecond)
	s.Cancel(context.Canceled)
	close(block)
	_, err = s.Join()
	require.NoError(t, err)
	require.False(t, ran.Load(), "parked body must not run after cancellation")
	require.Equal(t, Cancelled, parked.State())
	require.True(t, first.State().Terminal())
}

func TestQueueExecutorRunsEverything(t *testing.T) {
	t.Parallel()
	exec := NewQueueExecutor(2)
	defer exec.Shutdown()
	s := Open(NewAllSuccessful[int](), WithExecutor(exec))
	defer s.Close()
	for i := range 10 {
		_, err := s.Fork(func(context.Context) (int, error) { return i, nil })
		require.NoError(t, err)
	}
	vals, err := s.Join()
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, vals)
}

func TestQueueExecutorSingleWorkerSerializes(t *testing.T) {
	t.Parallel()
	exec := NewQueueExecutor(1)
	defer exec.Shutdown()
	s := Open(NewAwaitAll[int](), WithExecutor(exec))
	defer s.Close()
	var cur, maxSeen atomic.Int64
	for i := range 6 {
		_, err := s.Fork(func(context.Context) (int, error) {
			c := cur.Add(1)
			defer cur.Add(-1)
			if m := maxSeen.Load(); c > m {
				maxSeen.CompareAndSwap(m, c)
			}
			time.Sleep(2 * time.Millisecond)
			return i, nil
		})
		require.NoError(t, err)
	}
	outcomes, err := s.Join()
	require.NoError(t, err)
	require.Len(t, outcomes, 6)
	require.Equal(t, int64(1), maxSeen.Load())
}

func TestQueueExecutorShutdownDrains(t *testing.T) {
	t.Parallel()
	exec := NewQueueExecutor(1)
	var ran atomic.Int64
	for range 5 {
		exec.Execute(context.Background(), func() {
			time.Sleep(time.Millisecond)
			ran.Add(1)
		})
	}
	exec.Shutdown()
	require.Equal(t, int64(5), ran.Load())
	// idempotent
	exec.Shutdown()
}

func TestSharedExecutorNotShutDownByScope(t *testing.T) {
	t.Parallel()
	exec := NewQueueExecutor(2)
	defer exec.Shutdown()
	s1 := Open(NewAllSuccessful[int](), WithExecutor(exec))
	_, _ = s1.Fork(func(context.Context) (int, error) { return 1, nil })
	_, err := s1.Join()
	require.NoError(t, err)
	s1.Close()

	// The executor must still accept work from another scope.
	s2 := Open(NewAllSuccessful[int](), WithExecutor(exec))
	defer s2.Close()
	_, _ = s2.Fork(func(context.Context) (int, error) { return 2, nil })
	vals, err := s2.Join()
	require.NoError(t, err)
	require.Equal(t, []int{2}, vals)
}
