package supervise

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReturnsTaskResult(t *testing.T) {
	s := New(Config{Name: "test"})

	err := s.Run(func(ctx context.Context) error { return nil }, "", nil)
	assert.NoError(t, err)

	boom := errors.New("boom")
	err = s.Run(func(ctx context.Context) error { return boom }, "", nil)
	assert.ErrorIs(t, err, boom)
}

func TestCapacityRejection(t *testing.T) {
	s := New(Config{Name: "test", MaxConcurrent: 3, MaxDuration: 5 * time.Second})

	release := make(chan struct{})
	var started sync.WaitGroup
	for i := 0; i < 3; i++ {
		started.Add(1)
		_, err := s.StartTask(func(ctx context.Context) error {
			started.Done()
			<-release
			return nil
		}, "", nil)
		require.NoError(t, err)
	}
	started.Wait()
	assert.Equal(t, 3, s.RunningCount())

	// The N+1th task is rejected immediately, never queued.
	_, err := s.StartTask(func(ctx context.Context) error { return nil }, "", nil)
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	close(release)
	s.Drain()
	assert.Equal(t, 0, s.RunningCount())
}

func TestPerTagCeiling(t *testing.T) {
	s := New(Config{Name: "test", MaxConcurrent: 10, MaxPerUser: 2, MaxDuration: 5 * time.Second})

	release := make(chan struct{})
	for i := 0; i < 2; i++ {
		_, err := s.StartTask(func(ctx context.Context) error {
			<-release
			return nil
		}, "user-1", nil)
		require.NoError(t, err)
	}

	// user-1 is at its ceiling; user-2 is unaffected.
	_, err := s.StartTask(func(ctx context.Context) error { return nil }, "user-1", nil)
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	_, err = s.StartTask(func(ctx context.Context) error {
		<-release
		return nil
	}, "user-2", nil)
	assert.NoError(t, err)

	close(release)
	s.Drain()
}

func TestCapacityReleasedAfterCompletion(t *testing.T) {
	s := New(Config{Name: "test", MaxConcurrent: 1})

	err := s.Run(func(ctx context.Context) error { return nil }, "", nil)
	require.NoError(t, err)

	// The slot frees after completion; finish deregisters asynchronously.
	require.Eventually(t, func() bool {
		return s.RunningCount() == 0
	}, time.Second, 5*time.Millisecond)

	err = s.Run(func(ctx context.Context) error { return nil }, "", nil)
	assert.NoError(t, err)
}

func TestTimeoutKillsTask(t *testing.T) {
	s := New(Config{Name: "test", MaxDuration: 50 * time.Millisecond, WarningTime: 20 * time.Millisecond})

	cancelled := make(chan struct{})
	_, err := s.StartTask(func(ctx context.Context) error {
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}, "slow", nil)
	require.NoError(t, err)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("task context was never cancelled")
	}

	require.Eventually(t, func() bool {
		return s.RunningCount() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestRunReportsTimeout(t *testing.T) {
	s := New(Config{Name: "test", MaxDuration: 30 * time.Millisecond})

	// A task killed by the duration ceiling must surface as a timeout, not as
	// the context cancellation the task itself observed.
	err := s.Run(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, "", nil)
	assert.ErrorIs(t, err, ErrTaskTimeout)
	assert.NotErrorIs(t, err, context.Canceled)
}

func TestRunKeepsTaskErrorOnTimeout(t *testing.T) {
	s := New(Config{Name: "test", MaxDuration: 30 * time.Millisecond})

	// A task that fails with its own error while being killed keeps that
	// error; only the bare cancellation is translated.
	boom := errors.New("flush failed")
	err := s.Run(func(ctx context.Context) error {
		<-ctx.Done()
		return boom
	}, "", nil)
	assert.ErrorIs(t, err, boom)
}

func TestRunningTasksSnapshot(t *testing.T) {
	s := New(Config{Name: "test", MaxDuration: 5 * time.Second})

	release := make(chan struct{})
	handle, err := s.StartTask(func(ctx context.Context) error {
		<-release
		return nil
	}, "tag-1", map[string]string{"killmail_id": "42"})
	require.NoError(t, err)

	tasks := s.RunningTasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, handle, tasks[0].Handle)
	assert.Equal(t, "tag-1", tasks[0].Tag)
	assert.Equal(t, "42", tasks[0].Metadata["killmail_id"])
	assert.False(t, tasks[0].StartedAt.IsZero())

	close(release)
	s.Drain()
}

func TestDrainRejectsNewTasks(t *testing.T) {
	s := New(Config{Name: "test"})
	s.Drain()

	_, err := s.StartTask(func(ctx context.Context) error { return nil }, "", nil)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}
