package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutor_Execute(t *testing.T) {
	t.Run("completed task carries result", func(t *testing.T) {
		e := NewExecutor()

		id := e.Execute(context.Background(), func(ctx context.Context) (any, error) {
			return "ok", nil
		})

		snap, err := e.Wait(context.Background(), id)
		require.NoError(t, err)

		assert.Equal(t, StatusCompleted, snap.Status)
		assert.Equal(t, "ok", snap.Result)
		assert.Empty(t, snap.Err)
	})

	t.Run("returns immediately while task runs", func(t *testing.T) {
		e := NewExecutor()

		started := make(chan struct{})
		release := make(chan struct{})

		id := e.Execute(context.Background(), func(ctx context.Context) (any, error) {
			close(started)
			<-release

			return nil, nil
		})

		<-started

		snap, err := e.Status(id)
		require.NoError(t, err)
		assert.Equal(t, StatusRunning, snap.Status)

		close(release)

		snap, err = e.Wait(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, snap.Status)
	})

	t.Run("failing task records error", func(t *testing.T) {
		e := NewExecutor()

		id := e.Execute(context.Background(), func(ctx context.Context) (any, error) {
			return nil, errors.New("boom")
		})

		snap, err := e.Wait(context.Background(), id)
		require.NoError(t, err)

		assert.Equal(t, StatusFailed, snap.Status)
		assert.Equal(t, "boom", snap.Err)
	})

	t.Run("panicking task fails without crashing", func(t *testing.T) {
		e := NewExecutor()

		id := e.Execute(context.Background(), func(ctx context.Context) (any, error) {
			panic("kaboom")
		})

		snap, err := e.Wait(context.Background(), id)
		require.NoError(t, err)

		assert.Equal(t, StatusFailed, snap.Status)
		assert.Contains(t, snap.Err, "kaboom")
	})

	t.Run("concurrency limit queues tasks", func(t *testing.T) {
		e := NewExecutor(WithConfig(Config{MaxConcurrentTasks: 1, MaxRetainedTasks: 10}))

		firstStarted := make(chan struct{})
		release := make(chan struct{})

		e.Execute(context.Background(), func(ctx context.Context) (any, error) {
			close(firstStarted)
			<-release

			return nil, nil
		})

		<-firstStarted

		secondRan := make(chan struct{})

		second := e.Execute(context.Background(), func(ctx context.Context) (any, error) {
			close(secondRan)

			return nil, nil
		})

		select {
		case <-secondRan:
			t.Fatal("second task ran before slot was free")
		case <-time.After(50 * time.Millisecond):
		}

		close(release)

		snap, err := e.Wait(context.Background(), second)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, snap.Status)
	})
}

func TestExecutor_Cancel(t *testing.T) {
	t.Run("running task is cancelled", func(t *testing.T) {
		e := NewExecutor()

		started := make(chan struct{})

		id := e.Execute(context.Background(), func(ctx context.Context) (any, error) {
			close(started)
			<-ctx.Done()

			return nil, ctx.Err()
		})

		<-started

		outcome, err := e.Cancel(id)
		require.NoError(t, err)
		assert.Equal(t, OutcomeCancelled, outcome)

		snap, err := e.Status(id)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, snap.Status)
	})

	t.Run("second cancel reports not cancellable", func(t *testing.T) {
		e := NewExecutor()

		id := e.Execute(context.Background(), func(ctx context.Context) (any, error) {
			<-ctx.Done()

			return nil, ctx.Err()
		})

		outcome, err := e.Cancel(id)
		require.NoError(t, err)
		assert.Equal(t, OutcomeCancelled, outcome)

		outcome, err = e.Cancel(id)
		require.NoError(t, err)
		assert.Equal(t, OutcomeNotCancellable, outcome)
	})

	t.Run("completed task is not cancellable", func(t *testing.T) {
		e := NewExecutor()

		id := e.Execute(context.Background(), func(ctx context.Context) (any, error) {
			return "done", nil
		})

		_, err := e.Wait(context.Background(), id)
		require.NoError(t, err)

		outcome, err := e.Cancel(id)
		require.NoError(t, err)
		assert.Equal(t, OutcomeNotCancellable, outcome)
	})

	t.Run("unknown task", func(t *testing.T) {
		e := NewExecutor()

		_, err := e.Cancel("nope")

		var nfErr *NotFoundError

		require.ErrorAs(t, err, &nfErr)
		assert.Equal(t, "nope", nfErr.TaskID)
	})

	t.Run("late result after cancel is discarded", func(t *testing.T) {
		e := NewExecutor()

		started := make(chan struct{})
		release := make(chan struct{})
		finished := make(chan struct{})

		id := e.Execute(context.Background(), func(ctx context.Context) (any, error) {
			close(started)
			<-release

			defer close(finished)

			return "too late", nil
		})

		<-started

		outcome, err := e.Cancel(id)
		require.NoError(t, err)
		assert.Equal(t, OutcomeCancelled, outcome)

		close(release)
		<-finished

		snap, err := e.Status(id)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, snap.Status)
		assert.Nil(t, snap.Result)
	})
}

func TestExecutor_Status(t *testing.T) {
	t.Run("unknown task", func(t *testing.T) {
		e := NewExecutor()

		_, err := e.Status("missing")

		var nfErr *NotFoundError

		require.ErrorAs(t, err, &nfErr)
	})
}

func TestExecutor_List(t *testing.T) {
	e := NewExecutor()

	first := e.Execute(context.Background(), func(ctx context.Context) (any, error) {
		return 1, nil
	})
	second := e.Execute(context.Background(), func(ctx context.Context) (any, error) {
		return 2, nil
	})

	_, err := e.Wait(context.Background(), first)
	require.NoError(t, err)
	_, err = e.Wait(context.Background(), second)
	require.NoError(t, err)

	tasks := e.List()
	require.Len(t, tasks, 2)
	assert.Equal(t, first, tasks[0].ID)
	assert.Equal(t, second, tasks[1].ID)
}

func TestExecutor_Purge(t *testing.T) {
	e := NewExecutor()

	started := make(chan struct{})
	release := make(chan struct{})

	running := e.Execute(context.Background(), func(ctx context.Context) (any, error) {
		close(started)
		<-release

		return nil, nil
	})

	<-started

	done := e.Execute(context.Background(), func(ctx context.Context) (any, error) {
		return nil, nil
	})

	_, err := e.Wait(context.Background(), done)
	require.NoError(t, err)

	assert.Equal(t, 1, e.Purge())

	tasks := e.List()
	require.Len(t, tasks, 1)
	assert.Equal(t, running, tasks[0].ID)

	close(release)

	_, err = e.Wait(context.Background(), running)
	require.NoError(t, err)
}

func TestExecutor_Eviction(t *testing.T) {
	e := NewExecutor(WithConfig(Config{MaxConcurrentTasks: 1, MaxRetainedTasks: 2}))

	ids := make([]string, 0, 4)

	for i := 0; i < 4; i++ {
		id := e.Execute(context.Background(), func(ctx context.Context) (any, error) {
			return nil, nil
		})
		ids = append(ids, id)

		_, err := e.Wait(context.Background(), id)
		require.NoError(t, err)
	}

	tasks := e.List()
	require.Len(t, tasks, 2)
	assert.Equal(t, ids[2], tasks[0].ID)
	assert.Equal(t, ids[3], tasks[1].ID)
}

func TestExecutor_Shutdown(t *testing.T) {
	e := NewExecutor()

	started := make(chan struct{})

	id := e.Execute(context.Background(), func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()

		return nil, ctx.Err()
	})

	<-started

	require.NoError(t, e.Shutdown(context.Background()))

	snap, err := e.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, snap.Status)
}
