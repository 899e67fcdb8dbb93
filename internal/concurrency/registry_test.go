package concurrency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagesdeploy/internal/foundation/errors"
)

var mainKey = Key{Workflow: "deploy", Ref: "refs/heads/main"}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "deploy-refs/heads/main", mainKey.String())
}

func TestStartIdleGroup(t *testing.T) {
	r := NewRegistry()

	snap, state := r.Current(mainKey)
	assert.Equal(t, StateIdle, state)
	assert.Empty(t, snap.RunID)

	h, err := r.Start(t.Context(), mainKey, "run-a")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, r.State(h))

	snap, state = r.Current(mainKey)
	assert.Equal(t, StateRunning, state)
	assert.Equal(t, "run-a", snap.RunID)

	r.Finish(h, StateSucceeded)
	_, state = r.Current(mainKey)
	assert.Equal(t, StateIdle, state)
	assert.Equal(t, StateSucceeded, r.State(h))
}

func TestStartSupersedesRunningRun(t *testing.T) {
	r := NewRegistry()

	a, err := r.Start(t.Context(), mainKey, "run-a")
	require.NoError(t, err)
	b, err := r.Start(t.Context(), mainKey, "run-b")
	require.NoError(t, err)

	select {
	case <-a.Context().Done():
	default:
		t.Fatal("expected superseded run context to be canceled")
	}
	assert.ErrorIs(t, context.Cause(a.Context()), ErrSuperseded)
	assert.True(t, r.Canceled(a))
	assert.Equal(t, StateCanceled, r.State(a))
	assert.NoError(t, b.Context().Err())

	// A never deploys.
	release, err := r.BeginDeploy(a)
	require.Error(t, err)
	assert.Nil(t, release)
	assert.True(t, errors.IsCanceled(err))
	assert.ErrorIs(t, err, ErrSuperseded)

	// Finishing the superseded run does not reset the group.
	r.Finish(a, StateCanceled)
	snap, state := r.Current(mainKey)
	assert.Equal(t, StateRunning, state)
	assert.Equal(t, "run-b", snap.RunID)

	release, err = r.BeginDeploy(b)
	require.NoError(t, err)
	release()
	r.Finish(b, StateSucceeded)

	_, state = r.Current(mainKey)
	assert.Equal(t, StateIdle, state)
}

func TestGroupsAreIndependent(t *testing.T) {
	r := NewRegistry()
	other := Key{Workflow: "deploy", Ref: "refs/heads/release"}

	a, err := r.Start(t.Context(), mainKey, "run-a")
	require.NoError(t, err)
	_, err = r.Start(t.Context(), other, "run-b")
	require.NoError(t, err)

	assert.NoError(t, a.Context().Err())
	assert.Len(t, r.Active(), 2)
}

func TestInFlightDeployCompletesBeforeNextDeploy(t *testing.T) {
	r := NewRegistry()

	a, err := r.Start(t.Context(), mainKey, "run-a")
	require.NoError(t, err)
	releaseA, err := r.BeginDeploy(a)
	require.NoError(t, err)

	b, err := r.Start(t.Context(), mainKey, "run-b")
	require.NoError(t, err)
	// A is canceled but its publish is in flight.
	assert.True(t, r.Canceled(a))
	assert.Equal(t, StateRunning, r.State(a))

	admitted := make(chan struct{})
	go func() {
		releaseB, err := r.BeginDeploy(b)
		if err == nil {
			close(admitted)
			releaseB()
		}
	}()

	select {
	case <-admitted:
		t.Fatal("second deploy admitted while the first was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	releaseA()
	releaseA() // idempotent
	r.Finish(a, StateSucceeded)

	select {
	case <-admitted:
	case <-time.After(2 * time.Second):
		t.Fatal("second deploy never admitted")
	}
}

func TestBeginDeployAbortsWhenCanceledWhileWaiting(t *testing.T) {
	r := NewRegistry()
	other := Key{Workflow: "deploy", Ref: "refs/heads/main"}

	a, err := r.Start(t.Context(), other, "run-a")
	require.NoError(t, err)
	releaseA, err := r.BeginDeploy(a)
	require.NoError(t, err)
	defer releaseA()

	b, err := r.Start(t.Context(), other, "run-b")
	require.NoError(t, err)

	result := make(chan error, 1)
	go func() {
		_, err := r.BeginDeploy(b)
		result <- err
	}()

	time.Sleep(20 * time.Millisecond)
	_, err = r.Start(t.Context(), other, "run-c")
	require.NoError(t, err)

	select {
	case err := <-result:
		assert.True(t, errors.IsCanceled(err))
	case <-time.After(2 * time.Second):
		t.Fatal("waiting deploy was not aborted")
	}
}

func TestQueueModeWaitsAndKeepsNewestPending(t *testing.T) {
	r := NewRegistry(WithCancelInProgress(false))

	a, err := r.Start(t.Context(), mainKey, "run-a")
	require.NoError(t, err)

	type started struct {
		h   *Handle
		err error
	}
	bCh := make(chan started, 1)
	go func() {
		h, err := r.Start(t.Context(), mainKey, "run-b")
		bCh <- started{h, err}
	}()
	require.Eventually(t, func() bool { return len(r.Active()) == 2 }, time.Second, 5*time.Millisecond)

	cCh := make(chan started, 1)
	go func() {
		h, err := r.Start(t.Context(), mainKey, "run-c")
		cCh <- started{h, err}
	}()

	b := <-bCh
	require.Error(t, b.err)
	assert.ErrorIs(t, b.err, ErrSuperseded)
	assert.Equal(t, StateCanceled, r.State(b.h))

	// A keeps running in queue mode.
	assert.NoError(t, a.Context().Err())

	r.Finish(a, StateSucceeded)
	c := <-cCh
	require.NoError(t, c.err)
	snap, state := r.Current(mainKey)
	assert.Equal(t, StateRunning, state)
	assert.Equal(t, "run-c", snap.RunID)
}

func TestQueueModeParentCanceled(t *testing.T) {
	r := NewRegistry(WithCancelInProgress(false))
	_, err := r.Start(t.Context(), mainKey, "run-a")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		_, err := r.Start(ctx, mainKey, "run-b")
		done <- err
	}()
	require.Eventually(t, func() bool { return len(r.Active()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.IsCanceled(err))
	case <-time.After(2 * time.Second):
		t.Fatal("queued start did not return")
	}
	assert.Len(t, r.Active(), 1)
}

func TestConcurrentStartsLeaveOneCurrent(t *testing.T) {
	r := NewRegistry()
	const n = 32

	handles := make([]*Handle, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := r.Start(t.Context(), mainKey, "run")
			if err == nil {
				handles[i] = h
			}
		}()
	}
	wg.Wait()

	live := 0
	for _, h := range handles {
		require.NotNil(t, h)
		if h.Context().Err() == nil {
			live++
		}
	}
	assert.Equal(t, 1, live)
}

func TestFinishNormalizesNonTerminalOutcome(t *testing.T) {
	r := NewRegistry()
	h, err := r.Start(t.Context(), mainKey, "run-a")
	require.NoError(t, err)
	r.Finish(h, StateRunning)
	assert.Equal(t, StateFailed, r.State(h))
}
