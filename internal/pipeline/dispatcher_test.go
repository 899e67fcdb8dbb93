package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagesdeploy/internal/build"
	"git.home.luguber.info/inful/pagesdeploy/internal/concurrency"
)

func TestDispatcher_SubmitAndHistory(t *testing.T) {
	h := newHarness(t, testConfig(t))
	d := NewDispatcher(h.exec)

	id, err := d.Submit(Trigger{Ref: "main", Kind: TriggerWebhook})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	d.Wait()

	job, ok := d.Job(id)
	require.True(t, ok)
	assert.Equal(t, concurrency.StateSucceeded, job.Status)
	require.NotNil(t, job.Report)
	assert.Equal(t, id, job.Report.ID)

	jobs := d.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, id, jobs[0].ID)

	_, ok = d.Job("missing")
	assert.False(t, ok)
}

func TestDispatcher_StopCancelsRunsAndRefusesNewOnes(t *testing.T) {
	h := newHarness(t, testConfig(t))
	entered := make(chan struct{})
	release := make(chan struct{})
	h.builder.hook = func(inv build.Invocation) {
		if invocationKey(inv) == "web" {
			close(entered)
			<-release
		}
	}
	d := NewDispatcher(h.exec)

	id, err := d.Submit(Trigger{Ref: "main"})
	require.NoError(t, err)
	<-entered

	job, ok := d.Job(id)
	require.True(t, ok)
	assert.Equal(t, concurrency.StateRunning, job.Status)

	stopped := make(chan error, 1)
	go func() { stopped <- d.Stop(context.Background()) }()

	// Stop waits for the running phase.
	select {
	case <-stopped:
		t.Fatal("Stop returned while a phase was still running")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-stopped)

	job, _ = d.Job(id)
	assert.Equal(t, concurrency.StateCanceled, job.Status)
	assert.Empty(t, h.publisher.published())

	_, err = d.Submit(Trigger{Ref: "main"})
	require.Error(t, err)
}

func TestDispatcher_StopTimesOut(t *testing.T) {
	h := newHarness(t, testConfig(t))
	entered := make(chan struct{})
	release := make(chan struct{})
	h.builder.hook = func(inv build.Invocation) {
		if invocationKey(inv) == "web" {
			close(entered)
			<-release
		}
	}
	d := NewDispatcher(h.exec)
	_, err := d.Submit(Trigger{Ref: "main"})
	require.NoError(t, err)
	<-entered

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, d.Stop(ctx))

	close(release)
	d.Wait()
}
