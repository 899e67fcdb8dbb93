package daemon

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagesdeploy/internal/config"
	"git.home.luguber.info/inful/pagesdeploy/internal/eventstore"
	"git.home.luguber.info/inful/pagesdeploy/internal/pipeline"
	"git.home.luguber.info/inful/pagesdeploy/internal/workspace"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Pipeline.Workflow = "pages"
	cfg.Build.WebCommand = []string{"trunk", "build"}
	cfg.Build.HostCommand = []string{"cargo", "run"}
	cfg.Server.Address = "127.0.0.1:0"
	cfg.Workspace.BaseDir = filepath.Join(t.TempDir(), "workspaces")
	cfg.History.Path = filepath.Join(t.TempDir(), "history.db")
	return cfg
}

type fakeNotifier struct {
	mu     sync.Mutex
	closed bool
}

func (f *fakeNotifier) Notify(context.Context, eventstore.Event) error { return nil }

func (f *fakeNotifier) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestDaemon_StartServeStop(t *testing.T) {
	n := &fakeNotifier{}
	d, err := New(t.Context(), testConfig(t), WithNotifier(n))
	require.NoError(t, err)
	assert.Equal(t, StatusStopped, d.GetStatus())

	require.NoError(t, d.Start(t.Context()))
	assert.Equal(t, StatusRunning, d.GetStatus())
	assert.Error(t, d.Start(t.Context()), "second start must fail")

	base := "http://" + d.Addr().String()
	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "pagesdeploy_active_runs")

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Stop(stopCtx))
	assert.Equal(t, StatusStopped, d.GetStatus())
	assert.True(t, n.closed)

	_, err = d.Dispatcher().Submit(pipeline.Trigger{Ref: "main"})
	assert.Error(t, err, "stopped daemon must refuse new runs")
}

func TestDaemon_RunStopsOnCancel(t *testing.T) {
	d, err := New(t.Context(), testConfig(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, 5*time.Second) }()

	require.Eventually(t, func() bool { return d.GetStatus() == StatusRunning }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}
	assert.Equal(t, StatusStopped, d.GetStatus())
}

func TestDaemon_ReloadConfig(t *testing.T) {
	cfg := testConfig(t)
	d, err := New(t.Context(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.store.Close() })

	next := *cfg
	next.Pipeline.Branch = "release"
	next.Pipeline.Workflow = "other"
	next.Pipeline.Timeout = "5m"
	next.Server.Address = "127.0.0.1:9999"

	require.NoError(t, d.ReloadConfig(t.Context(), &next))
	assert.Equal(t, cfg.Pipeline.Branch, d.GetConfig().Pipeline.Branch)
	assert.Equal(t, cfg.Pipeline.Workflow, d.GetConfig().Pipeline.Workflow)
	assert.Equal(t, "5m", d.GetConfig().Pipeline.Timeout)
	assert.Error(t, d.ReloadConfig(t.Context(), nil))
}

func TestRestartOnlyChanges(t *testing.T) {
	old := config.Default()
	next := config.Default()
	assert.Empty(t, restartOnlyChanges(old, next))

	off := false
	next.Pipeline.CancelInProgress = &off
	next.Server.WebhookPath = "/hooks"
	next.Notify.NATSURL = "nats://localhost:4222"
	next.Pipeline.Branch = "release"

	assert.ElementsMatch(t, []string{"pipeline.branch", "pipeline.cancel_in_progress", "server.webhook_path", "notify"}, restartOnlyChanges(old, next))
}

type recordingPruner struct {
	mu     sync.Mutex
	before time.Time
	calls  int
}

func (r *recordingPruner) Prune(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.before = before
	r.calls++
	return 3, nil
}

func (r *recordingPruner) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestHousekeeper_PruneWorkspaces(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workspace.Retention = "1h"
	mgr := workspace.NewManager(cfg.Workspace.BaseDir, true)

	stale, err := mgr.Create("stale-run")
	require.NoError(t, err)
	fresh, err := mgr.Create("fresh-run")
	require.NoError(t, err)
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale.Root, old, old))

	h := NewHousekeeper(pipeline.StaticConfig{Config: cfg}, mgr, nil)
	assert.Equal(t, 1, h.PruneWorkspaces())

	assert.NoDirExists(t, stale.Root)
	assert.DirExists(t, fresh.Root)
	assert.Zero(t, h.PruneHistory(t.Context()))
}

func TestHousekeeper_PruneHistoryUsesRetention(t *testing.T) {
	cfg := testConfig(t)
	cfg.History.Retention = "48h"
	pruner := &recordingPruner{}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	h := NewHousekeeper(pipeline.StaticConfig{Config: cfg}, workspace.NewManager(cfg.Workspace.BaseDir, false), pruner)
	h.now = func() time.Time { return now }

	assert.EqualValues(t, 3, h.PruneHistory(t.Context()))
	assert.Equal(t, now.Add(-48*time.Hour), pruner.before)

	cfg.History.Retention = "bogus"
	h.PruneHistory(t.Context())
	assert.Equal(t, now.Add(-defaultHistoryRetention), pruner.before)
}

func TestHousekeeper_Schedule(t *testing.T) {
	cfg := testConfig(t)
	pruner := &recordingPruner{}
	h := NewHousekeeper(pipeline.StaticConfig{Config: cfg}, workspace.NewManager(cfg.Workspace.BaseDir, false), pruner)

	s, err := NewScheduler()
	require.NoError(t, err)
	require.NoError(t, h.Schedule(t.Context(), s))
	assert.ElementsMatch(t, []string{"prune-workspaces", "prune-history"}, s.JobNames())

	s.Start()
	require.Eventually(t, func() bool { return pruner.Calls() > 0 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, s.Stop())
}
