package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagesdeploy/internal/config"
)

const watchedConfig = `source:
  url: https://example.com/site.git
pipeline:
  workflow: pages
  branch: %s
build:
  web_command: [trunk, build]
  host_command: [cargo, run]
`

type capturingReloader struct {
	mu      sync.Mutex
	configs []*config.Config
}

func (c *capturingReloader) ReloadConfig(_ context.Context, cfg *config.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configs = append(c.configs, cfg)
	return nil
}

func (c *capturingReloader) lastBranch() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.configs) == 0 {
		return ""
	}
	return c.configs[len(c.configs)-1].Pipeline.Branch
}

func writeConfig(t *testing.T, path, branch string) {
	t.Helper()
	content := []byte(fmt.Sprintf(watchedConfig, branch))
	require.NoError(t, os.WriteFile(path, content, 0o600))
}

func TestConfigWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagesdeploy.yaml")
	writeConfig(t, path, "main")

	target := &capturingReloader{}
	cw, err := NewConfigWatcher(path, target)
	require.NoError(t, err)
	cw.debounceTime = 20 * time.Millisecond

	require.NoError(t, cw.Start(t.Context()))
	defer cw.Stop()

	writeConfig(t, path, "release")

	require.Eventually(t, func() bool { return target.lastBranch() == "release" }, 5*time.Second, 20*time.Millisecond)
}

func TestConfigWatcher_IgnoresInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagesdeploy.yaml")
	writeConfig(t, path, "main")

	target := &capturingReloader{}
	cw, err := NewConfigWatcher(path, target)
	require.NoError(t, err)
	cw.debounceTime = 10 * time.Millisecond

	require.NoError(t, cw.performReload(t.Context()))
	require.Equal(t, "main", target.lastBranch())

	require.NoError(t, os.WriteFile(path, []byte("pipeline: ["), 0o600))
	require.Error(t, cw.performReload(t.Context()))
	require.Equal(t, "main", target.lastBranch())

	cw.Stop()
	cw.Stop()
}
