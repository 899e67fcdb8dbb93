package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/pagesdeploy/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesdeploy/internal/logfields"
)

const dirPrefix = "run-"

// Manager creates and removes run workspaces under a base directory.
type Manager struct {
	baseDir string
	keep    bool
}

// NewManager returns a Manager rooted at baseDir (the system temp dir when empty).
// With keep set, Cleanup leaves directories in place.
func NewManager(baseDir string, keep bool) *Manager {
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "pagesdeploy")
	}
	return &Manager{baseDir: baseDir, keep: keep}
}

// BaseDir returns the directory holding all run workspaces.
func (m *Manager) BaseDir() string { return m.baseDir }

// Workspace is the scratch area of one run.
type Workspace struct {
	Root string
	keep bool
}

// Source is where the run's source tree lives.
func (w *Workspace) Source() string { return filepath.Join(w.Root, "source") }

// Publish is where the hosting branch is cloned for the publish step.
func (w *Workspace) Publish() string { return filepath.Join(w.Root, "publish") }

// Create makes a fresh workspace for runID. Every call gets a new directory,
// even for a repeated runID.
func (m *Manager) Create(runID string) (*Workspace, error) {
	if err := os.MkdirAll(m.baseDir, 0o750); err != nil {
		return nil, errors.FileSystemError("failed to create workspace base directory").
			WithCause(err).
			WithContext("path", m.baseDir).
			Build()
	}
	pattern := fmt.Sprintf("%s%s-%s-*", dirPrefix, time.Now().Format("20060102-150405"), dirSafe(runID))
	root, err := os.MkdirTemp(m.baseDir, pattern)
	if err != nil {
		return nil, errors.FileSystemError("failed to create workspace directory").
			WithCause(err).
			WithContext("path", m.baseDir).
			Build()
	}
	slog.Debug("Created workspace", logfields.Path(root), logfields.RunID(runID))
	return &Workspace{Root: root, keep: m.keep}, nil
}

// dirSafe shortens runID for use in a directory name.
func dirSafe(runID string) string {
	id := strings.Map(func(r rune) rune {
		if r == '/' || r == filepath.Separator || r == '*' {
			return '_'
		}
		return r
	}, runID)
	if len(id) > 8 {
		id = id[:8]
	}
	return id
}

// Cleanup removes the workspace unless the manager keeps workspaces.
func (w *Workspace) Cleanup() error {
	if w == nil || w.Root == "" {
		return nil
	}
	if w.keep {
		slog.Debug("Keeping workspace", logfields.Path(w.Root))
		return nil
	}
	if err := os.RemoveAll(w.Root); err != nil {
		return fmt.Errorf("failed to cleanup workspace: %w", err)
	}
	slog.Debug("Cleaned up workspace", logfields.Path(w.Root))
	return nil
}

// Prune removes run workspaces last modified before now-retention and returns how
// many were removed. Directories not created by the manager are left alone.
func (m *Manager) Prune(retention time.Duration) (int, error) {
	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.FileSystemError("failed to list workspaces").
			WithCause(err).
			WithContext("path", m.baseDir).
			Build()
	}

	cutoff := time.Now().Add(-retention)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), dirPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(m.baseDir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			slog.Warn("Failed to prune workspace", logfields.Path(path), logfields.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		slog.Info("Pruned stale workspaces", slog.Int("count", removed), logfields.Path(m.baseDir))
	}
	return removed, nil
}
