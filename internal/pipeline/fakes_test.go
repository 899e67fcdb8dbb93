package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagesdeploy/internal/build"
	"git.home.luguber.info/inful/pagesdeploy/internal/command"
	"git.home.luguber.info/inful/pagesdeploy/internal/config"
	"git.home.luguber.info/inful/pagesdeploy/internal/deploy"
	"git.home.luguber.info/inful/pagesdeploy/internal/git"
	"git.home.luguber.info/inful/pagesdeploy/internal/site"
	"git.home.luguber.info/inful/pagesdeploy/internal/workspace"
)

const searchMarker = "app-search"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Pipeline: config.PipelineConfig{Workflow: "pages", Branch: "main"},
		Source:   config.SourceConfig{URL: "https://example.invalid/app.git"},
		Build: config.BuildConfig{
			OutputDir:    "docs",
			SearchMarker: searchMarker,
			WebCommand:   []string{"dx", "build"},
			HostCommand:  []string{"cargo", "run"},
		},
		Deploy: config.DeployConfig{
			Branch:  "gh-pages",
			Folder:  ".",
			Message: "deploy {run_id} from {short_commit}",
		},
		Workspace: config.WorkspaceConfig{BaseDir: t.TempDir()},
	}
}

// fakeSource writes a minimal project instead of cloning.
type fakeSource struct {
	mu    sync.Mutex
	calls []git.CloneRequest
	err   error
}

func (f *fakeSource) Clone(_ context.Context, req git.CloneRequest) (*git.Checkout, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if err := os.MkdirAll(req.Dir, 0o750); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(req.Dir, "Cargo.toml"), []byte("[package]\n"), 0o600); err != nil {
		return nil, err
	}
	return &git.Checkout{Dir: req.Dir, Ref: "refs/heads/" + req.Ref, Commit: "0123456789abcdef0123456789abcdef01234567"}, nil
}

// fakeBuilder writes an index page whose script depends on the features.
type fakeBuilder struct {
	mu    sync.Mutex
	calls []build.Invocation
	fail  map[string]error
	// hook runs before the build writes its output.
	hook func(inv build.Invocation)
}

func invocationKey(inv build.Invocation) string {
	if len(inv.Features) == 0 {
		return string(inv.Target)
	}
	return string(inv.Target) + ":" + inv.FeatureList()
}

func (f *fakeBuilder) Build(_ context.Context, inv build.Invocation) error {
	f.mu.Lock()
	f.calls = append(f.calls, inv)
	hook := f.hook
	err := f.fail[invocationKey(inv)]
	f.mu.Unlock()

	if hook != nil {
		hook(inv)
	}
	if err != nil {
		return err
	}
	if inv.Target != build.TargetWeb {
		return nil
	}
	script := "/assets/app.js"
	if slices.Contains(inv.Features, build.FeatureWeb) {
		script = "/assets/" + searchMarker + ".js"
	}
	page := `<!DOCTYPE html><html><head><script src="` + script + `"></script></head><body></body></html>`
	return os.WriteFile(filepath.Join(inv.OutDir, site.IndexFile), []byte(page), 0o600)
}

func (f *fakeBuilder) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = invocationKey(c)
	}
	return out
}

// publishedSite is what the publisher saw in the output directory at deploy time.
type publishedSite struct {
	req      deploy.Request
	index    []byte
	fallback []byte
	marker   bool
}

type fakePublisher struct {
	mu    sync.Mutex
	sites []publishedSite
	err   error
}

func (f *fakePublisher) Publish(_ context.Context, req deploy.Request) (*deploy.Result, error) {
	index, _ := os.ReadFile(filepath.Join(req.SourceDir, site.IndexFile))
	fallback, _ := os.ReadFile(filepath.Join(req.SourceDir, site.FallbackFile))
	marker, _ := site.ContainsMarker(filepath.Join(req.SourceDir, site.IndexFile), searchMarker)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sites = append(f.sites, publishedSite{req: req, index: index, fallback: fallback, marker: marker})
	if f.err != nil {
		return nil, f.err
	}
	return &deploy.Result{Status: deploy.StatusPublished, Branch: req.Branch, Folder: req.Folder, Commit: "feedface", FilesWritten: 2}, nil
}

func (f *fakePublisher) published() []publishedSite {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedSite(nil), f.sites...)
}

type harness struct {
	cfg       *config.Config
	source    *fakeSource
	builder   *fakeBuilder
	publisher *fakePublisher
	runner    *command.FakeRunner
	exec      *Executor
}

func newHarness(t *testing.T, cfg *config.Config, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		cfg:       cfg,
		source:    &fakeSource{},
		builder:   &fakeBuilder{fail: map[string]error{}},
		publisher: &fakePublisher{},
		runner:    &command.FakeRunner{},
	}
	base := []Option{
		WithSourceFetcher(h.source),
		WithBuilder(h.builder),
		WithPublisher(h.publisher),
		WithRunner(h.runner),
		WithWorkspaces(workspace.NewManager(cfg.Workspace.BaseDir, false)),
	}
	h.exec = NewExecutor(StaticConfig{Config: cfg}, append(base, opts...)...)
	require.NotNil(t, h.exec)
	return h
}
