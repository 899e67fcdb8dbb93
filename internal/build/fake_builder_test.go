package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// fakeBuilder stands in for the application build. The web target writes an index page
// whose script reference depends on the feature set; the host target writes a search index.
type fakeBuilder struct {
	mu    sync.Mutex
	calls []Invocation

	routes    []string
	failOn    map[Target]error
	skipIndex bool
	// hook runs after each invocation; tests use it to tamper with the output.
	hook func(inv Invocation)
}

func (f *fakeBuilder) Build(_ context.Context, inv Invocation) error {
	f.mu.Lock()
	f.calls = append(f.calls, inv)
	f.mu.Unlock()

	key := inv.Target
	if slices.Contains(inv.Features, FeaturePrebuild) {
		key = "prebuild"
	}
	if err := f.failOn[key]; err != nil {
		return err
	}

	switch inv.Target {
	case TargetWeb:
		if err := os.WriteFile(filepath.Join(inv.OutDir, "index.html"), []byte(fakePage(inv.Features)), 0o600); err != nil {
			return err
		}
	case TargetHost:
		if !f.skipIndex {
			var content string
			for _, r := range f.routes {
				content += r + "\n"
			}
			if err := os.WriteFile(filepath.Join(inv.OutDir, "searchindex.bin"), []byte(content), 0o600); err != nil {
				return err
			}
		}
	}
	if f.hook != nil {
		f.hook(inv)
	}
	return nil
}

func (f *fakeBuilder) targets() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = fmt.Sprintf("%s%v", c.Target, c.Features)
	}
	return out
}

func fakePage(features []string) string {
	script := "/assets/app.js"
	if slices.Contains(features, FeatureWeb) {
		script = "/assets/app-search.js"
	}
	return `<!DOCTYPE html><html><head><script type="module" src="` + script + `"></script></head><body><div id="main"></div></body></html>`
}
