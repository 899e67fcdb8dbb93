package command

import (
	"context"
	"fmt"
	"sync"
)

// FakeRunner records invocations and replays scripted behavior. It is exported for
// tests in other packages.
type FakeRunner struct {
	mu    sync.Mutex
	Calls []Spec
	// Handler decides the outcome of each call; nil means success with no output.
	Handler func(ctx context.Context, spec Spec) (Result, error)
	// Paths maps binary names to resolved paths for LookPath.
	Paths map[string]string
}

// Run records spec and delegates to Handler.
func (f *FakeRunner) Run(ctx context.Context, spec Spec) (Result, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, spec)
	handler := f.Handler
	f.mu.Unlock()
	if handler == nil {
		return Result{}, nil
	}
	return handler(ctx, spec)
}

// LookPath consults Paths.
func (f *FakeRunner) LookPath(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.Paths[name]; ok {
		return p, nil
	}
	return "", fmt.Errorf("exec: %q: executable file not found in $PATH", name)
}

// SetPath marks name as resolvable (used by fake installers).
func (f *FakeRunner) SetPath(name, path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Paths == nil {
		f.Paths = make(map[string]string)
	}
	f.Paths[name] = path
}

// Commands returns the recorded command lines.
func (f *FakeRunner) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Calls))
	for i, c := range f.Calls {
		out[i] = c.String()
	}
	return out
}
