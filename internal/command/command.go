// Package command runs external tools (toolchain installers, build commands) and
// captures their output for diagnostics.
package command

import (
	"bytes"
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"git.home.luguber.info/inful/pagesdeploy/internal/logfields"
)

// Spec describes a single process invocation.
type Spec struct {
	Name string
	Args []string
	Dir  string
	Env  []string // appended to the current environment
}

// String renders the command line for logs.
func (s Spec) String() string {
	return strings.TrimSpace(s.Name + " " + strings.Join(s.Args, " "))
}

// Result holds the captured output of a finished process.
type Result struct {
	Output   []byte
	ExitCode int
}

// Runner executes processes. Tests substitute fakes.
type Runner interface {
	Run(ctx context.Context, spec Spec) (Result, error)
	LookPath(name string) (string, error)
}

// ExitError reports a process that ran and exited non-zero.
type ExitError struct {
	Spec     Spec
	ExitCode int
	Output   string
}

func (e *ExitError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("%s exited with status %d", e.Spec, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with status %d: %s", e.Spec, e.ExitCode, out)
}

// ExecRunner runs processes with os/exec.
type ExecRunner struct{}

// NewExecRunner returns a Runner backed by os/exec.
func NewExecRunner() *ExecRunner { return &ExecRunner{} }

// LookPath resolves name on PATH.
func (ExecRunner) LookPath(name string) (string, error) { return exec.LookPath(name) }

// Run executes spec and returns combined stdout/stderr. A non-zero exit yields *ExitError;
// a canceled context yields ctx.Err().
func (ExecRunner) Run(ctx context.Context, spec Spec) (Result, error) {
	cmd := exec.CommandContext(ctx, spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	slog.Debug("Running command", slog.String("command", spec.String()), logfields.Path(spec.Dir))
	err := cmd.Run()
	res := Result{Output: out.Bytes()}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	var exitErr *exec.ExitError
	if stdErrors.As(err, &exitErr) {
		return res, &ExitError{Spec: spec, ExitCode: exitErr.ExitCode(), Output: out.String()}
	}
	return res, fmt.Errorf("run %s: %w", spec, err)
}
