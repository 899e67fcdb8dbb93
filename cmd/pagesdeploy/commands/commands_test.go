package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagesdeploy/internal/build"
	"git.home.luguber.info/inful/pagesdeploy/internal/command"
	"git.home.luguber.info/inful/pagesdeploy/internal/config"
	"git.home.luguber.info/inful/pagesdeploy/internal/eventstore"
	"git.home.luguber.info/inful/pagesdeploy/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesdeploy/internal/pipeline"
	"git.home.luguber.info/inful/pagesdeploy/internal/site"
)

const marker = "app-search"

func parse(t *testing.T, args ...string) (*kong.Context, *CLI) {
	t.Helper()
	cli := &CLI{}
	parser, err := kong.New(cli, kong.Name("pagesdeploy"), kong.Vars{"version": "test"})
	require.NoError(t, err)
	kctx, err := parser.Parse(args)
	require.NoError(t, err)
	return kctx, cli
}

func writePage(t *testing.T, dir, name, script string) {
	t.Helper()
	page := `<!DOCTYPE html><html><head><script src="` + script + `"></script></head><body></body></html>`
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(page), 0o600))
}

func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagesdeploy.yaml")
	var out bytes.Buffer

	kctx, cli := parse(t, "--config", path, "init")
	require.NoError(t, kctx.Run(&Global{Stdout: &out}, cli))
	assert.FileExists(t, path)
	assert.Contains(t, out.String(), "initialized successfully")

	kctx, cli = parse(t, "--config", path, "init")
	err := kctx.Run(&Global{Stdout: &out}, cli)
	require.Error(t, err)
	assert.Equal(t, errors.CategoryValidation, errors.GetCategory(err))

	kctx, cli = parse(t, "--config", path, "init", "--force")
	require.NoError(t, kctx.Run(&Global{Stdout: &out}, cli))
}

func TestVerifyCommand(t *testing.T) {
	dir := t.TempDir()
	writePage(t, dir, site.IndexFile, "/assets/"+marker+".js")
	writePage(t, dir, site.FallbackFile, "/assets/"+marker+".js")
	missing := filepath.Join(t.TempDir(), "none.yaml")

	var out bytes.Buffer
	kctx, cli := parse(t, "--config", missing, "verify", dir, "--marker", marker)
	require.NoError(t, kctx.Run(&Global{Stdout: &out}, cli))
	assert.Contains(t, out.String(), "ready to publish")

	writePage(t, dir, site.FallbackFile, "/assets/app.js")
	kctx, cli = parse(t, "--config", missing, "verify", dir, "--marker", marker)
	err := kctx.Run(&Global{Stdout: &out}, cli)
	require.Error(t, err)
	assert.Equal(t, errors.CategoryValidation, errors.GetCategory(err))
}

func TestLoggingPrecedence(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Level = "warn"
	cfg.Logging.Format = "json"

	cli := &CLI{}
	t.Setenv(LogLevelEnv, "")
	assert.Equal(t, "WARN", cli.level(cfg).String())
	assert.Equal(t, config.LogFormatJSON, cli.format(cfg))

	t.Setenv(LogLevelEnv, "error")
	assert.Equal(t, "ERROR", cli.level(cfg).String())

	cli.Verbose = true
	assert.Equal(t, "DEBUG", cli.level(cfg).String())

	cli.LogFormat = "text"
	assert.Equal(t, config.LogFormatText, cli.format(cfg))
}

// pageBuilder writes index.html for web builds, with the search script when the web
// feature is enabled.
type pageBuilder struct{}

func (pageBuilder) Build(_ context.Context, inv build.Invocation) error {
	if inv.Target != build.TargetWeb {
		return nil
	}
	script := "/assets/app.js"
	if slices.Contains(inv.Features, build.FeatureWeb) {
		script = "/assets/" + marker + ".js"
	}
	page := `<!DOCTYPE html><html><head><script src="` + script + `"></script></head><body></body></html>`
	return os.WriteFile(filepath.Join(inv.OutDir, site.IndexFile), []byte(page), 0o600)
}

func runConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Pipeline.Workflow = "pages"
	cfg.Build.SearchMarker = marker
	cfg.Build.WebCommand = []string{"dx", "build"}
	cfg.Build.HostCommand = []string{"cargo", "run"}
	cfg.Workspace.BaseDir = t.TempDir()
	cfg.History.Path = filepath.Join(t.TempDir(), "history.db")
	return cfg
}

func TestRunOnceRecordsHistory(t *testing.T) {
	cfg := runConfig(t)
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "Cargo.toml"), []byte("[package]\n"), 0o600))

	var out bytes.Buffer
	err := RunOnce(t.Context(), cfg,
		pipeline.Trigger{Kind: pipeline.TriggerManual, SourceDir: src, NoPublish: true},
		&out,
		pipeline.WithBuilder(pageBuilder{}),
		pipeline.WithRunner(&command.FakeRunner{}))
	require.NoError(t, err)
	assert.Contains(t, out.String(), "pages-main")
	assert.Contains(t, out.String(), "succeeded")
	assert.Contains(t, out.String(), string(build.PhaseFallbackSync))

	var hist bytes.Buffer
	require.NoError(t, ShowHistory(t.Context(), cfg, 10, true, &hist))
	var runs []eventstore.RunSummary
	require.NoError(t, json.Unmarshal(hist.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, eventstore.RunStatusSucceeded, runs[0].Status)
	assert.Equal(t, "pages-main", runs[0].Key)

	hist.Reset()
	require.NoError(t, ShowHistory(t.Context(), cfg, 10, false, &hist))
	assert.Contains(t, hist.String(), "succeeded")
}

func TestShowHistoryEmpty(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, ShowHistory(t.Context(), runConfig(t), 0, false, &out))
	assert.Contains(t, out.String(), "no runs recorded")
}

func TestRunCommandTrigger(t *testing.T) {
	src := t.TempDir()
	_, cli := parse(t, "run", "--ref", "release", "--commit", "abc", "--source", src, "--no-publish")

	trig := cli.Run.trigger()
	assert.Equal(t, pipeline.TriggerManual, trig.Kind)
	assert.Equal(t, "release", trig.Ref)
	assert.Equal(t, "abc", trig.Commit)
	assert.Equal(t, src, trig.SourceDir)
	assert.True(t, trig.NoPublish)
}
