package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagesdeploy/internal/foundation/errors"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("source:\n  url: https://example.com/site.git\n"))
	require.NoError(t, err)

	assert.Equal(t, DefaultWorkflow, cfg.Pipeline.Workflow)
	assert.Equal(t, DefaultBranch, cfg.Pipeline.Branch)
	assert.True(t, cfg.Pipeline.CancelsInProgress())
	assert.Equal(t, DefaultOutputDir, cfg.Build.OutputDir)
	assert.True(t, cfg.Build.IsRelease())
	assert.Equal(t, DefaultDeployBranch, cfg.Deploy.Branch)
	assert.Equal(t, DefaultDeployFolder, cfg.Deploy.Folder)
	assert.False(t, cfg.Deploy.Clean)
	assert.Equal(t, "https://example.com/site.git", cfg.DeployRepository())
	assert.Equal(t, []string{"dx", "build", "--platform", "web"}, cfg.Build.WebCommand)
}

func TestParseExpandsEnvironment(t *testing.T) {
	t.Setenv("PAGESDEPLOY_TEST_TOKEN", "s3cret")

	cfg, err := Parse([]byte("source:\n  url: https://example.com/site.git\ndeploy:\n  auth:\n    type: token\n    token: ${PAGESDEPLOY_TEST_TOKEN}\n"))
	require.NoError(t, err)
	require.NotNil(t, cfg.DeployAuth())
	assert.Equal(t, "s3cret", cfg.DeployAuth().Token)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"clean publish", "deploy:\n  clean: true\n", "deploy.clean"},
		{"absolute output", "build:\n  output_dir: /var/www\n", "build.output_dir"},
		{"escaping folder", "deploy:\n  folder: ../outside\n", "deploy.folder"},
		{"token without token", "source:\n  auth:\n    type: token\n", "source.auth"},
		{"unknown auth", "deploy:\n  auth:\n    type: kerberos\n", "deploy.auth"},
		{"bad timeout", "pipeline:\n  timeout: soon\n", "pipeline.timeout"},
		{"target without check", "toolchain:\n  targets:\n    - name: wasm32-unknown-unknown\n", "toolchain.targets"},
		{"bad env", "build:\n  env: [\"NOEQUALS\"]\n", "build.env"},
		{"no publish repository", "pipeline:\n  branch: main\n", "deploy.repository"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)

			ce, ok := errors.AsClassified(err)
			require.True(t, ok, "expected classified error, got %T", err)
			assert.Equal(t, errors.CategoryValidation, ce.Category())
			field, _ := ce.Context().GetString("field")
			assert.Equal(t, tt.field, field)
		})
	}
}

func TestDeployRepositoryWithoutSource(t *testing.T) {
	cfg, err := Parse([]byte("deploy:\n  repository: https://example.com/pages.git\n"))
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/pages.git", cfg.DeployRepository())
	assert.Empty(t, cfg.Source.URL)

	require.Error(t, Validate(Default()))
}

func TestPipelineTimeoutAndFlags(t *testing.T) {
	cfg, err := Parse([]byte("source:\n  url: https://example.com/site.git\npipeline:\n  timeout: 45m\n  cancel_in_progress: false\nbuild:\n  release: false\n"))
	require.NoError(t, err)

	assert.Equal(t, 45*time.Minute, cfg.Pipeline.TimeoutDuration())
	assert.False(t, cfg.Pipeline.CancelsInProgress())
	assert.False(t, cfg.Build.IsRelease())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
}

func TestInitWritesLoadableExample(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "token-value")
	path := filepath.Join(t.TempDir(), "pagesdeploy.yaml")

	require.NoError(t, Init(path, false))
	err := Init(path, false)
	require.Error(t, err, "second init without force must refuse to overwrite")
	require.NoError(t, Init(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "docsite", cfg.Source.ProjectDir)
	assert.Equal(t, "search", cfg.Build.SearchMarker)
	require.Len(t, cfg.Toolchain.Targets, 1)
	assert.Equal(t, "wasm32-unknown-unknown", cfg.Toolchain.Targets[0].Name)
}

func TestLoadEnvFilesDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.NoError(t, os.WriteFile(".env", []byte("PAGESDEPLOY_EXISTING=fromfile\nPAGESDEPLOY_NEW=fromfile\n"), 0o600))
	t.Setenv("PAGESDEPLOY_EXISTING", "fromenv")
	t.Setenv("PAGESDEPLOY_NEW", "")
	require.NoError(t, os.Unsetenv("PAGESDEPLOY_NEW"))

	used, err := loadEnvFiles()
	require.NoError(t, err)
	assert.Equal(t, ".env", used)
	assert.Equal(t, "fromenv", os.Getenv("PAGESDEPLOY_EXISTING"))
	assert.Equal(t, "fromfile", os.Getenv("PAGESDEPLOY_NEW"))
}

func TestNormalizeLogging(t *testing.T) {
	assert.Equal(t, LogLevelDebug, NormalizeLogLevel(" DEBUG "))
	assert.Equal(t, LogLevelWarn, NormalizeLogLevel("warning"))
	assert.Equal(t, LogLevelInfo, NormalizeLogLevel("nonsense"))
	assert.Equal(t, LogFormatJSON, NormalizeLogFormat("JSON"))
	assert.Equal(t, LogFormatText, NormalizeLogFormat(""))
}

func TestSSHAuthDefaults(t *testing.T) {
	cfg, err := Parse([]byte("source:\n  url: https://example.com/site.git\ndeploy:\n  auth:\n    type: ssh\n"))
	require.NoError(t, err)

	a := cfg.DeployAuth()
	assert.Equal(t, "git", a.SSHUser())
	assert.Equal(t, "id_ed25519", filepath.Base(a.SSHKeyPath()))

	a = &AuthConfig{Type: AuthTypeSSH, Username: "deploy", KeyPath: "/keys/pages"}
	assert.Equal(t, "deploy", a.SSHUser())
	assert.Equal(t, "/keys/pages", a.SSHKeyPath())
}
