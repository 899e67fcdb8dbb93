package git

import (
	stdErrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagesdeploy/internal/foundation/errors"
)

func TestCloneBranchTip(t *testing.T) {
	src, hashes := newSourceRepo(t,
		map[string]string{"Cargo.toml": "[package]"},
		map[string]string{"src/main.rs": "fn main() {}"},
	)
	dst := filepath.Join(t.TempDir(), "src")

	co, err := NewClient().Clone(t.Context(), CloneRequest{URL: src, Ref: "main", Dir: dst})
	require.NoError(t, err)
	assert.Equal(t, hashes[1], co.Commit)
	assert.Equal(t, "refs/heads/main", co.Ref)
	assert.FileExists(t, filepath.Join(dst, "src", "main.rs"))
}

func TestClonePinnedCommit(t *testing.T) {
	src, hashes := newSourceRepo(t,
		map[string]string{"a.txt": "one"},
		map[string]string{"a.txt": "two"},
	)
	dst := filepath.Join(t.TempDir(), "src")

	co, err := NewClient().Clone(t.Context(), CloneRequest{URL: src, Ref: "refs/heads/main", Commit: hashes[0], Dir: dst})
	require.NoError(t, err)
	assert.Equal(t, hashes[0], co.Commit)

	data, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))
}

func TestCloneMissingBranch(t *testing.T) {
	src, _ := newSourceRepo(t, map[string]string{"a.txt": "one"})

	_, err := NewClient().Clone(t.Context(), CloneRequest{URL: src, Ref: "release", Dir: filepath.Join(t.TempDir(), "src")})
	require.Error(t, err)
	_, ok := errors.AsClassified(err)
	assert.True(t, ok)
}

func TestInspect(t *testing.T) {
	src, hashes := newSourceRepo(t, map[string]string{"a.txt": "one"})

	co, err := Inspect(src)
	require.NoError(t, err)
	assert.Equal(t, hashes[0], co.Commit)
	assert.Equal(t, "refs/heads/main", co.Ref)

	plain, err := Inspect(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, plain.Commit)
}

func TestClassifyGitError(t *testing.T) {
	tests := []struct {
		msg  string
		want errors.ErrorCategory
	}{
		{"authentication required", errors.CategoryAuth},
		{"repository not found", errors.CategoryNotFound},
		{"dial tcp: connection refused", errors.CategoryNetwork},
		{"unsupported protocol scheme", errors.CategoryConfig},
		{"something else", errors.CategoryGit},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			err := ClassifyGitError(stdErrors.New(tt.msg), "clone", "https://example.com/x.git")
			assert.Equal(t, tt.want, errors.GetCategory(err))
		})
	}
	assert.NoError(t, ClassifyGitError(nil, "clone", ""))
}

func TestBranchRef(t *testing.T) {
	assert.Equal(t, "refs/heads/main", BranchRef("main").String())
	assert.Equal(t, "refs/heads/main", BranchRef("refs/heads/main").String())
}
