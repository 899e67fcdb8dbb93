package build

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/pagesdeploy/internal/site"
)

// Artifact names recorded in the report.
const (
	ArtifactPreSearchIndex     = "pre-search index"
	ArtifactSearchEnabledIndex = "search-enabled index"
	ArtifactFallback           = "fallback"
	ArtifactSearchIndex        = "search index"
)

// Artifact is a file captured at a phase boundary, identified by content digest.
type Artifact struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

func captureArtifact(name, path string) (Artifact, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Artifact{}, fmt.Errorf("capture %s: %w", name, err)
	}
	return Artifact{Name: name, Path: path, SHA256: site.Digest(data), Size: int64(len(data))}, nil
}

// copyFile replaces dst with the contents of src. The copy is written to a temporary
// file in dst's directory and renamed over dst, so readers never see a partial page.
func copyFile(src, dst string) error {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".pagesdeploy-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, dst)
}
