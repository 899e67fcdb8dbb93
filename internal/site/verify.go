package site

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	stdErrors "errors"
	"io/fs"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/pagesdeploy/internal/foundation/errors"
)

// Entry and fallback page names of a statically hosted single-page application.
const (
	IndexFile    = "index.html"
	FallbackFile = "404.html"
)

// Verification describes the hand-off state of an output directory.
type Verification struct {
	IndexDigest    string
	FallbackDigest string
	MarkerPresent  bool
}

// Digest returns the hex SHA-256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FileDigest returns the hex SHA-256 of the file at path.
func FileDigest(path string) (string, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", err
	}
	return Digest(data), nil
}

// Verify checks that dir holds index.html and 404.html, that both are byte-identical
// and, when marker is non-empty, that index.html references the marker.
func Verify(dir, marker string) (*Verification, error) {
	index, err := readPage(dir, IndexFile)
	if err != nil {
		return nil, err
	}
	fallback, err := readPage(dir, FallbackFile)
	if err != nil {
		return nil, err
	}

	v := &Verification{IndexDigest: Digest(index), FallbackDigest: Digest(fallback)}
	if !bytes.Equal(index, fallback) {
		return v, errors.ValidationError("404.html differs from index.html").
			WithContext("index_sha256", v.IndexDigest).
			WithContext("fallback_sha256", v.FallbackDigest).
			Build()
	}

	v.MarkerPresent, err = ContainsMarker(filepath.Join(dir, IndexFile), marker)
	if err != nil {
		return v, err
	}
	if !v.MarkerPresent {
		return v, errors.ValidationError("index.html is missing the search marker").
			WithContext("marker", marker).
			Build()
	}
	return v, nil
}

func readPage(dir, name string) ([]byte, error) {
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if stdErrors.Is(err, fs.ErrNotExist) {
			return nil, errors.ValidationError(name+" not found in output directory").
				WithContext("path", path).
				Build()
		}
		return nil, errors.FileSystemError("failed to read "+name).
			WithCause(err).
			WithContext("path", path).
			Build()
	}
	return data, nil
}
