package workspace

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// SkipFunc reports whether a path (relative to the copy source, slash-separated)
// should be skipped. Skipping a directory skips its contents.
type SkipFunc func(rel string, d fs.DirEntry) bool

// SkipGitDir skips the .git directory at any depth.
func SkipGitDir(_ string, d fs.DirEntry) bool {
	return d.IsDir() && d.Name() == ".git"
}

// CopyTree copies regular files and directories from src into dst, overwriting
// existing files and leaving files that exist only in dst untouched. Symlinks are
// recreated as links. It returns the number of files written.
func CopyTree(src, dst string, skip SkipFunc) (int, error) {
	count := 0
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return os.MkdirAll(dst, 0o750)
		}
		if skip != nil && skip(filepath.ToSlash(rel), d) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		target := filepath.Join(dst, rel)
		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0o750)
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			_ = os.Remove(target)
			if err := os.Symlink(link, target); err != nil {
				return err
			}
			count++
			return nil
		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				return err
			}
			if err := copyFile(path, target, info.Mode().Perm()); err != nil {
				return err
			}
			count++
			return nil
		default:
			return nil
		}
	})
	return count, err
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	// A directory or symlink in the way of a file is replaced, so writes never
	// follow a link out of dst.
	if info, err := os.Lstat(dst); err == nil {
		switch {
		case info.IsDir():
			if err := os.RemoveAll(dst); err != nil {
				return err
			}
		case info.Mode()&fs.ModeSymlink != 0:
			if err := os.Remove(dst); err != nil {
				return err
			}
		}
	}
	out, err := os.OpenFile(filepath.Clean(dst), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
