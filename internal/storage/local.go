package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// PublicPrefix is the URL path under which local uploads are served.
const PublicPrefix = "files"

// LocalStorage writes uploads to a directory that is served under /files/.
type LocalStorage struct {
	dir string
}

// NewLocalStorage ensures dir exists and returns storage rooted there.
func NewLocalStorage(dir string) (*LocalStorage, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("local storage: directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("local storage: create %s: %w", dir, err)
	}
	return &LocalStorage{dir: dir}, nil
}

// Dir returns the directory holding uploads.
func (s *LocalStorage) Dir() string { return s.dir }

// Save writes r to name inside the upload directory and returns "files/<name>".
func (s *LocalStorage) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	base, ok := cleanName(name)
	if !ok {
		return "", fmt.Errorf("local storage: invalid name %q", name)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	target := filepath.Join(s.dir, base)
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", fmt.Errorf("local storage: create %s: %w", base, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(target)
		return "", fmt.Errorf("local storage: write %s: %w", base, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(target)
		return "", fmt.Errorf("local storage: close %s: %w", base, err)
	}
	return path.Join(PublicPrefix, base), nil
}

// Exists reports whether ref, as returned by Save, names a stored file.
func (s *LocalStorage) Exists(_ context.Context, ref string) (bool, error) {
	base, ok := refName(ref)
	if !ok {
		return false, nil
	}

	info, err := os.Stat(filepath.Join(s.dir, base))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("local storage: stat %s: %w", base, err)
	}
	return info.Mode().IsRegular(), nil
}

// Delete removes the file ref names. Foreign or missing references are ignored.
func (s *LocalStorage) Delete(_ context.Context, ref string) error {
	base, ok := refName(ref)
	if !ok {
		return nil
	}
	if err := os.Remove(filepath.Join(s.dir, base)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("local storage: remove %s: %w", base, err)
	}
	return nil
}

// refName extracts the file name from a "files/<name>" reference.
func refName(ref string) (string, bool) {
	ref = strings.TrimLeft(strings.TrimSpace(ref), "/")
	rest, ok := strings.CutPrefix(ref, PublicPrefix+"/")
	if !ok {
		return "", false
	}
	return cleanName(rest)
}

// cleanName accepts only a single path element.
func cleanName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", false
	}
	return name, true
}
