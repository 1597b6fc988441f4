// Package audiofile stores finished audio artifacts on local disk under
// generated, unguessable names and opens them again for serving.
package audiofile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned by [Dir.Open] for names that do not resolve to a
// stored artifact.
var ErrNotFound = errors.New("audiofile: not found")

// Dir is a directory of artifacts. It is safe for concurrent use.
type Dir struct {
	root string
}

// New returns a Dir rooted at root, creating the directory if needed.
func New(root string) (*Dir, error) {
	if root == "" {
		return nil, errors.New("audiofile: directory must not be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("audiofile: create %s: %w", root, err)
	}
	return &Dir{root: root}, nil
}

// Root returns the directory path.
func (d *Dir) Root() string { return d.root }

// Save writes data under a fresh "<uuid><ext>" name and returns that name.
// The file appears atomically: readers never see a partial artifact.
func (d *Dir) Save(data []byte, ext string) (string, error) {
	name := uuid.NewString() + ext

	tmp, err := os.CreateTemp(d.root, ".partial-*")
	if err != nil {
		return "", fmt.Errorf("audiofile: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("audiofile: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("audiofile: close: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return "", fmt.Errorf("audiofile: chmod: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(d.root, name)); err != nil {
		return "", fmt.Errorf("audiofile: rename: %w", err)
	}
	return name, nil
}

// Open opens a stored artifact for reading. Only the base name of name is
// used, so path components cannot escape the directory. Hidden names,
// directories and missing files all yield [ErrNotFound].
func (d *Dir) Open(name string) (*os.File, fs.FileInfo, error) {
	clean, ok := Sanitize(name)
	if !ok {
		return nil, nil, ErrNotFound
	}

	f, err := os.Open(filepath.Join(d.root, clean))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("audiofile: open %s: %w", clean, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("audiofile: stat %s: %w", clean, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, nil, ErrNotFound
	}
	return f, info, nil
}

// Remove deletes a stored artifact. Removing a missing artifact is not an
// error.
func (d *Dir) Remove(name string) error {
	clean, ok := Sanitize(name)
	if !ok {
		return nil
	}
	err := os.Remove(filepath.Join(d.root, clean))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("audiofile: remove %s: %w", clean, err)
	}
	return nil
}

// Sanitize reduces name to its final path element. It reports false when
// nothing servable remains.
func Sanitize(name string) (string, bool) {
	name = strings.ReplaceAll(name, `\`, "/")
	base := filepath.Base(filepath.FromSlash(name))
	if base == "." || base == ".." || base == string(filepath.Separator) || strings.HasPrefix(base, ".") {
		return "", false
	}
	return base, true
}
