package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const fileExt = ".json"

// FileBackend stores one JSON file per record under <root>/<namespace>/<id>.json.
type FileBackend struct {
	root string
}

// NewFileBackend creates root if needed and returns a backend rooted there.
func NewFileBackend(root string) (*FileBackend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileBackend{root: root}, nil
}

func (f *FileBackend) dir(namespace string) string {
	return filepath.Join(f.root, sanitizeID(namespace))
}

func (f *FileBackend) path(namespace, id string) string {
	return filepath.Join(f.dir(namespace), id+fileExt)
}

func (f *FileBackend) Read(ctx context.Context, namespace, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(f.path(namespace, id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read cache file: %w", err)
	}
	return b, nil
}

// Write writes rec to a temp file next to the target and renames it into place.
// On any failure before the rename the temp file is removed and the existing
// file is left untouched.
func (f *FileBackend) Write(ctx context.Context, rec Record) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := f.dir(rec.Namespace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create namespace dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, rec.ID+fileExt+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	renamed := false
	defer func() {
		if !renamed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(rec.Data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path(rec.Namespace, rec.ID)); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	renamed = true
	return nil
}

func (f *FileBackend) Delete(ctx context.Context, namespace, id string) error {
	err := os.Remove(f.path(namespace, id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove cache file: %w", err)
	}
	return nil
}

func (f *FileBackend) List(ctx context.Context, namespace string) ([]string, error) {
	entries, err := os.ReadDir(f.dir(namespace))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list cache dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if id, ok := strings.CutSuffix(e.Name(), fileExt); ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (f *FileBackend) Namespaces(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("list cache root: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

func (f *FileBackend) Close() error { return nil }

var _ Backend = (*FileBackend)(nil)
