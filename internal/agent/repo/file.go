package repo

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	errx "github.com/gasdesk/agent-server/internal/core/error"
)

// FileBackend stores one JSON file per record under <root>/<kind>/<id>.json.
// Writes go to a temp file first and are renamed into place.
type FileBackend struct {
	root string
}

func NewFileBackend(root string) (*FileBackend, error) {
	for _, kind := range []Kind{KindSession, KindUser} {
		if err := os.MkdirAll(filepath.Join(root, string(kind)), 0o755); err != nil {
			return nil, fmt.Errorf("create %s directory: %w", kind, err)
		}
	}
	return &FileBackend{root: root}, nil
}

func (f *FileBackend) path(kind Kind, id string) string {
	// PathEscape keeps ids like "../x" or "a/b" inside the kind directory.
	return filepath.Join(f.root, string(kind), url.PathEscape(id)+".json")
}

func (f *FileBackend) Get(_ context.Context, kind Kind, id string) ([]byte, error) {
	data, err := os.ReadFile(f.path(kind, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s", errx.ErrNotFound, kind, id)
		}
		return nil, fmt.Errorf("read %s/%s: %w", kind, id, err)
	}
	return data, nil
}

func (f *FileBackend) Put(_ context.Context, kind Kind, id string, body []byte) error {
	if err := checkID(id); err != nil {
		return err
	}
	path := f.path(kind, id)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("save %s/%s: %w", kind, id, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("save %s/%s: %w", kind, id, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("save %s/%s: %w", kind, id, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("save %s/%s: %w", kind, id, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("save %s/%s: %w", kind, id, err)
	}
	return nil
}

func (f *FileBackend) List(_ context.Context, kind Kind) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(f.root, string(kind)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		id, err := url.PathUnescape(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (f *FileBackend) Close() error { return nil }

var _ Backend = (*FileBackend)(nil)
