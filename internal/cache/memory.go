package cache

import (
	"context"
	"slices"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
)

// MemoryBackend keeps records in a concurrent map owned by the process.
type MemoryBackend struct {
	records *xsync.MapOf[string, Record]
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: xsync.NewMapOf[string, Record]()}
}

func memoryKey(namespace, id string) string {
	return namespace + "\x00" + id
}

func (m *MemoryBackend) Read(ctx context.Context, namespace, id string) ([]byte, error) {
	rec, ok := m.records.Load(memoryKey(namespace, id))
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(rec.Data), nil
}

func (m *MemoryBackend) Write(ctx context.Context, rec Record) error {
	rec.Data = slices.Clone(rec.Data)
	m.records.Store(memoryKey(rec.Namespace, rec.ID), rec)
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context, namespace, id string) error {
	m.records.Delete(memoryKey(namespace, id))
	return nil
}

func (m *MemoryBackend) List(ctx context.Context, namespace string) ([]string, error) {
	prefix := namespace + "\x00"
	var ids []string
	m.records.Range(func(k string, _ Record) bool {
		if id, ok := strings.CutPrefix(k, prefix); ok {
			ids = append(ids, id)
		}
		return true
	})
	slices.Sort(ids)
	return ids, nil
}

func (m *MemoryBackend) Namespaces(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	m.records.Range(func(_ string, rec Record) bool {
		seen[rec.Namespace] = true
		return true
	})
	out := make([]string, 0, len(seen))
	for ns := range seen {
		out = append(out, ns)
	}
	slices.Sort(out)
	return out, nil
}

func (m *MemoryBackend) Close() error { return nil }

var _ Backend = (*MemoryBackend)(nil)
