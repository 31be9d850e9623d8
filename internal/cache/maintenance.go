package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rcliao/reddit-digest/internal/model"
)

// Feed returns, for every subject, the live payload with the highest limit
// cached for period. Unreadable documents are skipped.
func (s *Store) Feed(ctx context.Context, period model.Period) ([]json.RawMessage, error) {
	ids, err := s.backend.List(ctx, SubjectNamespace)
	if err != nil {
		return nil, fmt.Errorf("cache feed: %w", err)
	}

	now := s.now()
	items := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		raw, err := s.backend.Read(ctx, SubjectNamespace, id)
		if err != nil {
			continue
		}
		doc, err := decodeSubjectDocument(raw)
		if err != nil {
			continue
		}
		best, bestLimit := json.RawMessage(nil), 0
		for k, e := range doc.Bucket(period) {
			limit, _ := parseLimitKey(k)
			if e.expired(now) || limit <= bestLimit {
				continue
			}
			best, bestLimit = e.Data, limit
		}
		if best != nil {
			items = append(items, best)
		}
	}
	return items, nil
}

// Purge removes expired and corrupt records from namespace and returns how
// many entries were dropped.
func (s *Store) Purge(ctx context.Context, namespace string) (int, error) {
	ids, err := s.backend.List(ctx, namespace)
	if err != nil {
		return 0, fmt.Errorf("cache purge %s: %w", namespace, err)
	}

	removed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		n, err := s.purgeOne(ctx, namespace, id)
		if err != nil {
			s.log.Warn("cache purge failed", "namespace", namespace, "id", id, "err", err)
			continue
		}
		removed += n
	}
	return removed, nil
}

func (s *Store) purgeOne(ctx context.Context, namespace, id string) (int, error) {
	unlock := s.locks.lock(namespace, id)
	defer unlock()

	raw, err := s.backend.Read(ctx, namespace, id)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	now := s.now()

	if namespace != SubjectNamespace {
		entry, err := decodeEntry(raw)
		if err == nil && !entry.expired(now) {
			return 0, nil
		}
		return 1, s.backend.Delete(ctx, namespace, id)
	}

	doc, err := decodeSubjectDocument(raw)
	if err != nil {
		return 1, s.backend.Delete(ctx, namespace, id)
	}
	n := 0
	for _, p := range model.Periods {
		n += doc.Bucket(p).pruneExpired(now)
	}
	switch {
	case n == 0:
		return 0, nil
	case doc.Len() == 0:
		return n, s.backend.Delete(ctx, namespace, id)
	default:
		return n, s.writeDocument(ctx, id, doc)
	}
}

// NamespaceStats holds per-namespace record counts.
type NamespaceStats struct {
	NS      string `json:"ns"`
	Records int    `json:"records"`
}

// Stats returns record counts for every namespace in the backend.
func (s *Store) Stats(ctx context.Context) ([]NamespaceStats, error) {
	namespaces, err := s.backend.Namespaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("cache stats: %w", err)
	}
	out := make([]NamespaceStats, 0, len(namespaces))
	for _, ns := range namespaces {
		ids, err := s.backend.List(ctx, ns)
		if err != nil {
			return out, fmt.Errorf("cache stats %s: %w", ns, err)
		}
		out = append(out, NamespaceStats{NS: ns, Records: len(ids)})
	}
	return out, nil
}
