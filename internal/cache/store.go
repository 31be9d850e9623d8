// Package cache provides the namespaced, time-expiring result cache and its
// memory, file and SQL backends.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Store is the namespaced TTL cache. Reads never fail: any error is a miss.
// Writes are best-effort; failures are logged and returned so the caller can
// decide whether they matter.
type Store struct {
	backend Backend
	locks   stripedLock
	now     func() time.Time
	log     *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used for swallowed failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New returns a Store persisting through backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		now:     time.Now,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Get returns the live payload stored under (namespace, key).
func (s *Store) Get(ctx context.Context, namespace, key string) (json.RawMessage, bool) {
	if namespace == SubjectNamespace {
		return s.getSubject(ctx, key)
	}

	id := hashKey(key)
	raw, ok := s.read(ctx, namespace, id)
	if !ok {
		return nil, false
	}
	entry, err := decodeEntry(raw)
	if err != nil {
		s.log.Warn("discarding corrupt cache record", "namespace", namespace, "key", key, "err", err)
		s.healRecord(ctx, namespace, id, raw, "corrupt")
		return nil, false
	}
	if entry.expired(s.now()) {
		s.healRecord(ctx, namespace, id, raw, "expired")
		return nil, false
	}
	cacheHits.WithLabelValues(namespace).Inc()
	return entry.Data, true
}

func (s *Store) getSubject(ctx context.Context, key string) (json.RawMessage, bool) {
	sk, err := ParseSubjectKey(key)
	if err != nil {
		s.log.Debug("cache get with unparsable subject key", "key", key, "err", err)
		cacheMisses.WithLabelValues(SubjectNamespace, "bad_key").Inc()
		return nil, false
	}

	id := sanitizeID(sk.Subject)
	raw, ok := s.read(ctx, SubjectNamespace, id)
	if !ok {
		return nil, false
	}
	doc, err := decodeSubjectDocument(raw)
	if err != nil {
		s.log.Warn("discarding corrupt subject document", "subject", sk.Subject, "err", err)
		s.healRecord(ctx, SubjectNamespace, id, raw, "corrupt")
		return nil, false
	}
	entry, ok := doc.Bucket(sk.Period)[sk.LimitKey()]
	if !ok {
		cacheMisses.WithLabelValues(SubjectNamespace, "absent").Inc()
		return nil, false
	}
	if entry.expired(s.now()) {
		s.healSubjectEntry(ctx, id, sk)
		return nil, false
	}
	cacheHits.WithLabelValues(SubjectNamespace).Inc()
	return entry.Data, true
}

func (s *Store) read(ctx context.Context, namespace, id string) ([]byte, bool) {
	raw, err := s.backend.Read(ctx, namespace, id)
	switch {
	case errors.Is(err, ErrNotFound):
		cacheMisses.WithLabelValues(namespace, "absent").Inc()
		return nil, false
	case err != nil:
		s.log.Warn("cache read failed", "namespace", namespace, "id", id, "err", err)
		cacheMisses.WithLabelValues(namespace, "error").Inc()
		return nil, false
	}
	return raw, true
}

// healRecord deletes a record observed as expired or corrupt, unless it has
// been rewritten since it was observed.
func (s *Store) healRecord(ctx context.Context, namespace, id string, observed []byte, reason string) {
	cacheMisses.WithLabelValues(namespace, reason).Inc()

	unlock := s.locks.lock(namespace, id)
	defer unlock()

	current, err := s.backend.Read(ctx, namespace, id)
	if err != nil || !bytes.Equal(current, observed) {
		return
	}
	if err := s.backend.Delete(ctx, namespace, id); err != nil {
		s.log.Warn("cache heal failed", "namespace", namespace, "id", id, "err", err)
		return
	}
	cacheHeals.WithLabelValues(namespace, reason).Inc()
}

// healSubjectEntry removes one expired entry from a subject document.
func (s *Store) healSubjectEntry(ctx context.Context, id string, sk SubjectKey) {
	cacheMisses.WithLabelValues(SubjectNamespace, "expired").Inc()

	unlock := s.locks.lock(SubjectNamespace, id)
	defer unlock()

	raw, err := s.backend.Read(ctx, SubjectNamespace, id)
	if err != nil {
		return
	}
	doc, err := decodeSubjectDocument(raw)
	if err != nil {
		if err := s.backend.Delete(ctx, SubjectNamespace, id); err == nil {
			cacheHeals.WithLabelValues(SubjectNamespace, "corrupt").Inc()
		}
		return
	}
	bucket := doc.Bucket(sk.Period)
	entry, ok := bucket[sk.LimitKey()]
	if !ok || !entry.expired(s.now()) {
		return
	}
	delete(bucket, sk.LimitKey())
	if err := s.writeDocument(ctx, id, doc); err != nil {
		s.log.Warn("cache heal failed", "namespace", SubjectNamespace, "id", id, "err", err)
		return
	}
	cacheHeals.WithLabelValues(SubjectNamespace, "expired").Inc()
}

// Set stores payload under (namespace, key) for ttl.
func (s *Store) Set(ctx context.Context, namespace, key string, payload json.RawMessage, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("cache set %s: ttl must be positive", namespace)
	}
	if !json.Valid(payload) {
		return fmt.Errorf("cache set %s: payload is not valid json", namespace)
	}
	if bytes.Equal(bytes.TrimSpace(payload), []byte("null")) {
		return fmt.Errorf("cache set %s: payload is null", namespace)
	}
	expiresAt := s.now().Add(ttl).UTC()
	entry := Entry{ExpiresAt: expiresAt, Data: payload}

	var err error
	if namespace == SubjectNamespace {
		err = s.setSubject(ctx, key, entry)
	} else {
		err = s.setRecord(ctx, namespace, key, entry)
	}
	if err != nil {
		cacheWriteFailures.WithLabelValues(namespace).Inc()
		s.log.Error("cache write failed", "namespace", namespace, "key", key, "err", err)
		return fmt.Errorf("cache set %s: %w", namespace, err)
	}
	return nil
}

// SetJSON marshals v and stores it with Set.
func (s *Store) SetJSON(ctx context.Context, namespace, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache set %s: marshal: %w", namespace, err)
	}
	return s.Set(ctx, namespace, key, b, ttl)
}

// GetJSON reads (namespace, key) into a T. A payload that does not decode is a miss.
func GetJSON[T any](ctx context.Context, s *Store, namespace, key string) (T, bool) {
	var v T
	raw, ok := s.Get(ctx, namespace, key)
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		s.log.Warn("cache payload does not decode", "namespace", namespace, "key", key, "err", err)
		return v, false
	}
	return v, true
}

func (s *Store) setRecord(ctx context.Context, namespace, key string, entry Entry) error {
	id := hashKey(key)
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	unlock := s.locks.lock(namespace, id)
	defer unlock()
	return s.backend.Write(ctx, Record{Namespace: namespace, ID: id, Data: data, ExpiresAt: entry.ExpiresAt})
}

func (s *Store) setSubject(ctx context.Context, key string, entry Entry) error {
	sk, err := ParseSubjectKey(key)
	if err != nil {
		return err
	}
	id := sanitizeID(sk.Subject)

	unlock := s.locks.lock(SubjectNamespace, id)
	defer unlock()

	doc := NewSubjectDocument()
	raw, err := s.backend.Read(ctx, SubjectNamespace, id)
	switch {
	case err == nil:
		if existing, derr := decodeSubjectDocument(raw); derr == nil {
			doc = existing
		} else {
			s.log.Warn("replacing corrupt subject document", "subject", sk.Subject, "err", derr)
		}
	case !errors.Is(err, ErrNotFound):
		return err
	}

	bucket := doc.Bucket(sk.Period)
	bucket.pruneExpired(s.now())
	bucket[sk.LimitKey()] = entry
	return s.writeDocument(ctx, id, doc)
}

func (s *Store) writeDocument(ctx context.Context, id string, doc *SubjectDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return s.backend.Write(ctx, Record{
		Namespace: SubjectNamespace,
		ID:        id,
		Data:      data,
		ExpiresAt: doc.latestExpiry(),
	})
}
