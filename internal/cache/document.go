package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rcliao/reddit-digest/internal/model"
)

// ErrCorrupt marks a stored record that does not parse or has the wrong shape.
var ErrCorrupt = errors.New("cache: corrupt record")

// Entry is one stored payload with its expiry.
type Entry struct {
	ExpiresAt time.Time       `json:"expiresAt"`
	Data      json.RawMessage `json:"data"`
}

func (e Entry) validate() error {
	if e.ExpiresAt.IsZero() {
		return fmt.Errorf("missing expiresAt")
	}
	if len(e.Data) == 0 || bytes.Equal(e.Data, []byte("null")) {
		return fmt.Errorf("missing data")
	}
	return nil
}

// expired reports whether e is no longer live at now (expiresAt <= now).
func (e Entry) expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Bucket maps "limit=<N>" to an entry.
type Bucket map[string]Entry

// SubjectDocument is the physical record of one subject in SubjectNamespace.
// Every known period has a bucket once the document exists.
type SubjectDocument struct {
	Day   Bucket `json:"1d"`
	Week  Bucket `json:"1week"`
	Month Bucket `json:"1month"`
}

// NewSubjectDocument returns a document with all period buckets present and empty.
func NewSubjectDocument() *SubjectDocument {
	return &SubjectDocument{Day: Bucket{}, Week: Bucket{}, Month: Bucket{}}
}

// Bucket returns the bucket for p, or nil for an unknown period.
func (d *SubjectDocument) Bucket(p model.Period) Bucket {
	switch p {
	case model.PeriodDay:
		return d.Day
	case model.PeriodWeek:
		return d.Week
	case model.PeriodMonth:
		return d.Month
	}
	return nil
}

// Len is the number of entries across all buckets.
func (d *SubjectDocument) Len() int {
	return len(d.Day) + len(d.Week) + len(d.Month)
}

// pruneExpired drops expired entries from b and returns how many were removed.
func (b Bucket) pruneExpired(now time.Time) int {
	n := 0
	for k, e := range b {
		if e.expired(now) {
			delete(b, k)
			n++
		}
	}
	return n
}

// latestExpiry is the furthest expiry of any entry, zero when empty.
func (d *SubjectDocument) latestExpiry() time.Time {
	var latest time.Time
	for _, p := range model.Periods {
		for _, e := range d.Bucket(p) {
			if e.ExpiresAt.After(latest) {
				latest = e.ExpiresAt
			}
		}
	}
	return latest
}

func strictDecode(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("trailing data")
	}
	return nil
}

func decodeEntry(raw []byte) (Entry, error) {
	var e Entry
	if err := strictDecode(raw, &e); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := e.validate(); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return e, nil
}

func decodeSubjectDocument(raw []byte) (*SubjectDocument, error) {
	var d SubjectDocument
	if err := strictDecode(raw, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	for _, p := range model.Periods {
		b := d.Bucket(p)
		if b == nil {
			return nil, fmt.Errorf("%w: missing %s bucket", ErrCorrupt, p)
		}
		for k, e := range b {
			if _, err := parseLimitKey(k); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, p, err)
			}
			if err := e.validate(); err != nil {
				return nil, fmt.Errorf("%w: %s[%s]: %v", ErrCorrupt, p, k, err)
			}
		}
	}
	return &d, nil
}
