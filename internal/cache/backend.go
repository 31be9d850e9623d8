package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by a Backend when a record does not exist.
var ErrNotFound = errors.New("cache: record not found")

// Record is one physical record as handed to a Backend.
type Record struct {
	Namespace string
	ID        string
	Data      []byte
	// ExpiresAt is the latest expiry of anything in Data. Backends may index it,
	// but liveness is always decided by Store from Data itself.
	ExpiresAt time.Time
}

// Backend persists physical records. Every Write must be all-or-nothing from
// the point of view of a concurrent Read.
type Backend interface {
	// Read returns the record bytes, or ErrNotFound.
	Read(ctx context.Context, namespace, id string) ([]byte, error)
	// Write creates or replaces a record atomically.
	Write(ctx context.Context, rec Record) error
	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, namespace, id string) error
	// List returns the ids of all records in a namespace.
	List(ctx context.Context, namespace string) ([]string, error)
	// Namespaces returns every namespace holding at least one record.
	Namespaces(ctx context.Context) ([]string, error)
	// Close releases resources owned by the backend.
	Close() error
}
