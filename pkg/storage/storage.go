// Package storage defines the pluggable key-value store used to persist
// sessions across client restarts.
//
// The client treats persistence as best-effort: storage failures are logged
// and the in-memory session stays authoritative for the current process.
package storage

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("storage: store closed")

// Storage is a minimal key-value collaborator.
//
// Load reports ok=false when the key is absent; absence is not an error.
type Storage interface {
	Load(ctx context.Context, key string) (value []byte, ok bool, err error)
	Save(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}
