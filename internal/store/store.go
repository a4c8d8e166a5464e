// Package store provides key-value persistence backends for sealbox secrets.
// Every backend exposes the same per-key operations; keys are independently
// addressable and there are no cross-key transactions.
package store

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested key is not present.
	ErrNotFound = errors.New("key not found")
)

// Store is the key-value boundary the secret controller writes through.
type Store interface {
	// Set writes a value under key, overwriting any existing value.
	Set(ctx context.Context, key, value string) error

	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes key. Returns ErrNotFound if it was not present.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// AtomicStore is implemented by backends that can read and delete a key in a
// single atomic step. The controller uses it to guarantee that a secret is
// handed out at most once under concurrent retrieval.
type AtomicStore interface {
	// GetDelete atomically reads and removes the value under key.
	// Returns ErrNotFound if the key was not present.
	GetDelete(ctx context.Context, key string) (string, error)
}

// IsNotFound returns true if the error is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Backend identifies a store implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendPostgres Backend = "postgres"
	BackendSQLite   Backend = "sqlite"
	BackendVault    Backend = "vault"
	BackendMinio    Backend = "minio"
)

// ParseBackend validates a backend name.
func ParseBackend(s string) (Backend, error) {
	switch Backend(s) {
	case BackendMemory, BackendPostgres, BackendSQLite, BackendVault, BackendMinio:
		return Backend(s), nil
	default:
		return "", fmt.Errorf("unknown store backend: %q", s)
	}
}
