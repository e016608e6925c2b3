// Package kv defines the minimal key-value store contract the mutation
// engine coordinates through, plus a Redis-backed implementation and a
// concurrent in-memory implementation for tests and single-node use.
//
// All operations are treated as network calls that may fail transiently.
// The adapter does not retry; retry policy belongs to the caller.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no live value exists for a key.
// Absence is an expected state, not a fault.
var ErrNotFound = errors.New("kv: key not found")

// Store is the coordination substrate contract. TTLs have millisecond
// resolution; a zero TTL means the key does not expire.
type Store interface {
	// Set writes value under key with the given TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX writes value under key only if the key has no live value.
	// It reports whether the write happened. This is the atomic
	// conditional-set used to harden the advisory lock protocol.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Get returns the live value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
