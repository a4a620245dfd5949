// Package kv holds the key-value contract the reminder service persists
// through, plus its in-memory, Redis and SQL backends.
//
// Keys are plain strings and values are opaque strings (JSON in practice).
// There are no transactions and no secondary indexes; callers that need a
// read-modify-write must serialise it themselves.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("kv: key not found")

// Store is the minimal key-value contract.
type Store interface {
	// Get returns the value under key or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Put stores value under key, overwriting any previous value.
	Put(ctx context.Context, key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns every key starting with prefix. Order is not guaranteed.
	List(ctx context.Context, prefix string) ([]string, error)
}
