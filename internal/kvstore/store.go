// Package kvstore provides the durable key-value store shared across
// controller instances and process restarts: title markers, the title
// cache and the pending title queue snapshot live here. Writes are
// idempotent, so callers only need read-before-write re-validation, no
// locking across processes.
package kvstore

import "context"

type Store interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes key to value. Overwriting with the same value is harmless.
	Set(ctx context.Context, key, value string) error
	Has(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	Close() error
}
