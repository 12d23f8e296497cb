// Package kvstore defines the narrow transactional KV interface the rest
// of ringtsdb is written against (spec.md §9 "Global backend handle":
// operations accept the backend as an argument rather than reaching for
// ambient state). spec.md treats the backend itself as an external
// collaborator assumed to provide serializable transactions, ordered
// keys, and atomic multi-key commit; Backend is that assumption made
// concrete so the engine can be exercised against BadgerDB in production
// and an in-memory fake in tests.
package kvstore

import "context"

// Txn is a single serializable transaction. Reads and writes within a
// Txn observe one consistent snapshot; writes are only visible to other
// transactions after the enclosing Update commits.
type Txn interface {
	// Get returns the value for key, or (nil, nil) if key is absent.
	Get(key []byte) ([]byte, error)

	// Set writes key to value, overwriting any prior value.
	Set(key, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key []byte) error

	// IterPrefix calls fn for every key with the given byte prefix, in
	// ascending key order, until fn returns false or an error. Values
	// are delivered alongside keys; callers that only need keys may
	// ignore the value argument.
	IterPrefix(prefix []byte, fn func(key, value []byte) (more bool, err error)) error
}

// Backend is the process-wide connection to the transactional KV store.
// Exactly one Backend is held for the life of the process (spec.md §5
// "at most one long-lived connection pool").
type Backend interface {
	// Update runs fn in a read-write transaction, committing on success
	// and rolling back if fn or the commit returns an error. fn may be
	// retried internally if the backend reports a transient conflict.
	Update(ctx context.Context, fn func(Txn) error) error

	// View runs fn in a read-only snapshot transaction.
	View(ctx context.Context, fn func(Txn) error) error

	// Close releases the backend's resources. Safe to call once during
	// process shutdown.
	Close() error
}
