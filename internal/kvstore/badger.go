package kvstore

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/ringtsdb/ringtsdb/internal/errs"
)

// BadgerConfig configures the embedded BadgerDB backend, grounded in the
// teacher's storage/badger Config: conservative memory limits so the
// engine behaves on a laptop as well as a server.
type BadgerConfig struct {
	Path        string
	InMemory    bool
	MaxMemoryMB int64
}

// BadgerBackend implements Backend over an embedded BadgerDB instance.
type BadgerBackend struct {
	db *badger.DB
}

// NewBadgerBackend opens (or creates) the BadgerDB instance at cfg.Path.
func NewBadgerBackend(cfg BadgerConfig) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	memTableSize := int64(16 * 1024 * 1024)
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB * 1024 * 1024 / 3
	}

	opts = opts.
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(memTableSize / 2).
		WithIndexCacheSize(memTableSize / 4).
		WithMaxLevels(4).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024).
		WithNumCompactors(2).
		WithValueLogFileSize(64 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open badger: %w", err)
	}
	return &BadgerBackend{db: db}, nil
}

// Close shuts down the underlying BadgerDB instance.
func (b *BadgerBackend) Close() error { return b.db.Close() }

type badgerTxn struct{ txn *badger.Txn }

func (t *badgerTxn) Get(key []byte) ([]byte, error) {
	item, err := t.txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (t *badgerTxn) Set(key, value []byte) error {
	if len(value) > 100<<10 {
		return errs.New(errs.LimitExceeded, "value of %d bytes exceeds 100kB per-value limit", len(value))
	}
	return t.txn.Set(key, value)
}

func (t *badgerTxn) Delete(key []byte) error { return t.txn.Delete(key) }

func (t *badgerTxn) IterPrefix(prefix []byte, fn func(key, value []byte) (bool, error)) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := t.txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		more, err := fn(key, val)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

// Update runs fn in a read-write transaction, translating Badger's commit
// conflict into BACKEND_TRANSIENT so registry.Ensure's retry-once policy
// (spec.md §4.B) can act on it, and respecting ctx cancellation the same
// way the teacher's badger.Storage.Write does: the transaction body runs
// on its own goroutine so a cancelled ctx can return promptly without
// leaving the caller blocked on a wedged backend.
func (b *BadgerBackend) Update(ctx context.Context, fn func(Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		done <- b.db.Update(func(txn *badger.Txn) error {
			return fn(&badgerTxn{txn: txn})
		})
	}()
	select {
	case err := <-done:
		return translateBadgerErr(err)
	case <-ctx.Done():
		return errs.Wrap(errs.BackendTransient, ctx.Err(), "update cancelled")
	}
}

// View runs fn in a read-only snapshot transaction.
func (b *BadgerBackend) View(ctx context.Context, fn func(Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		done <- b.db.View(func(txn *badger.Txn) error {
			return fn(&badgerTxn{txn: txn})
		})
	}()
	select {
	case err := <-done:
		return translateBadgerErr(err)
	case <-ctx.Done():
		return errs.Wrap(errs.BackendTransient, ctx.Err(), "view cancelled")
	}
}

func translateBadgerErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*errs.Error); ok {
		return err
	}
	if err == badger.ErrConflict {
		return errs.Wrap(errs.BackendTransient, err, "commit conflict")
	}
	return errs.Wrap(errs.BackendFatal, err, "backend error")
}

// Size reports the on-disk size (LSM + value log) of the backend.
func (b *BadgerBackend) Size() (lsm, vlog int64) { return b.db.Size() }

// RunValueLogGC reclaims disk space from superseded values, grounded in
// the teacher's badger.Storage.RunGC.
func (b *BadgerBackend) RunValueLogGC(discardRatio float64) error {
	return b.db.RunValueLogGC(discardRatio)
}
