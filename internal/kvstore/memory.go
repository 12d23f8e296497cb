package kvstore

import (
	"bytes"
	"context"
	"sort"
	"sync"
)

// MemoryBackend is an in-memory Backend for tests and development,
// grounded in the teacher's storage/memory.Storage: a single mutex over
// a sorted map, no persistence, useful because it is fast and needs no
// cleanup between test runs. Unlike the teacher's flat metric slice, the
// ring engine needs byte-ordered range scans, so MemoryBackend keeps keys
// sorted rather than append-only.
//
// Update applies each write to the map as fn makes it; if fn returns an
// error, the writes it already made are not undone.
type MemoryBackend struct {
	mu   sync.Mutex
	data map[string][]byte
	keys [][]byte // sorted; a write that adds or removes a key marks it dirty, and the next IterPrefix rebuilds it
	dirty bool
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (m *MemoryBackend) Close() error { return nil }

func (m *MemoryBackend) Update(ctx context.Context, fn func(Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	txn := &memTxn{m: m}
	if err := fn(txn); err != nil {
		return err
	}
	return nil
}

func (m *MemoryBackend) View(ctx context.Context, fn func(Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&memTxn{m: m, readOnly: true})
}

func (m *MemoryBackend) ensureSorted() {
	if !m.dirty {
		return
	}
	m.keys = m.keys[:0]
	for k := range m.data {
		m.keys = append(m.keys, []byte(k))
	}
	sort.Slice(m.keys, func(i, j int) bool { return bytes.Compare(m.keys[i], m.keys[j]) < 0 })
	m.dirty = false
}

type memTxn struct {
	m        *MemoryBackend
	readOnly bool
}

func (t *memTxn) Get(key []byte) ([]byte, error) {
	v, ok := t.m.data[string(key)]
	if !ok {
		return nil, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (t *memTxn) Set(key, value []byte) error {
	k := string(key)
	if _, existed := t.m.data[k]; !existed {
		t.m.dirty = true
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	t.m.data[k] = cp
	return nil
}

func (t *memTxn) Delete(key []byte) error {
	k := string(key)
	if _, existed := t.m.data[k]; existed {
		delete(t.m.data, k)
		t.m.dirty = true
	}
	return nil
}

func (t *memTxn) IterPrefix(prefix []byte, fn func(key, value []byte) (bool, error)) error {
	t.m.ensureSorted()
	start := sort.Search(len(t.m.keys), func(i int) bool {
		return bytes.Compare(t.m.keys[i], prefix) >= 0
	})
	for i := start; i < len(t.m.keys); i++ {
		k := t.m.keys[i]
		if !bytes.HasPrefix(k, prefix) {
			break
		}
		v := t.m.data[string(k)]
		more, err := fn(k, v)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}
