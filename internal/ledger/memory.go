package ledger

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/google/btree"
)

type memEntry struct {
	key     string
	value   []byte
	version uint64
	deleted bool
}

func memEntryLess(a, b memEntry) bool { return a.key < b.key }

// MemoryBackend keeps world state in a B-tree ordered by key, with deleted
// keys kept as tombstones so their version survives.
type MemoryBackend struct {
	mu      sync.RWMutex
	tree    *btree.BTreeG[memEntry]
	history map[string][]KeyModification
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		tree:    btree.NewG(32, memEntryLess),
		history: make(map[string][]KeyModification),
	}
}

// NewMemory returns a Ledger over a fresh MemoryBackend.
func NewMemory(opts ...Option) *Ledger {
	return New(NewMemoryBackend(), opts...)
}

func (m *MemoryBackend) Get(_ context.Context, key string) (Versioned, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.tree.Get(memEntry{key: key})
	if !ok {
		return Versioned{Key: key}, nil
	}
	return Versioned{Key: key, Value: bytes.Clone(e.value), Version: e.version, Exists: !e.deleted}, nil
}

func (m *MemoryBackend) Range(_ context.Context, startKey, endKey string) ([]Versioned, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Versioned{}
	visit := func(e memEntry) bool {
		if !e.deleted {
			out = append(out, Versioned{Key: e.key, Value: bytes.Clone(e.value), Version: e.version, Exists: true})
		}
		return true
	}
	if endKey == "" {
		m.tree.AscendGreaterOrEqual(memEntry{key: startKey}, visit)
	} else {
		m.tree.AscendRange(memEntry{key: startKey}, memEntry{key: endKey}, visit)
	}
	return out, nil
}

func (m *MemoryBackend) History(_ context.Context, key string) ([]KeyModification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h := m.history[key]
	out := make([]KeyModification, len(h))
	for i, mod := range h {
		mod.Value = bytes.Clone(mod.Value)
		out[i] = mod
	}
	return out, nil
}

func (m *MemoryBackend) Commit(_ context.Context, c Commit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, seen := range c.Reads {
		var current uint64
		if e, ok := m.tree.Get(memEntry{key: key}); ok {
			current = e.version
		}
		if current != seen {
			return fmt.Errorf("%w: key %q at version %d, read %d", ErrConflict, key, current, seen)
		}
	}
	for _, w := range c.Writes {
		if h := m.history[w.Key]; len(h) > 0 && !c.Timestamp.After(h[len(h)-1].Timestamp) {
			return fmt.Errorf("%w: key %q has a newer write", ErrConflict, w.Key)
		}
	}

	for _, w := range c.Writes {
		prev, _ := m.tree.Get(memEntry{key: w.Key})
		next := memEntry{key: w.Key, version: prev.version + 1, deleted: w.IsDelete}
		mod := KeyModification{TxID: c.TxID, Timestamp: c.Timestamp, IsDelete: w.IsDelete}
		if !w.IsDelete {
			next.value = bytes.Clone(w.Value)
			mod.Value = bytes.Clone(w.Value)
		}
		m.tree.ReplaceOrInsert(next)
		mod.Hash = ChainHash(LastHash(m.history[w.Key]), mod)
		m.history[w.Key] = append(m.history[w.Key], mod)
	}
	return nil
}

func (m *MemoryBackend) Ping(context.Context) error { return nil }

func (m *MemoryBackend) Close() error { return nil }
