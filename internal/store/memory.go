package store

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
)

// Snapshot is the in-memory mapping shared by every backend.
//
// Snapshot provides thread-safe Get and Set plus the bookkeeping a backend
// needs to flush: a dirty flag and a generation counter bumped on every
// change. Flushes are serialised by their own mutex so a slow write never
// blocks Get or Set.
type Snapshot struct {
	mu         sync.RWMutex
	entries    map[string]string
	generation uint64
	clean      uint64 // generation last written

	flushMu sync.Mutex
}

// NewSnapshot creates a Snapshot holding a copy of initial.
func NewSnapshot(initial map[string]string) *Snapshot {
	s := &Snapshot{entries: make(map[string]string, len(initial))}
	maps.Copy(s.entries, initial)
	return s
}

// Get returns the recorded item id for creatorID.
func (s *Snapshot) Get(creatorID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.entries[creatorID]
	return id, ok
}

// Set records itemID for creatorID. Recording the current value is a no-op.
func (s *Snapshot) Set(creatorID, itemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.entries[creatorID]; ok && cur == itemID {
		return
	}
	s.entries[creatorID] = itemID
	s.generation++
}

// Entries returns a copy of the mapping.
func (s *Snapshot) Entries() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.entries)
}

// size returns the number of recorded creators.
func (s *Snapshot) size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// dirty reports whether the mapping changed since the last successful flush
// or replace.
func (s *Snapshot) dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation != s.clean
}

// replace swaps in a freshly loaded mapping and marks it clean.
func (s *Snapshot) replace(entries map[string]string) map[string]string {
	if entries == nil {
		entries = make(map[string]string)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = entries
	s.generation++
	s.clean = s.generation
	return maps.Clone(entries)
}

// flush hands a copy of the mapping to write. Calls are serialised. The
// snapshot is marked clean only if write succeeded and nothing changed
// while it ran.
func (s *Snapshot) flush(ctx context.Context, write func(ctx context.Context, entries map[string]string) error) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.RLock()
	entries := maps.Clone(s.entries)
	gen := s.generation
	s.mu.RUnlock()

	if err := write(ctx, entries); err != nil {
		return err
	}

	s.mu.Lock()
	if s.generation == gen {
		s.clean = gen
	}
	s.mu.Unlock()
	return nil
}

// MemoryStore is a [Store] that never persists. Load returns whatever was
// recorded so far; Flush always succeeds. It serves dry runs and tests.
type MemoryStore struct {
	*Snapshot
	flushes atomic.Int64
}

// NewMemoryStore creates a MemoryStore seeded with initial.
func NewMemoryStore(initial map[string]string) *MemoryStore {
	return &MemoryStore{Snapshot: NewSnapshot(initial)}
}

// Load returns a copy of the current mapping.
func (m *MemoryStore) Load(ctx context.Context) map[string]string {
	return m.Entries()
}

// Flush marks the mapping clean.
func (m *MemoryStore) Flush(ctx context.Context) error {
	return m.flush(ctx, func(context.Context, map[string]string) error {
		m.flushes.Add(1)
		return nil
	})
}

// Flushes returns how many times Flush was called.
func (m *MemoryStore) Flushes() int {
	return int(m.flushes.Load())
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
