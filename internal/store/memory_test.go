package store

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
)

func TestNewSnapshot(t *testing.T) {
	initial := map[string]string{"1": "BV1"}
	s := NewSnapshot(initial)

	// must hold a copy
	initial["1"] = "changed"
	if id, _ := s.Get("1"); id != "BV1" {
		t.Errorf("Get(1) = %q, want BV1", id)
	}
	if s.dirty() {
		t.Error("new snapshot is dirty")
	}
}

func TestSnapshot_SetAndGet(t *testing.T) {
	s := NewSnapshot(nil)

	if _, ok := s.Get("1"); ok {
		t.Fatal("Get() on empty snapshot reported a value")
	}

	s.Set("1", "BV1")
	if id, ok := s.Get("1"); !ok || id != "BV1" {
		t.Errorf("Get(1) = %q, %v, want BV1, true", id, ok)
	}
	if !s.dirty() {
		t.Error("dirty() = false after Set")
	}

	s.Set("1", "BV2")
	if id, _ := s.Get("1"); id != "BV2" {
		t.Errorf("Get(1) = %q, want BV2", id)
	}
	if s.size() != 1 {
		t.Errorf("size() = %d, want 1", s.size())
	}
}

func TestSnapshot_SetSameValueIsNoop(t *testing.T) {
	s := NewSnapshot(map[string]string{"1": "BV1"})
	s.Set("1", "BV1")
	if s.dirty() {
		t.Error("dirty() = true after setting the current value")
	}
}

func TestSnapshot_EntriesIsCopy(t *testing.T) {
	s := NewSnapshot(map[string]string{"1": "BV1"})
	e := s.Entries()
	e["1"] = "mutated"
	e["2"] = "added"

	if id, _ := s.Get("1"); id != "BV1" {
		t.Errorf("Get(1) = %q after mutating Entries()", id)
	}
	if _, ok := s.Get("2"); ok {
		t.Error("Entries() mutation leaked into snapshot")
	}
}

func TestSnapshot_FlushMarksClean(t *testing.T) {
	s := NewSnapshot(nil)
	s.Set("1", "BV1")

	var written map[string]string
	err := s.flush(context.Background(), func(_ context.Context, entries map[string]string) error {
		written = entries
		return nil
	})
	if err != nil {
		t.Fatalf("flush() error = %v", err)
	}
	if written["1"] != "BV1" {
		t.Errorf("written = %v", written)
	}
	if s.dirty() {
		t.Error("dirty() = true after successful flush")
	}
}

func TestSnapshot_FailedFlushStaysDirty(t *testing.T) {
	s := NewSnapshot(nil)
	s.Set("1", "BV1")

	err := s.flush(context.Background(), func(context.Context, map[string]string) error {
		return ErrPersist
	})
	if !errors.Is(err, ErrPersist) {
		t.Fatalf("flush() error = %v, want ErrPersist", err)
	}
	if !s.dirty() {
		t.Error("dirty() = false after failed flush")
	}
}

func TestSnapshot_ChangeDuringFlushStaysDirty(t *testing.T) {
	s := NewSnapshot(nil)
	s.Set("1", "BV1")

	err := s.flush(context.Background(), func(context.Context, map[string]string) error {
		s.Set("2", "BV2")
		return nil
	})
	if err != nil {
		t.Fatalf("flush() error = %v", err)
	}
	if !s.dirty() {
		t.Error("dirty() = false although a Set raced the flush")
	}
}

func TestSnapshot_ConcurrentAccess(t *testing.T) {
	s := NewSnapshot(nil)

	var wg sync.WaitGroup
	numGoroutines := 10
	numUpdates := 100

	// concurrent writers
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numUpdates; j++ {
				s.Set(strconv.Itoa(id), "BV"+strconv.Itoa(j))
			}
		}(i)
	}

	// concurrent readers
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numUpdates; j++ {
				_, _ = s.Get("1")
				_ = s.Entries()
			}
		}()
	}

	// concurrent flushes
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.flush(context.Background(), func(context.Context, map[string]string) error { return nil })
		}()
	}

	wg.Wait()

	if s.size() != numGoroutines {
		t.Errorf("size() = %d, want %d", s.size(), numGoroutines)
	}
}

func TestMemoryStore(t *testing.T) {
	m := NewMemoryStore(map[string]string{"1": "BV1"})
	ctx := context.Background()

	if got := m.Load(ctx); got["1"] != "BV1" {
		t.Errorf("Load() = %v", got)
	}
	m.Set("2", "BV2")
	if err := m.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if m.Flushes() != 1 {
		t.Errorf("Flushes() = %d, want 1", m.Flushes())
	}
	if m.dirty() {
		t.Error("dirty() = true after Flush")
	}
	if err := m.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
