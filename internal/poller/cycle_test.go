package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeFetcher returns canned items per creator.
type fakeFetcher struct {
	mu       sync.Mutex
	items    map[string]Item
	failures map[string]error
	calls    []string

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	delay       time.Duration
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{items: make(map[string]Item), failures: make(map[string]error)}
}

func (f *fakeFetcher) publish(creatorID, itemID string) {
	f.mu.Lock()
	f.items[creatorID] = Item{ID: itemID, Title: "title " + itemID, Author: "author", CreatorID: creatorID}
	f.mu.Unlock()
}

func (f *fakeFetcher) fail(creatorID string, err error) {
	f.mu.Lock()
	f.failures[creatorID] = err
	f.mu.Unlock()
}

func (f *fakeFetcher) FetchLatest(ctx context.Context, creatorID string) (Item, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, creatorID)
	if err, ok := f.failures[creatorID]; ok {
		return Item{}, &FetchFailedError{CreatorID: creatorID, Attempts: 3, Err: err}
	}
	item, ok := f.items[creatorID]
	if !ok {
		return Item{}, &FetchFailedError{CreatorID: creatorID, Attempts: 3, Err: ErrNoData}
	}
	return item, nil
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// mapStore is an in-memory StateStore counting flushes.
type mapStore struct {
	mu       sync.Mutex
	entries  map[string]string
	flushes  int
	flushErr error
}

func newMapStore(initial map[string]string) *mapStore {
	entries := make(map[string]string, len(initial))
	for k, v := range initial {
		entries[k] = v
	}
	return &mapStore{entries: entries}
}

func (s *mapStore) Get(creatorID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.entries[creatorID]
	return v, ok
}

func (s *mapStore) Set(creatorID, itemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[creatorID] = itemID
}

func (s *mapStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return s.flushErr
}

// recordingNotifier records notified items.
type recordingNotifier struct {
	mu    sync.Mutex
	items []Item
	err   error
	panic bool
}

func (n *recordingNotifier) Notify(ctx context.Context, item Item) error {
	if n.panic {
		panic("sink exploded")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, item)
	return n.err
}

func (n *recordingNotifier) Items() []Item {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Item(nil), n.items...)
}

func resultFor(t *testing.T, r Report, creatorID string) Result {
	t.Helper()
	for _, res := range r.Results {
		if res.CreatorID == creatorID {
			return res
		}
	}
	t.Fatalf("no result for creator %s", creatorID)
	return Result{}
}

func TestCycle_FirstRunSuppressesNotifications(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.publish("1", "BV1")
	fetcher.publish("2", "BV2")
	state := newMapStore(nil)
	notifier := &recordingNotifier{}

	cycle := NewCycle(fetcher, state, notifier, 1, 0, testLogger())
	report, err := cycle.Run(context.Background(), []string{"1", "2"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := report.Count(OutcomeFirstSeen); got != 2 {
		t.Errorf("first_seen = %d, want 2", got)
	}
	if len(notifier.Items()) != 0 {
		t.Errorf("notified %d items on first run, want 0", len(notifier.Items()))
	}
	if id, _ := state.Get("1"); id != "BV1" {
		t.Errorf("state[1] = %q, want BV1", id)
	}
	if state.flushes != 1 {
		t.Errorf("flushes = %d, want 1", state.flushes)
	}
	if report.RunID == "" {
		t.Error("RunID is empty")
	}
}

func TestCycle_NewItemNotifiesAndRecords(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.publish("1", "BV002")
	state := newMapStore(map[string]string{"1": "BV001"})
	notifier := &recordingNotifier{}

	cycle := NewCycle(fetcher, state, notifier, 1, 0, testLogger())
	report, err := cycle.Run(context.Background(), []string{"1"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	res := resultFor(t, report, "1")
	if res.Outcome != OutcomeUpdated {
		t.Errorf("Outcome = %q, want %q", res.Outcome, OutcomeUpdated)
	}
	if res.PreviousID != "BV001" {
		t.Errorf("PreviousID = %q, want BV001", res.PreviousID)
	}
	items := notifier.Items()
	if len(items) != 1 || items[0].ID != "BV002" {
		t.Fatalf("notified = %+v, want one BV002", items)
	}
	if id, _ := state.Get("1"); id != "BV002" {
		t.Errorf("state[1] = %q, want BV002", id)
	}
	if state.flushes != 1 {
		t.Errorf("flushes = %d, want 1", state.flushes)
	}
}

func TestCycle_Idempotent(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.publish("1", "BV002")
	state := newMapStore(map[string]string{"1": "BV001"})
	notifier := &recordingNotifier{}
	cycle := NewCycle(fetcher, state, notifier, 1, 0, testLogger())

	if _, err := cycle.Run(context.Background(), []string{"1"}); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	report, err := cycle.Run(context.Background(), []string{"1"})
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	if got := report.Count(OutcomeUnchanged); got != 1 {
		t.Errorf("unchanged = %d, want 1", got)
	}
	if len(notifier.Items()) != 1 {
		t.Errorf("notified %d items across two passes, want 1", len(notifier.Items()))
	}
	// second pass changed nothing, so no second flush
	if state.flushes != 1 {
		t.Errorf("flushes = %d, want 1", state.flushes)
	}
}

func TestCycle_FailureLeavesStateUntouched(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.fail("1", errors.New("upstream down"))
	fetcher.publish("2", "BV-new")
	state := newMapStore(map[string]string{"1": "BV-old", "2": "BV-old2"})
	notifier := &recordingNotifier{}

	cycle := NewCycle(fetcher, state, notifier, 1, 0, testLogger())
	report, err := cycle.Run(context.Background(), []string{"1", "2"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	res := resultFor(t, report, "1")
	if res.Outcome != OutcomeFailed {
		t.Errorf("Outcome = %q, want %q", res.Outcome, OutcomeFailed)
	}
	if !errors.Is(res.Err, ErrFetchFailed) {
		t.Errorf("Err = %v, want fetch failure", res.Err)
	}
	if id, _ := state.Get("1"); id != "BV-old" {
		t.Errorf("state[1] = %q, want BV-old", id)
	}
	// the failing creator does not stop the others
	if resultFor(t, report, "2").Outcome != OutcomeUpdated {
		t.Errorf("creator 2 outcome = %q, want updated", resultFor(t, report, "2").Outcome)
	}
}

func TestCycle_AllFailedSkipsFlush(t *testing.T) {
	fetcher := newFakeFetcher()
	state := newMapStore(nil)

	cycle := NewCycle(fetcher, state, nil, 1, 0, testLogger())
	report, err := cycle.Run(context.Background(), []string{"1", "2"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := report.Count(OutcomeFailed); got != 2 {
		t.Errorf("failed = %d, want 2", got)
	}
	if state.flushes != 0 {
		t.Errorf("flushes = %d, want 0", state.flushes)
	}
}

func TestCycle_NotifierErrorStillAdvancesState(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.publish("1", "BV2")
	state := newMapStore(map[string]string{"1": "BV1"})
	notifier := &recordingNotifier{err: errors.New("webhook 500")}

	cycle := NewCycle(fetcher, state, notifier, 1, 0, testLogger())
	report, err := cycle.Run(context.Background(), []string{"1"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	res := resultFor(t, report, "1")
	if res.Outcome != OutcomeUpdated {
		t.Errorf("Outcome = %q, want %q", res.Outcome, OutcomeUpdated)
	}
	if res.Err == nil {
		t.Error("Err = nil, want notifier error")
	}
	if id, _ := state.Get("1"); id != "BV2" {
		t.Errorf("state[1] = %q, want BV2", id)
	}
}

func TestCycle_NotifierPanicRecovered(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.publish("1", "BV2")
	state := newMapStore(map[string]string{"1": "BV1"})

	cycle := NewCycle(fetcher, state, &recordingNotifier{panic: true}, 1, 0, testLogger())
	report, err := cycle.Run(context.Background(), []string{"1"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res := resultFor(t, report, "1"); res.Err == nil {
		t.Error("Err = nil, want recovered panic error")
	}
	if id, _ := state.Get("1"); id != "BV2" {
		t.Errorf("state[1] = %q, want BV2", id)
	}
}

func TestCycle_FlushErrorReturned(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.publish("1", "BV1")
	state := newMapStore(nil)
	state.flushErr = errors.New("disk full")

	cycle := NewCycle(fetcher, state, nil, 1, 0, testLogger())
	report, err := cycle.Run(context.Background(), []string{"1"})
	if err == nil {
		t.Fatal("expected flush error, got nil")
	}
	if !errors.Is(err, state.flushErr) {
		t.Errorf("error = %v, want wrapping %v", err, state.flushErr)
	}
	if len(report.Results) != 1 {
		t.Errorf("results = %d, want 1", len(report.Results))
	}
}

func TestCycle_SequentialOrderAndDedupe(t *testing.T) {
	fetcher := newFakeFetcher()
	for _, id := range []string{"3", "1", "2"} {
		fetcher.publish(id, "BV"+id)
	}
	state := newMapStore(nil)

	cycle := NewCycle(fetcher, state, nil, 1, 0, testLogger())
	report, err := cycle.Run(context.Background(), []string{"3", "1", "", "3", "2"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"3", "1", "2"}
	calls := fetcher.Calls()
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call[%d] = %q, want %q", i, calls[i], want[i])
		}
		if report.Results[i].CreatorID != want[i] {
			t.Errorf("result[%d] = %q, want %q", i, report.Results[i].CreatorID, want[i])
		}
	}
}

func TestCycle_BoundedConcurrency(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.delay = 20 * time.Millisecond
	ids := []string{"1", "2", "3", "4", "5", "6", "7", "8"}
	for _, id := range ids {
		fetcher.publish(id, "BV"+id)
	}
	state := newMapStore(nil)

	cycle := NewCycle(fetcher, state, nil, 3, 0, testLogger())
	report, err := cycle.Run(context.Background(), ids)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := fetcher.maxInFlight.Load(); got > 3 {
		t.Errorf("max in flight = %d, want <= 3", got)
	}
	if got := report.Count(OutcomeFirstSeen); got != len(ids) {
		t.Errorf("first_seen = %d, want %d", got, len(ids))
	}
	if state.flushes != 1 {
		t.Errorf("flushes = %d, want 1", state.flushes)
	}
}

func TestCycle_CancelledContext(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.publish("1", "BV1")
	state := newMapStore(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cycle := NewCycle(fetcher, state, nil, 1, 0, testLogger())
	report, err := cycle.Run(ctx, []string{"1"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := report.Count(OutcomeFailed); got != 1 {
		t.Errorf("failed = %d, want 1", got)
	}
	if len(fetcher.Calls()) != 0 {
		t.Errorf("fetched %v after cancellation", fetcher.Calls())
	}
}

func TestNewCycle_Defaults(t *testing.T) {
	cycle := NewCycle(newFakeFetcher(), newMapStore(nil), nil, 0, 0, nil)
	if cycle.maxConcurrency != 1 {
		t.Errorf("maxConcurrency = %d, want 1", cycle.maxConcurrency)
	}
	if cycle.logger == nil {
		t.Error("logger is nil")
	}
}
