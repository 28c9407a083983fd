package poller

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Outcome is the terminal state of one creator within a pass.
type Outcome string

const (
	// OutcomeUnchanged means the fetched item id equals the recorded one.
	OutcomeUnchanged Outcome = "unchanged"

	// OutcomeFirstSeen means the creator had no recorded id; the id was
	// recorded without notifying.
	OutcomeFirstSeen Outcome = "first_seen"

	// OutcomeUpdated means a new item id was observed, notified and recorded.
	OutcomeUpdated Outcome = "updated"

	// OutcomeFailed means the fetch failed; the recorded id is untouched.
	OutcomeFailed Outcome = "failed"
)

// Fetcher returns a creator's newest item. [*ContentFetcher] implements it.
type Fetcher interface {
	FetchLatest(ctx context.Context, creatorID string) (Item, error)
}

// StateStore is the last-seen mapping consulted and updated by a pass.
// Implementations must be safe for concurrent use.
type StateStore interface {
	Get(creatorID string) (string, bool)
	Set(creatorID, itemID string)
	Flush(ctx context.Context) error
}

// Notifier is told about every newly observed item.
type Notifier interface {
	Notify(ctx context.Context, item Item) error
}

// Result is the outcome of one creator within a pass.
type Result struct {
	CreatorID  string
	Outcome    Outcome
	Item       Item
	PreviousID string
	Err        error
}

// Report summarises one pass.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []Result
}

// Count returns how many creators ended with outcome o.
func (r Report) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// Changed reports whether the pass recorded any new id.
func (r Report) Changed() bool {
	return r.Count(OutcomeFirstSeen)+r.Count(OutcomeUpdated) > 0
}

// Cycle runs passes over a list of creators.
//
// Creators are fetched by a bounded worker pool; with maxConcurrency 1 they
// are processed strictly in order. Comparing, notifying and recording happen
// under a single mutex, so the store sees one writer at a time. The store is
// flushed at most once per pass.
type Cycle struct {
	fetcher        Fetcher
	state          StateStore
	notifier       Notifier
	maxConcurrency int
	requestDelay   time.Duration
	logger         *slog.Logger

	mu sync.Mutex // serialises compare, notify and record
}

// NewCycle creates a [Cycle].
//
// Parameters:
//   - fetcher: Source of each creator's newest item
//   - state: Last-seen mapping, already loaded
//   - notifier: Receives items for OutcomeUpdated
//   - maxConcurrency: Maximum creators fetched at once (values < 1 mean 1)
//   - requestDelay: Pause before every fetch except the first
//   - logger: Logger for pass events
func NewCycle(fetcher Fetcher, state StateStore, notifier Notifier, maxConcurrency int, requestDelay time.Duration, logger *slog.Logger) *Cycle {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cycle{
		fetcher:        fetcher,
		state:          state,
		notifier:       notifier,
		maxConcurrency: maxConcurrency,
		requestDelay:   requestDelay,
		logger:         logger,
	}
}

// Run processes every creator once and flushes the store if any id was
// recorded. Per-creator failures are reported in the [Report], never
// returned. The only error returned is a flush failure.
//
// Duplicate creator ids are processed once. If ctx is cancelled, creators
// not yet fetched end as OutcomeFailed and whatever was recorded so far is
// still flushed.
func (c *Cycle) Run(ctx context.Context, creatorIDs []string) (Report, error) {
	creatorIDs = dedupe(creatorIDs)
	report := Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Results:   make([]Result, len(creatorIDs)),
	}
	logger := c.logger.With("run_id", report.RunID)
	logger.Info("poll pass started", "creators", len(creatorIDs), "max_concurrency", c.maxConcurrency)

	g := new(errgroup.Group)
	g.SetLimit(c.maxConcurrency)
	for i, id := range creatorIDs {
		g.Go(func() error {
			if i > 0 {
				if err := sleepCtx(ctx, c.requestDelay); err != nil {
					report.Results[i] = Result{CreatorID: id, Outcome: OutcomeFailed, Err: err}
					return nil
				}
			}
			report.Results[i] = c.process(ctx, logger, id)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	report.FinishedAt = time.Now()
	logger.Info("poll pass finished",
		"unchanged", report.Count(OutcomeUnchanged),
		"first_seen", report.Count(OutcomeFirstSeen),
		"updated", report.Count(OutcomeUpdated),
		"failed", report.Count(OutcomeFailed),
		"duration_ms", report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	)

	if !report.Changed() {
		return report, nil
	}

	// a cancelled pass still persists the entries it recorded
	if err := c.state.Flush(context.WithoutCancel(ctx)); err != nil {
		logger.Error("state flush failed", "error", err.Error())
		return report, fmt.Errorf("flush state: %w", err)
	}
	logger.Debug("state flushed")
	return report, nil
}

// process drives one creator from Fetching to a terminal outcome.
func (c *Cycle) process(ctx context.Context, logger *slog.Logger, creatorID string) Result {
	logger = logger.With("creator_id", creatorID)

	if err := ctx.Err(); err != nil {
		return Result{CreatorID: creatorID, Outcome: OutcomeFailed, Err: err}
	}

	item, err := c.fetcher.FetchLatest(ctx, creatorID)
	if err != nil {
		logger.Warn("creator check failed", "error", err.Error())
		return Result{CreatorID: creatorID, Outcome: OutcomeFailed, Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev, seen := c.state.Get(creatorID)
	res := Result{CreatorID: creatorID, Item: item, PreviousID: prev}

	switch {
	case !seen:
		c.state.Set(creatorID, item.ID)
		res.Outcome = OutcomeFirstSeen
		logger.Info("creator first seen", "item_id", item.ID)

	case prev == item.ID:
		res.Outcome = OutcomeUnchanged
		logger.Debug("creator unchanged", "item_id", item.ID)

	default:
		if err := c.notifySafe(ctx, item); err != nil {
			// state still advances: a failed sink must not cause a
			// duplicate on the next pass
			logger.Error("notification failed", "item_id", item.ID, "error", err.Error())
			res.Err = err
		}
		c.state.Set(creatorID, item.ID)
		res.Outcome = OutcomeUpdated
		logger.Info("new item detected",
			"item_id", item.ID,
			"previous_id", prev,
			"author", item.Author,
			"title", item.Title,
		)
	}
	return res
}

// notifySafe calls the notifier with panic recovery.
func (c *Cycle) notifySafe(ctx context.Context, item Item) (err error) {
	if c.notifier == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			c.logger.Error("notifier panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("notifier panic (correlation_id: %s)", correlationID)
		}
	}()
	return c.notifier.Notify(ctx, item)
}

// dedupe drops empty and repeated ids, keeping first-seen order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
