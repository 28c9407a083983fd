package creatorwatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/jpalmerr/creatorwatch/internal/poller"
	"github.com/jpalmerr/creatorwatch/internal/store"
	"github.com/jpalmerr/creatorwatch/internal/wbi"
)

// DefaultStatePath is the state file used when no store is configured.
const DefaultStatePath = store.DefaultPath

// StateStore is the durable creator id → last-seen item id mapping.
//
// StateStore implementations must be safe for concurrent access. Load must
// never fail: an absent or unreadable medium is an empty mapping. Flush
// writes the whole mapping atomically; on failure the persisted copy is
// unchanged.
type StateStore interface {
	Load(ctx context.Context) map[string]string
	Get(creatorID string) (string, bool)
	Set(creatorID, itemID string)
	Flush(ctx context.Context) error
	Close() error
}

// Notifier is told about every newly observed item.
type Notifier interface {
	Notify(ctx context.Context, item Item) error
}

// NotifierFunc adapts a function to [Notifier].
type NotifierFunc func(ctx context.Context, item Item) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, item Item) error {
	return f(ctx, item)
}

// Watcher checks a fixed set of creators for new items.
//
// Watcher is created using [New] with functional options and driven by
// [Watcher.RunOnce]. It has no timer of its own; scheduling is up to the
// caller.
//
// The typical lifecycle is:
//
//	w, err := creatorwatch.New(creatorwatch.WithCreators("123"))
//	if err != nil {
//	    slog.Error("failed to create watcher", "error", err)
//	    os.Exit(1)
//	}
//	defer w.Close()
//
//	report, err := w.RunOnce(ctx)
type Watcher struct {
	creators []string
	state    StateStore
	client   *poller.Client
	cycle    *poller.Cycle
	logger   *slog.Logger
	closers  []io.Closer

	runMu     sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// New creates a new [Watcher] instance with the given options.
//
// Options have sensible defaults:
//   - State: JSON file bili_latest_video.json
//   - HTTP timeout: 8 seconds
//   - Attempts: 3, with 2s then 4s between them
//   - Max concurrency: 1
//
// Returns an error if any option is invalid.
//
// Example:
//
//	w, err := creatorwatch.New(
//	    creatorwatch.WithCreators(creatorwatch.ParseCreatorIDs(os.Getenv("BILI_UP_IDS"))...),
//	    creatorwatch.WithNotifyFunc(func(it creatorwatch.Item) { fmt.Println(it.Title) }),
//	)
func New(opts ...Option) (*Watcher, error) {
	cfg := &wConfig{
		maxConcurrency: 1,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	// default to slog.Default() if no logger provided
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	state := cfg.state
	if state == nil {
		state = store.NewFileStore(DefaultStatePath, logger)
	}

	client := poller.NewClient(cfg.proxy)
	keys := wbi.NewKeyFetcher(client, cfg.navURL, cfg.userAgent, cfg.httpTimeout)
	fetcher := poller.NewContentFetcher(client, keys, poller.FetcherConfig{
		SearchURL:   cfg.searchURL,
		UserAgent:   cfg.userAgent,
		UserAgents:  cfg.userAgents,
		Timeout:     cfg.httpTimeout,
		MaxAttempts: cfg.maxAttempts,
		Backoff:     cfg.backoff,
		Now:         cfg.clock,
		Logger:      logger,
	})

	dispatch := &dispatcher{
		notifiers: cfg.notifiers,
		callbacks: cfg.callbacks,
		logger:    logger,
	}
	if len(dispatch.notifiers) == 0 && len(dispatch.callbacks) == 0 {
		dispatch.notifiers = []Notifier{logNotifier{logger: logger}}
	}

	closers := []io.Closer{state}
	for _, n := range cfg.notifiers {
		if c, ok := n.(io.Closer); ok {
			closers = append(closers, c)
		}
	}

	return &Watcher{
		creators: cfg.creators,
		state:    state,
		client:   client,
		cycle:    poller.NewCycle(fetcher, state, dispatch, cfg.maxConcurrency, cfg.requestDelay, logger),
		logger:   logger,
		closers:  closers,
	}, nil
}

// RunOnce performs one pass over every creator.
//
// The state is reloaded first, so each call observes what the previous
// call (in this or another process) persisted. Per-creator failures are
// reported in the [Report] and never returned. The returned error is
// non-nil only when the state could not be written; it wraps [ErrPersist].
//
// With no creators configured RunOnce logs a warning, makes no request and
// returns an empty report. Concurrent calls are serialised.
func (w *Watcher) RunOnce(ctx context.Context) (Report, error) {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	if len(w.creators) == 0 {
		w.logger.Warn("no creators configured, nothing to do")
		return Report{}, nil
	}

	loaded := w.state.Load(ctx)
	w.logger.Debug("state loaded", "creators_recorded", len(loaded))

	pr, err := w.cycle.Run(ctx, w.creators)
	report := reportFromPoller(pr)
	if err != nil {
		if !errors.Is(err, ErrPersist) {
			err = fmt.Errorf("%w: %w", ErrPersist, err)
		}
		return report, err
	}
	return report, nil
}

// Creators returns a copy of the configured creator ids.
func (w *Watcher) Creators() []string {
	return append([]string(nil), w.creators...)
}

// Close releases the HTTP client, the store and any closable notifiers.
// It is safe to call more than once.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		w.client.Close()
		var errs []error
		for _, c := range w.closers {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		w.closeErr = errors.Join(errs...)
	})
	return w.closeErr
}

// dispatcher fans a new item out to notifiers and callbacks.
type dispatcher struct {
	notifiers []Notifier
	callbacks []func(Item)
	logger    *slog.Logger
}

func (d *dispatcher) Notify(ctx context.Context, pi poller.Item) error {
	item := itemFromPoller(pi)

	var errs []error
	for _, n := range d.notifiers {
		if err := n.Notify(ctx, item); err != nil {
			errs = append(errs, err)
		}
	}
	for _, cb := range d.callbacks {
		invokeCallbackSafe(cb, item, d.logger)
	}
	return errors.Join(errs...)
}

// logNotifier reports new items through the logger.
type logNotifier struct {
	logger *slog.Logger
}

func (l logNotifier) Notify(ctx context.Context, item Item) error {
	l.logger.InfoContext(ctx, "new item published",
		"creator_id", item.CreatorID,
		"author", item.Author,
		"title", item.Title,
		"url", item.URL(),
	)
	return nil
}

// invokeCallbackSafe calls a notify callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(Item), item Item, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("notify callback panicked",
				"panic", r,
				"creator_id", item.CreatorID,
				"item_id", item.ID,
			)
		}
	}()
	cb(item)
}
