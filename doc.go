// Package creatorwatch detects new uploads from a set of video creators and
// notifies exactly once per new item.
//
// Each check signs its request with the platform's rotating WBI keys,
// fetches the creator's newest item, and compares it with the last item id
// recorded for that creator. The first observation of a creator is recorded
// silently; a different id is notified and recorded; an equal id is a
// no-op. The mapping is persisted at most once per pass, atomically.
//
// # Quick Start
//
//	w, err := creatorwatch.New(
//	    creatorwatch.WithCreators("123", "456"),
//	    creatorwatch.WithNotifyFunc(func(it creatorwatch.Item) {
//	        fmt.Printf("%s published %q: %s\n", it.Author, it.Title, it.URL())
//	    }),
//	)
//	if err != nil {
//	    return err
//	}
//	defer w.Close()
//
//	report, err := w.RunOnce(ctx)
//
// RunOnce is the single entry point. Run it from cron, a systemd timer or
// any other scheduler; every call reloads the persisted state first.
//
// # Configuration
//
// Watcher uses the functional options pattern for configuration:
//
//	w, err := creatorwatch.New(
//	    creatorwatch.WithCreators(ids...),
//	    creatorwatch.WithStore(myStore),
//	    creatorwatch.WithHTTPTimeout(10 * time.Second),
//	    creatorwatch.WithMaxAttempts(3),
//	    creatorwatch.WithBackoff(creatorwatch.LinearBackoff(2 * time.Second)),
//	    creatorwatch.WithMaxConcurrency(4),
//	)
//
// The config package builds the same options from a YAML file and the
// BILI_* environment variables.
//
// # Errors
//
// Per-creator failures never abort a pass; they are reported in
// [Result.Err] and match [ErrFetchFailed]. The only error RunOnce returns is
// a failure to persist state, matching [ErrPersist]: without durable state
// the next pass could notify twice.
//
// # Architecture
//
// Watcher consists of several internal packages (under internal/):
//
//   - wbi: Key retrieval and request signing
//   - poller: HTTP client, signed lookup with retries, and the pass itself
//   - store: File, SQLite, Redis and in-memory state backends
//   - notify: Log, stdout, webhook and Kafka sinks
package creatorwatch
