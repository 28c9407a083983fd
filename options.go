package creatorwatch

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jpalmerr/creatorwatch/internal/poller"
)

const (
	navPath    = "/x/web-interface/nav"
	searchPath = "/x/space/wbi/arc/search"

	minHTTPTimeout = time.Second
	maxHTTPTimeout = 60 * time.Second
)

// wConfig holds mutable state during Watcher construction.
type wConfig struct {
	creators       []string
	state          StateStore
	notifiers      []Notifier
	callbacks      []func(Item)
	logger         *slog.Logger
	httpTimeout    time.Duration
	userAgent      string
	userAgents     []string
	proxy          *url.URL
	maxAttempts    int
	backoff        func(attempt int) time.Duration
	maxConcurrency int
	requestDelay   time.Duration
	navURL         string
	searchURL      string
	clock          func() time.Time
}

// Option is a function that configures a [Watcher] instance during
// construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
type Option func(*wConfig) error

// WithCreators adds creator ids to watch.
//
// Ids are trimmed; empty and repeated ids are dropped. Can be called
// multiple times. A Watcher with no creators is valid: [Watcher.RunOnce]
// logs a warning and does nothing.
//
// Example:
//
//	w, err := creatorwatch.New(
//	    creatorwatch.WithCreators("123", "456"),
//	)
func WithCreators(ids ...string) Option {
	return func(cfg *wConfig) error {
		cfg.creators = normalizeCreatorIDs(append(cfg.creators, ids...))
		return nil
	}
}

// WithStore sets the durable last-seen mapping.
//
// Defaults to a JSON file named bili_latest_video.json in the working
// directory. The Watcher closes the store in [Watcher.Close].
//
// Returns an error if the store is nil.
func WithStore(s StateStore) Option {
	return func(cfg *wConfig) error {
		if s == nil {
			return errors.New("store cannot be nil")
		}
		cfg.state = s
		return nil
	}
}

// WithNotifier adds a [Notifier] told about every new item.
//
// Multiple notifiers may be registered; they run in registration order and
// a failing notifier does not stop the next. Notifiers implementing
// io.Closer are closed by [Watcher.Close]. When neither a notifier nor a
// callback is configured, new items are logged at Info level.
//
// Returns an error if the notifier is nil.
func WithNotifier(n Notifier) Option {
	return func(cfg *wConfig) error {
		if n == nil {
			return errors.New("notifier cannot be nil")
		}
		cfg.notifiers = append(cfg.notifiers, n)
		return nil
	}
}

// WithNotifyFunc registers a function called for every new item.
//
// Callbacks run after all notifiers, in registration order. Panics within
// callbacks are recovered and logged.
//
// Example:
//
//	w, err := creatorwatch.New(
//	    creatorwatch.WithCreators("123"),
//	    creatorwatch.WithNotifyFunc(func(it creatorwatch.Item) {
//	        fmt.Printf("%s: %s %s\n", it.Author, it.Title, it.URL())
//	    }),
//	)
//
// Nil callbacks are silently ignored.
func WithNotifyFunc(cb func(Item)) Option {
	return func(cfg *wConfig) error {
		if cb == nil {
			return nil
		}
		cfg.callbacks = append(cfg.callbacks, cb)
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the Watcher instance.
//
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *wConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithHTTPTimeout sets the timeout of every platform request. Defaults to
// 8 seconds.
//
// Returns an error if the timeout is outside 1s to 60s.
func WithHTTPTimeout(d time.Duration) Option {
	return func(cfg *wConfig) error {
		if d < minHTTPTimeout || d > maxHTTPTimeout {
			return fmt.Errorf("http timeout must be between %s and %s, got %s", minHTTPTimeout, maxHTTPTimeout, d)
		}
		cfg.httpTimeout = d
		return nil
	}
}

// WithUserAgent overrides the browser User-Agent sent to the platform.
//
// Returns an error if the value is blank.
func WithUserAgent(ua string) Option {
	return func(cfg *wConfig) error {
		if strings.TrimSpace(ua) == "" {
			return errors.New("user agent cannot be empty")
		}
		cfg.userAgent = ua
		return nil
	}
}

// WithUserAgents sets a pool of browser User-Agents. Every content request
// picks one at random; key requests use the first. Overrides
// [WithUserAgent] for content requests.
//
// Returns an error if the pool is empty or any entry is blank.
func WithUserAgents(uas ...string) Option {
	return func(cfg *wConfig) error {
		if len(uas) == 0 {
			return errors.New("user agent pool cannot be empty")
		}
		for i, ua := range uas {
			if strings.TrimSpace(ua) == "" {
				return fmt.Errorf("user agent %d cannot be empty", i)
			}
		}
		cfg.userAgents = append([]string(nil), uas...)
		if cfg.userAgent == "" {
			cfg.userAgent = uas[0]
		}
		return nil
	}
}

// WithProxy routes platform requests through an HTTP proxy. Without it the
// standard proxy environment variables apply.
//
// Returns an error if the URL cannot be parsed or has no host.
func WithProxy(rawURL string) Option {
	return func(cfg *wConfig) error {
		u, err := url.Parse(rawURL)
		if err != nil {
			return fmt.Errorf("invalid proxy url: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid proxy url %q: scheme and host are required", rawURL)
		}
		cfg.proxy = u
		return nil
	}
}

// WithMaxAttempts bounds the attempts per creator per pass. Defaults to 3.
//
// Returns an error if n is zero or negative.
func WithMaxAttempts(n int) Option {
	return func(cfg *wConfig) error {
		if n <= 0 {
			return errors.New("max attempts must be positive")
		}
		cfg.maxAttempts = n
		return nil
	}
}

// WithBackoff sets the pause before retrying, given the attempt that just
// failed (1-based). The schedule must be non-decreasing. Defaults to
// [LinearBackoff] with a 2 second base.
//
// Returns an error if fn is nil.
func WithBackoff(fn func(attempt int) time.Duration) Option {
	return func(cfg *wConfig) error {
		if fn == nil {
			return errors.New("backoff cannot be nil")
		}
		cfg.backoff = fn
		return nil
	}
}

// LinearBackoff waits base multiplied by the failed attempt number.
func LinearBackoff(base time.Duration) func(attempt int) time.Duration {
	return poller.LinearBackoff(base)
}

// WithMaxConcurrency sets how many creators are fetched at once.
//
// Defaults to 1, which checks creators strictly in order. State updates
// are serialised regardless.
//
// Returns an error if the value is zero or negative.
func WithMaxConcurrency(n int) Option {
	return func(cfg *wConfig) error {
		if n <= 0 {
			return errors.New("max concurrency must be positive")
		}
		cfg.maxConcurrency = n
		return nil
	}
}

// WithRequestDelay adds a pause before each creator after the first, to
// stay under the platform's rate limits. Defaults to none.
//
// Returns an error if the delay is negative.
func WithRequestDelay(d time.Duration) Option {
	return func(cfg *wConfig) error {
		if d < 0 {
			return errors.New("request delay cannot be negative")
		}
		cfg.requestDelay = d
		return nil
	}
}

// WithAPIBase points both platform endpoints at base, keeping their
// standard paths. Useful for mirrors and tests.
//
// Returns an error if base is not an absolute URL.
func WithAPIBase(base string) Option {
	return func(cfg *wConfig) error {
		u, err := url.Parse(base)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid api base %q", base)
		}
		base = strings.TrimSuffix(base, "/")
		cfg.navURL = base + navPath
		cfg.searchURL = base + searchPath
		return nil
	}
}

// WithAPIEndpoints sets the key and search endpoints individually. Empty
// values keep the defaults.
func WithAPIEndpoints(navURL, searchURL string) Option {
	return func(cfg *wConfig) error {
		for _, raw := range []string{navURL, searchURL} {
			if raw == "" {
				continue
			}
			if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
				return fmt.Errorf("invalid api endpoint %q", raw)
			}
		}
		if navURL != "" {
			cfg.navURL = navURL
		}
		if searchURL != "" {
			cfg.searchURL = searchURL
		}
		return nil
	}
}

// WithClock sets the time source for request timestamps.
//
// Returns an error if now is nil.
func WithClock(now func() time.Time) Option {
	return func(cfg *wConfig) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		cfg.clock = now
		return nil
	}
}
