package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/jpalmerr/creatorwatch/internal/wbi"
)

const (
	// DefaultSearchURL is the signed endpoint listing a creator's items.
	DefaultSearchURL = "https://api.bilibili.com/x/space/wbi/arc/search"

	// DefaultMaxAttempts bounds the attempts per creator per pass.
	DefaultMaxAttempts = 3

	// DefaultBackoffBase is multiplied by the attempt number between attempts.
	DefaultBackoffBase = 2 * time.Second

	defaultFetchTimeout = 8 * time.Second

	// webLocation is the location tag the web client sends with space searches.
	webLocation = "1550101"

	codeOK             = 0
	codeRequestBlocked = -412
)

// KeySource supplies fresh rotating keys. [*wbi.KeyFetcher] implements it.
type KeySource interface {
	Fetch(ctx context.Context) (wbi.Keys, error)
}

// Item is the newest published item of a creator.
type Item struct {
	ID          string
	Title       string
	Author      string
	CreatorID   string
	PublishedAt time.Time
}

// URL returns the item's canonical page URL.
func (i Item) URL() string {
	return ItemURL(i.ID)
}

// BackoffFunc returns the pause before attempt+1, given the attempt that
// just failed (1-based). Implementations must be non-decreasing.
type BackoffFunc func(attempt int) time.Duration

// LinearBackoff waits base multiplied by the failed attempt number:
// base, 2*base, 3*base, ...
func LinearBackoff(base time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		return base * time.Duration(attempt)
	}
}

// FetcherConfig tunes a [ContentFetcher]. Zero values select defaults.
type FetcherConfig struct {
	SearchURL string
	UserAgent string

	// UserAgents, when set, is a pool from which every search request
	// picks one at random. It takes precedence over UserAgent.
	UserAgents []string

	Timeout     time.Duration
	MaxAttempts int
	Backoff     BackoffFunc

	// Now supplies the wts timestamp. Defaults to time.Now.
	Now func() time.Time

	// Sleep pauses between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error

	Logger *slog.Logger
}

// ContentFetcher retrieves a creator's newest item through the signed
// search endpoint.
type ContentFetcher struct {
	client      *Client
	keys        KeySource
	searchURL   string
	userAgents  []string
	timeout     time.Duration
	maxAttempts int
	backoff     BackoffFunc
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger
}

// NewContentFetcher creates a [ContentFetcher] sending requests through
// client and signing them with keys obtained from keys.
func NewContentFetcher(client *Client, keys KeySource, cfg FetcherConfig) *ContentFetcher {
	f := &ContentFetcher{
		client:      client,
		keys:        keys,
		searchURL:   cfg.SearchURL,
		userAgents:  nonBlank(cfg.UserAgents),
		timeout:     cfg.Timeout,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		now:         cfg.Now,
		sleep:       cfg.Sleep,
		logger:      cfg.Logger,
	}
	if f.searchURL == "" {
		f.searchURL = DefaultSearchURL
	}
	if len(f.userAgents) == 0 {
		ua := cfg.UserAgent
		if ua == "" {
			ua = wbi.DefaultUserAgent
		}
		f.userAgents = []string{ua}
	}
	if f.timeout <= 0 {
		f.timeout = defaultFetchTimeout
	}
	if f.maxAttempts <= 0 {
		f.maxAttempts = DefaultMaxAttempts
	}
	if f.backoff == nil {
		f.backoff = LinearBackoff(DefaultBackoffBase)
	}
	if f.now == nil {
		f.now = time.Now
	}
	if f.sleep == nil {
		f.sleep = sleepCtx
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f
}

// FetchLatest returns the newest item of creatorID.
//
// Each attempt fetches fresh keys, signs and issues the request. Transient
// failures are retried up to the configured bound with the configured
// backoff; a signing failure ends the loop at once. The returned error is
// always a [*FetchFailedError].
func (f *ContentFetcher) FetchLatest(ctx context.Context, creatorID string) (Item, error) {
	for attempt := 1; ; attempt++ {
		item, err := f.fetchOnce(ctx, creatorID)
		if err == nil {
			return item, nil
		}

		logAttrs := []any{
			"creator_id", creatorID,
			"attempt", attempt,
			"max_attempts", f.maxAttempts,
			"error", err.Error(),
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Blocked() {
			logAttrs = append(logAttrs, "blocked", true)
		}

		if !retryable(ctx, err) || attempt >= f.maxAttempts {
			f.logger.Warn("fetch attempt failed", logAttrs...)
			return Item{}, &FetchFailedError{CreatorID: creatorID, Attempts: attempt, Err: err}
		}

		wait := f.backoff(attempt)
		f.logger.Warn("fetch attempt failed, retrying", append(logAttrs, "backoff", wait.String())...)
		if sleepErr := f.sleep(ctx, wait); sleepErr != nil {
			return Item{}, &FetchFailedError{
				CreatorID: creatorID,
				Attempts:  attempt,
				Err:       fmt.Errorf("%w (retry aborted: %w)", err, sleepErr),
			}
		}
	}
}

// retryable reports whether another attempt may succeed.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, wbi.ErrSigning)
}

// searchResponse is the subset of the search payload we consume.
type searchResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		List struct {
			Vlist []struct {
				BVID    string `json:"bvid"`
				Title   string `json:"title"`
				Author  string `json:"author"`
				Created int64  `json:"created"`
			} `json:"vlist"`
		} `json:"list"`
	} `json:"data"`
}

// fetchOnce performs a single signed lookup.
func (f *ContentFetcher) fetchOnce(ctx context.Context, creatorID string) (Item, error) {
	keys, err := f.keys.Fetch(ctx)
	if err != nil {
		return Item{}, err
	}

	signer, err := wbi.NewSigner(keys)
	if err != nil {
		return Item{}, err
	}

	params := signer.Sign(wbi.Params{
		"mid":          creatorID,
		"ps":           "1",
		"pn":           "1",
		"order":        "pubdate",
		"platform":     "web",
		"web_location": webLocation,
		"wts":          strconv.FormatInt(f.now().Unix(), 10),
	})

	headers := map[string]string{
		"User-Agent": f.pickUserAgent(),
		"Referer":    "https://space.bilibili.com/" + creatorID + "/",
		"Accept":     "application/json, text/plain, */*",
	}

	resp := f.client.Get(ctx, f.searchURL, params.Values(), headers, f.timeout)
	if resp.Error != nil {
		return Item{}, resp.Error
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Item{}, fmt.Errorf("unexpected status %d (%s)", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var sr searchResponse
	if err := json.Unmarshal(resp.Body, &sr); err != nil {
		return Item{}, fmt.Errorf("decode search response: %w", err)
	}
	if sr.Code != codeOK {
		return Item{}, &APIError{Code: sr.Code, Message: sr.Message}
	}
	if len(sr.Data.List.Vlist) == 0 || sr.Data.List.Vlist[0].BVID == "" {
		return Item{}, ErrNoData
	}

	v := sr.Data.List.Vlist[0]
	item := Item{
		ID:        v.BVID,
		Title:     StripTags(v.Title),
		Author:    StripTags(v.Author),
		CreatorID: creatorID,
	}
	if v.Created > 0 {
		item.PublishedAt = time.Unix(v.Created, 0).UTC()
	}
	return item, nil
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *ContentFetcher) pickUserAgent() string {
	if len(f.userAgents) == 1 {
		return f.userAgents[0]
	}
	return f.userAgents[rand.IntN(len(f.userAgents))]
}

func nonBlank(values []string) []string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
