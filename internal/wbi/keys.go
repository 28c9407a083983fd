package wbi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

const (
	// DefaultNavURL is the metadata endpoint publishing the rotating keys.
	DefaultNavURL = "https://api.bilibili.com/x/web-interface/nav"

	// DefaultUserAgent is a desktop browser User-Agent. The platform rejects
	// requests carrying the Go default.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	defaultKeyTimeout = 8 * time.Second
	maxNavBodySize    = 1 << 20 // 1MB
)

// ErrKeyFetch is returned when the rotating keys cannot be retrieved.
// Callers may retry.
var ErrKeyFetch = errors.New("wbi: key fetch failed")

// Doer issues HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// KeyFetcher retrieves [Keys] from the nav endpoint.
//
// KeyFetcher performs exactly one request per [KeyFetcher.Fetch] call and
// never retries; retry policy belongs to the caller.
type KeyFetcher struct {
	client    Doer
	url       string
	userAgent string
	timeout   time.Duration
}

// NewKeyFetcher creates a [KeyFetcher]. Empty navURL or userAgent and a
// non-positive timeout fall back to the package defaults.
func NewKeyFetcher(client Doer, navURL, userAgent string, timeout time.Duration) *KeyFetcher {
	if navURL == "" {
		navURL = DefaultNavURL
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if timeout <= 0 {
		timeout = defaultKeyTimeout
	}
	return &KeyFetcher{
		client:    client,
		url:       navURL,
		userAgent: userAgent,
		timeout:   timeout,
	}
}

// navResponse is the subset of the nav payload carrying the keys. The live
// endpoint publishes image URLs whose basenames are the keys; explicit key
// fields are honoured when present.
type navResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		WbiImg struct {
			ImgKey string `json:"img_key"`
			SubKey string `json:"sub_key"`
			ImgURL string `json:"img_url"`
			SubURL string `json:"sub_url"`
		} `json:"wbi_img"`
	} `json:"data"`
}

// Fetch retrieves the current key pair.
//
// The top-level code of the response is not checked: anonymous callers get
// code -101 together with valid keys. Every error wraps [ErrKeyFetch].
func (f *KeyFetcher) Fetch(ctx context.Context) (Keys, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return Keys{}, fmt.Errorf("%w: create request: %w", ErrKeyFetch, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return Keys{}, fmt.Errorf("%w: request failed: %w", ErrKeyFetch, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Keys{}, fmt.Errorf("%w: unexpected status %d", ErrKeyFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxNavBodySize))
	if err != nil {
		return Keys{}, fmt.Errorf("%w: read body: %w", ErrKeyFetch, err)
	}

	var nav navResponse
	if err := json.Unmarshal(body, &nav); err != nil {
		return Keys{}, fmt.Errorf("%w: decode body: %w", ErrKeyFetch, err)
	}

	img := nav.Data.WbiImg
	keys := Keys{
		ImgKey: firstNonEmpty(img.ImgKey, keyFromURL(img.ImgURL)),
		SubKey: firstNonEmpty(img.SubKey, keyFromURL(img.SubURL)),
	}
	if keys.ImgKey == "" || keys.SubKey == "" {
		return Keys{}, fmt.Errorf("%w: response has no wbi_img keys (code %d: %s)", ErrKeyFetch, nav.Code, nav.Message)
	}
	return keys, nil
}

// keyFromURL returns the file name of rawURL without its extension.
func keyFromURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	base := path.Base(p)
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, path.Ext(base))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
