// Package fakeapi is an in-process stand-in for the platform's nav and
// space search endpoints.
//
// It verifies WBI signatures exactly like the real service, so clients that
// encode or sign incorrectly fail against it. Failures and key rotation can
// be injected to exercise retry paths. It backs the test suites and the
// example mock server.
package fakeapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/jpalmerr/creatorwatch/internal/wbi"
)

const (
	// NavPath serves the rotating keys.
	NavPath = "/x/web-interface/nav"

	// SearchPath serves a creator's items, newest first.
	SearchPath = "/x/space/wbi/arc/search"

	// CodeBadSignature is returned when w_rid does not verify.
	CodeBadSignature = -403

	// CodeRequestBlocked is the platform's risk-control rejection.
	CodeRequestBlocked = -412
)

const goDefaultUserAgent = "Go-http-client/1.1"

// Video is one published item.
type Video struct {
	BVID    string `json:"bvid"`
	Title   string `json:"title"`
	Author  string `json:"author"`
	Created int64  `json:"created"`
}

// rejection is an injected platform-level error.
type rejection struct {
	code    int
	message string
}

// Platform is an [http.Handler] emulating the platform. The zero value is
// not usable; create one with [New].
type Platform struct {
	mu     sync.Mutex
	keys   wbi.Keys
	videos map[string][]Video
	logger *slog.Logger

	navFailures    int
	searchFailures int
	rejections     []rejection

	navRequests    int
	searchRequests int
	lastQuery      url.Values
	lastHeader     http.Header

	mux *http.ServeMux
}

// New creates a Platform that publishes keys.
func New(keys wbi.Keys) *Platform {
	p := &Platform{
		keys:   keys,
		videos: make(map[string][]Video),
		logger: slog.New(slog.DiscardHandler),
		mux:    http.NewServeMux(),
	}
	p.mux.HandleFunc(NavPath, p.handleNav)
	p.mux.HandleFunc(SearchPath, p.handleSearch)
	return p
}

// WithLogger makes the platform log each request.
func (p *Platform) WithLogger(logger *slog.Logger) *Platform {
	p.mu.Lock()
	p.logger = logger
	p.mu.Unlock()
	return p
}

// ServeHTTP implements [http.Handler].
func (p *Platform) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mux.ServeHTTP(w, r)
}

// SetKeys rotates the published keys. Requests signed with the previous
// keys fail verification from now on.
func (p *Platform) SetKeys(keys wbi.Keys) {
	p.mu.Lock()
	p.keys = keys
	p.mu.Unlock()
}

// Publish makes v the newest item of creator mid.
func (p *Platform) Publish(mid string, v Video) {
	p.mu.Lock()
	p.videos[mid] = append([]Video{v}, p.videos[mid]...)
	p.mu.Unlock()
}

// FailNav makes the next n nav requests answer 500.
func (p *Platform) FailNav(n int) {
	p.mu.Lock()
	p.navFailures = n
	p.mu.Unlock()
}

// FailSearch makes the next n search requests answer 500.
func (p *Platform) FailSearch(n int) {
	p.mu.Lock()
	p.searchFailures = n
	p.mu.Unlock()
}

// Reject makes the next search request answer HTTP 200 with the given
// platform code. Calls queue up.
func (p *Platform) Reject(code int, message string) {
	p.mu.Lock()
	p.rejections = append(p.rejections, rejection{code: code, message: message})
	p.mu.Unlock()
}

// NavRequests returns how many nav requests were served.
func (p *Platform) NavRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.navRequests
}

// SearchRequests returns how many search requests were served.
func (p *Platform) SearchRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.searchRequests
}

// LastSearch returns the query and headers of the most recent search.
func (p *Platform) LastSearch() (url.Values, http.Header) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastQuery, p.lastHeader
}

func (p *Platform) handleNav(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.navRequests++
	fail := p.navFailures > 0
	if fail {
		p.navFailures--
	}
	keys := p.keys
	logger := p.logger
	p.mu.Unlock()

	logger.Info("nav request", "fail", fail)
	if fail {
		http.Error(w, "upstream unavailable", http.StatusInternalServerError)
		return
	}

	// anonymous callers get -101 alongside the keys, like the real service
	writeJSON(w, map[string]any{
		"code":    -101,
		"message": "账号未登录",
		"data": map[string]any{
			"isLogin": false,
			"wbi_img": map[string]string{
				"img_url": "https://i0.hdslb.com/bfs/wbi/" + keys.ImgKey + ".png",
				"sub_url": "https://i0.hdslb.com/bfs/wbi/" + keys.SubKey + ".png",
			},
		},
	})
}

func (p *Platform) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	p.mu.Lock()
	p.searchRequests++
	p.lastQuery = query
	p.lastHeader = r.Header.Clone()
	fail := p.searchFailures > 0
	if fail {
		p.searchFailures--
	}
	var rej *rejection
	if !fail && len(p.rejections) > 0 {
		rej = &p.rejections[0]
		p.rejections = p.rejections[1:]
	}
	keys := p.keys
	mid := query.Get("mid")
	videos := append([]Video(nil), p.videos[mid]...)
	logger := p.logger
	p.mu.Unlock()

	logger.Info("search request", "mid", mid, "fail", fail)

	if fail {
		http.Error(w, "upstream unavailable", http.StatusInternalServerError)
		return
	}
	if rej != nil {
		writeJSON(w, map[string]any{"code": rej.code, "message": rej.message})
		return
	}

	ua := r.Header.Get("User-Agent")
	if ua == "" || ua == goDefaultUserAgent {
		writeJSON(w, map[string]any{"code": CodeRequestBlocked, "message": "请求被拦截"})
		return
	}
	if query.Get("wts") == "" || !verifySignature(query, keys) {
		writeJSON(w, map[string]any{"code": CodeBadSignature, "message": "访问权限不足"})
		return
	}

	pageSize, err := strconv.Atoi(query.Get("ps"))
	if err != nil || pageSize <= 0 {
		pageSize = 30
	}
	if len(videos) > pageSize {
		videos = videos[:pageSize]
	}

	writeJSON(w, map[string]any{
		"code":    0,
		"message": "0",
		"data": map[string]any{
			"list": map[string]any{"vlist": videos},
			"page": map[string]any{"pn": 1, "ps": pageSize, "count": len(videos)},
		},
	})
}

// verifySignature recomputes w_rid from the received parameters.
func verifySignature(query url.Values, keys wbi.Keys) bool {
	params := make(wbi.Params, len(query))
	for k := range query {
		params[k] = query.Get(k)
	}
	signed, err := wbi.Sign(params, keys)
	if err != nil {
		return false
	}
	return signed[wbi.SignatureParam] == query.Get(wbi.SignatureParam)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}
