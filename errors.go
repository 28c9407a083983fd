package creatorwatch

import (
	"github.com/jpalmerr/creatorwatch/internal/poller"
	"github.com/jpalmerr/creatorwatch/internal/store"
	"github.com/jpalmerr/creatorwatch/internal/wbi"
)

// Errors reported through [Result.Err] and [Watcher.RunOnce]. Match them
// with errors.Is.
var (
	// ErrKeyFetch means the rotating signing keys could not be retrieved.
	ErrKeyFetch = wbi.ErrKeyFetch

	// ErrSigning means the keys were malformed. It is never retried.
	ErrSigning = wbi.ErrSigning

	// ErrNoData means the platform returned an empty item list.
	ErrNoData = poller.ErrNoData

	// ErrFetchFailed means every attempt for a creator failed.
	ErrFetchFailed = poller.ErrFetchFailed

	// ErrPersist means the state could not be written. It is the only error
	// RunOnce returns after a pass has run.
	ErrPersist = store.ErrPersist
)

// APIError is a platform-level rejection: HTTP 200 with a non-zero code.
type APIError = poller.APIError

// FetchFailedError carries the creator id, attempt count and last error of
// an exhausted fetch.
type FetchFailedError = poller.FetchFailedError
