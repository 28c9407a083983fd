package poller

import (
	"errors"
	"fmt"
)

var (
	// ErrNoData is returned when the platform answers with an empty item
	// list. It is retryable: the response may be transiently empty.
	ErrNoData = errors.New("poller: no items returned")

	// ErrFetchFailed matches every [*FetchFailedError].
	ErrFetchFailed = errors.New("poller: fetch failed")
)

// APIError is a platform-level rejection: HTTP 200 with a non-zero code.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform code %d: %s", e.Code, e.Message)
}

// Blocked reports whether the platform's risk control rejected the request.
func (e *APIError) Blocked() bool {
	return e.Code == codeRequestBlocked
}

// FetchFailedError is returned once all attempts for a creator are used up,
// or an attempt failed with a non-retryable error.
type FetchFailedError struct {
	CreatorID string
	Attempts  int
	Err       error
}

func (e *FetchFailedError) Error() string {
	return fmt.Sprintf("fetch latest item for creator %s failed after %d attempt(s): %v", e.CreatorID, e.Attempts, e.Err)
}

// Unwrap exposes the last attempt's error.
func (e *FetchFailedError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrFetchFailed) true.
func (e *FetchFailedError) Is(target error) bool {
	return target == ErrFetchFailed
}
