package creatorwatch

import (
	"time"

	"github.com/jpalmerr/creatorwatch/internal/poller"
)

// Outcome is the terminal state of one creator within a pass.
//
// Outcome is a string type that can hold one of four predefined values:
// [OutcomeUnchanged], [OutcomeFirstSeen], [OutcomeUpdated] or
// [OutcomeFailed].
type Outcome string

const (
	// OutcomeUnchanged means the newest item is the one already recorded.
	OutcomeUnchanged Outcome = Outcome(poller.OutcomeUnchanged)

	// OutcomeFirstSeen means the creator had no recorded item. The item was
	// recorded without a notification.
	OutcomeFirstSeen Outcome = Outcome(poller.OutcomeFirstSeen)

	// OutcomeUpdated means a new item was observed, notified and recorded.
	OutcomeUpdated Outcome = Outcome(poller.OutcomeUpdated)

	// OutcomeFailed means the creator could not be checked this pass. Its
	// recorded item is unchanged.
	OutcomeFailed Outcome = Outcome(poller.OutcomeFailed)
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	return string(o)
}

// Item is the newest published item of a creator.
type Item struct {
	// ID is the platform's item id, used for deduplication.
	ID string

	// Title is the item title with markup removed.
	Title string

	// Author is the creator's display name.
	Author string

	// CreatorID is the creator the item was fetched for.
	CreatorID string

	// PublishedAt is when the item was published. Zero if unknown.
	PublishedAt time.Time
}

// URL returns the item's canonical page URL.
func (i Item) URL() string {
	return poller.ItemURL(i.ID)
}

// Result holds the outcome of checking a single creator.
type Result struct {
	CreatorID string
	Outcome   Outcome

	// Item is the fetched item. Zero when Outcome is OutcomeFailed.
	Item Item

	// PreviousID is the item id recorded before this pass, if any.
	PreviousID string

	// Err is the fetch error for OutcomeFailed, or the notification error
	// for OutcomeUpdated. Nil otherwise.
	Err error
}

// Report summarises one pass.
type Report struct {
	// RunID identifies the pass in logs.
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	// Results holds one entry per distinct creator, in configured order.
	Results []Result
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

// Updated returns the items notified during the pass.
func (r Report) Updated() []Item {
	var items []Item
	for _, res := range r.Results {
		if res.Outcome == OutcomeUpdated {
			items = append(items, res.Item)
		}
	}
	return items
}

func itemFromPoller(pi poller.Item) Item {
	return Item{
		ID:          pi.ID,
		Title:       pi.Title,
		Author:      pi.Author,
		CreatorID:   pi.CreatorID,
		PublishedAt: pi.PublishedAt,
	}
}

func reportFromPoller(pr poller.Report) Report {
	results := make([]Result, len(pr.Results))
	for i, res := range pr.Results {
		results[i] = Result{
			CreatorID:  res.CreatorID,
			Outcome:    Outcome(res.Outcome),
			Item:       itemFromPoller(res.Item),
			PreviousID: res.PreviousID,
			Err:        res.Err,
		}
	}
	return Report{
		RunID:      pr.RunID,
		StartedAt:  pr.StartedAt,
		FinishedAt: pr.FinishedAt,
		Results:    results,
	}
}
