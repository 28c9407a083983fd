// Package notify delivers new-item notifications to output backends.
//
// Every sink implements [Sink]. [Multi] fans a message out to several sinks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sink is the output interface. Implementations deliver messages to
// different backends (log, stdout, webhook, Kafka).
type Sink interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

// Message describes one newly observed item.
type Message struct {
	ID          string    `json:"id"`
	CreatorID   string    `json:"creator_id"`
	ItemID      string    `json:"item_id"`
	Author      string    `json:"author"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at,omitzero"`
	DetectedAt  time.Time `json:"detected_at"`
}

// NewMessage creates a Message with a fresh id, detected now.
func NewMessage(creatorID, itemID, author, title, url string, publishedAt time.Time) Message {
	return Message{
		ID:          uuid.NewString(),
		CreatorID:   creatorID,
		ItemID:      itemID,
		Author:      author,
		Title:       title,
		URL:         url,
		PublishedAt: publishedAt,
		DetectedAt:  time.Now().UTC(),
	}
}

// Headline is the one-line summary used by text sinks.
func (m Message) Headline() string {
	author := m.Author
	if author == "" {
		author = m.CreatorID
	}
	return fmt.Sprintf("%s published a new item", author)
}

// Multi sends every message to all sinks, in order. A failing sink does not
// stop delivery to the others.
type Multi []Sink

// Send delivers msg to every sink and joins their errors.
func (m Multi) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Func adapts a function to [Sink].
type Func func(ctx context.Context, msg Message) error

// Send calls f.
func (f Func) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Close is a no-op.
func (f Func) Close() error { return nil }
