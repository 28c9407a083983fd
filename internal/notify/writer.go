package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Writer prints a short human-readable block per message: a headline, the
// title and the link.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter creates a Writer sink printing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (s *Writer) Send(ctx context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "%s\n  title: %s\n  link:  %s\n", msg.Headline(), msg.Title, msg.URL)
	if err != nil {
		return fmt.Errorf("writer: %w", err)
	}
	return nil
}

func (s *Writer) Close() error { return nil }
