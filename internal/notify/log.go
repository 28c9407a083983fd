package notify

import (
	"context"
	"log/slog"
)

// Log writes each message as a structured Info record.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a Log sink. A nil logger means slog.Default().
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Send(ctx context.Context, msg Message) error {
	l.logger.InfoContext(ctx, "new item",
		"message_id", msg.ID,
		"creator_id", msg.CreatorID,
		"item_id", msg.ItemID,
		"author", msg.Author,
		"title", msg.Title,
		"url", msg.URL,
	)
	return nil
}

func (l *Log) Close() error { return nil }
