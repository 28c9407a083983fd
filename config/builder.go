package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jpalmerr/creatorwatch"
	"github.com/jpalmerr/creatorwatch/internal/notify"
	"github.com/jpalmerr/creatorwatch/internal/store"
)

// BuildStore opens the configured state backend. The mapping is not loaded;
// [creatorwatch.Watcher.RunOnce] does that on every pass.
func BuildStore(ctx context.Context, cfg *Config, logger *slog.Logger) (creatorwatch.StateStore, error) {
	backend, err := store.ParseBackend(cfg.State.Backend)
	if err != nil {
		return nil, err
	}

	s, err := store.Open(ctx, store.Config{
		Backend:   backend,
		Path:      cfg.State.Path,
		RedisAddr: cfg.State.RedisAddr,
		RedisKey:  cfg.State.RedisKey,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s state: %w", backend, err)
	}
	return s, nil
}

// BuildSinks converts the notify section into sinks, in file order. Text
// sinks write to stdout. If any sink fails to build, those already built are
// closed.
func BuildSinks(cfg *Config, logger *slog.Logger, stdout io.Writer) (notify.Multi, error) {
	sinks := make(notify.Multi, 0, len(cfg.Notify))

	for i, nc := range cfg.Notify {
		sink, err := buildSink(nc, logger, stdout)
		if err != nil {
			_ = sinks.Close()
			return nil, fmt.Errorf("notify[%d] (%s): %w", i, nc.Type, err)
		}
		sinks = append(sinks, sink)
	}

	return sinks, nil
}

func buildSink(nc NotifyConfig, logger *slog.Logger, stdout io.Writer) (notify.Sink, error) {
	switch nc.Type {
	case NotifyStdout:
		return notify.NewWriter(stdout), nil
	case NotifyLog:
		return notify.NewLog(logger), nil
	case NotifyWebhook:
		return notify.NewWebhook(nc.URL,
			notify.WithWebhookRetries(nc.Retries),
			notify.WithWebhookLogger(logger),
		), nil
	case NotifyKafka:
		return notify.DialKafka(nc.Brokers, nc.Topic, logger)
	default:
		// validation should catch this
		return nil, fmt.Errorf("unknown type %q", nc.Type)
	}
}

// BuildNotifier wraps the configured sinks as a single
// [creatorwatch.Notifier]. The result implements io.Closer, so the Watcher
// closes the sinks with itself.
func BuildNotifier(cfg *Config, logger *slog.Logger, stdout io.Writer) (creatorwatch.Notifier, error) {
	sinks, err := BuildSinks(cfg, logger, stdout)
	if err != nil {
		return nil, err
	}
	return &sinkNotifier{sink: sinks}, nil
}

// BuildOptions turns cfg into Watcher options, opening the state backend and
// every sink. The returned release closes what was opened; call it only if
// the options never reach a Watcher, since [creatorwatch.Watcher.Close]
// closes them otherwise. On error nothing is left open.
//
// Example:
//
//	opts, release, err := config.BuildOptions(ctx, cfg, logger, os.Stdout)
//	if err != nil {
//	    return err
//	}
//	w, err := creatorwatch.New(opts...)
//	if err != nil {
//	    _ = release()
//	    return err
//	}
func BuildOptions(ctx context.Context, cfg *Config, logger *slog.Logger, stdout io.Writer) ([]creatorwatch.Option, func() error, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := BuildStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	notifier, err := BuildNotifier(cfg, logger, stdout)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}

	release := func() error {
		return errors.Join(notifier.(io.Closer).Close(), st.Close())
	}

	opts := []creatorwatch.Option{
		creatorwatch.WithCreators(cfg.Creators...),
		creatorwatch.WithStore(st),
		creatorwatch.WithNotifier(notifier),
		creatorwatch.WithLogger(logger),
		creatorwatch.WithHTTPTimeout(cfg.HTTP.Timeout.Duration()),
		creatorwatch.WithUserAgent(cfg.HTTP.UserAgent),
		creatorwatch.WithMaxAttempts(cfg.Retry.Attempts),
		creatorwatch.WithBackoff(creatorwatch.LinearBackoff(cfg.Retry.Backoff.Duration())),
		creatorwatch.WithMaxConcurrency(cfg.Concurrency),
		creatorwatch.WithRequestDelay(cfg.RequestDelay.Duration()),
		creatorwatch.WithAPIEndpoints(cfg.API.NavURL, cfg.API.SearchURL),
	}
	if len(cfg.HTTP.UserAgents) > 0 {
		opts = append(opts, creatorwatch.WithUserAgents(cfg.HTTP.UserAgents...))
	}
	if cfg.HTTP.Proxy != "" {
		opts = append(opts, creatorwatch.WithProxy(cfg.HTTP.Proxy))
	}

	return opts, release, nil
}

// sinkNotifier adapts a notify.Sink to creatorwatch.Notifier.
type sinkNotifier struct {
	sink notify.Sink
}

func (s *sinkNotifier) Notify(ctx context.Context, item creatorwatch.Item) error {
	return s.sink.Send(ctx, notify.NewMessage(
		item.CreatorID,
		item.ID,
		item.Author,
		item.Title,
		item.URL(),
		item.PublishedAt,
	))
}

func (s *sinkNotifier) Close() error {
	return s.sink.Close()
}
