package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/creatorwatch"
	"github.com/jpalmerr/creatorwatch/internal/store"
)

const pollEvery = 5 * time.Second

func main() {
	creators := []string{"1001", "1002", "1003"}

	// start mock platform (see mock_server.go)
	StartMockPlatform(":9999", creators)
	time.Sleep(100 * time.Millisecond)

	w, err := creatorwatch.New(
		creatorwatch.WithCreators(creators...),
		creatorwatch.WithStore(store.NewMemoryStore(nil)),
		creatorwatch.WithAPIBase("http://localhost:9999"),
		creatorwatch.WithMaxConcurrency(2),
		creatorwatch.WithNotifyFunc(func(it creatorwatch.Item) {
			fmt.Printf("  ▶ %s published %q\n    %s\n", it.Author, it.Title, it.URL())
		}),
	)
	if err != nil {
		slog.Error("failed to create watcher", "error", err)
		os.Exit(1)
	}
	defer w.Close()

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   creatorwatch Demo                                   ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   3 mock creators upload every 10-30 seconds          ║")
	fmt.Println("  ║   The first pass records silently; later passes       ║")
	fmt.Println("  ║   print each new upload exactly once                  ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()

	for {
		report, err := w.RunOnce(ctx)
		if err != nil {
			slog.Error("run failed", "error", err)
			os.Exit(1)
		}
		slog.Info("pass complete",
			"updated", report.Count(creatorwatch.OutcomeUpdated),
			"first_seen", report.Count(creatorwatch.OutcomeFirstSeen),
			"failed", report.Count(creatorwatch.OutcomeFailed),
		)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
