// Standalone mock platform for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal, repeatedly:
//
//	go run ./cmd/creatorwatch run -c example/config.yaml
package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/jpalmerr/creatorwatch/internal/fakeapi"
	"github.com/jpalmerr/creatorwatch/internal/wbi"
)

func main() {
	fmt.Println("Mock platform starting on :9999")
	fmt.Println("Creators 1001 and 1002 upload every 20-60 seconds")
	fmt.Println("Keys rotate every 5 minutes")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	keys := []wbi.Keys{
		{ImgKey: "7cd084941338484aae1ad9425b84077c", SubKey: "4932caff0ff746eab6f01bf08b70ac45"},
		{ImgKey: "0123456789abcdef0123456789abcdef", SubKey: "fedcba9876543210fedcba9876543210"},
	}

	platform := fakeapi.New(keys[0]).WithLogger(slog.Default())
	for _, mid := range []string{"1001", "1002"} {
		platform.Publish(mid, video(mid, 1))
		go func() {
			for n := 2; ; n++ {
				time.Sleep(time.Duration(20+rand.Intn(41)) * time.Second)
				platform.Publish(mid, video(mid, n))
				slog.Info("upload", "creator_id", mid, "n", n)
			}
		}()
	}

	go func() {
		for i := 1; ; i++ {
			time.Sleep(5 * time.Minute)
			platform.SetKeys(keys[i%len(keys)])
			slog.Info("keys rotated")
		}
	}()

	if err := http.ListenAndServe(":9999", platform); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func video(mid string, n int) fakeapi.Video {
	return fakeapi.Video{
		BVID:    fmt.Sprintf("BVmock%s%04d", mid, n),
		Title:   fmt.Sprintf("Upload %d from %s", n, mid),
		Author:  "creator-" + mid,
		Created: time.Now().Unix(),
	}
}
