package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/jpalmerr/creatorwatch/internal/fakeapi"
	"github.com/jpalmerr/creatorwatch/internal/wbi"
)

var demoKeys = wbi.Keys{
	ImgKey: "7cd084941338484aae1ad9425b84077c",
	SubKey: "4932caff0ff746eab6f01bf08b70ac45",
}

// StartMockPlatform serves a fake video platform on addr. Each creator gets
// an initial upload, then a new one every 10-30 seconds. The server and the
// publishers run in the background.
func StartMockPlatform(addr string, creators []string) *fakeapi.Platform {
	platform := fakeapi.New(demoKeys)

	for _, mid := range creators {
		platform.Publish(mid, demoVideo(mid, 1))
	}

	go func() {
		if err := http.ListenAndServe(addr, platform); err != nil {
			slog.Error("mock platform error", "error", err)
		}
	}()

	for _, mid := range creators {
		go publishLoop(platform, mid)
	}
	return platform
}

// publishLoop uploads a new video for mid at random intervals.
func publishLoop(platform *fakeapi.Platform, mid string) {
	for n := 2; ; n++ {
		time.Sleep(time.Duration(10+rand.Intn(21)) * time.Second)
		v := demoVideo(mid, n)
		platform.Publish(mid, v)
		slog.Info("mock upload", "creator_id", mid, "bvid", v.BVID)
	}
}

func demoVideo(mid string, n int) fakeapi.Video {
	return fakeapi.Video{
		BVID:    fmt.Sprintf("BVdemo%s%03d", mid, n),
		Title:   fmt.Sprintf("Episode <em class=\"keyword\">%d</em>", n),
		Author:  "creator-" + mid,
		Created: time.Now().Unix(),
	}
}
