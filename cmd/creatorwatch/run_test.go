package main

import (
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jpalmerr/creatorwatch"
	"github.com/jpalmerr/creatorwatch/internal/fakeapi"
	"github.com/jpalmerr/creatorwatch/internal/wbi"
)

// startPlatform serves a fake platform and returns a config file pointing at
// it with state stored at statePath.
func startPlatform(t *testing.T, statePath string) (*fakeapi.Platform, string) {
	t.Helper()

	platform := fakeapi.New(wbi.Keys{
		ImgKey: "7cd084941338484aae1ad9425b84077c",
		SubKey: "4932caff0ff746eab6f01bf08b70ac45",
	})
	server := httptest.NewServer(platform)
	t.Cleanup(server.Close)

	configPath := writeConfig(t, `
state:
  path: `+statePath+`
retry:
  backoff: 1ms
api:
  nav_url: `+server.URL+fakeapi.NavPath+`
  search_url: `+server.URL+fakeapi.SearchPath+`
`)
	return platform, configPath
}

func TestRunOnce_FirstRunThenNotify(t *testing.T) {
	clearBiliEnv(t)
	statePath := filepath.Join(t.TempDir(), "state.json")
	platform, configPath := startPlatform(t, statePath)

	platform.Publish("123", fakeapi.Video{BVID: "BV001", Title: "first", Author: "Alice"})
	out, logs, err := executeCmd(t, "run", "-c", configPath, "--creators", "123")
	if err != nil {
		t.Fatalf("first run error = %v\nlogs:\n%s", err, logs)
	}
	if out != "" {
		t.Errorf("first run should be silent, got %q", out)
	}
	if !strings.Contains(logs, `"first_seen":1`) {
		t.Errorf("logs should report one first_seen creator\nGot:\n%s", logs)
	}

	platform.Publish("123", fakeapi.Video{BVID: "BV002", Title: "second", Author: "Alice"})
	out, _, err = executeCmd(t, "run", "-c", configPath, "--creators", "123")
	if err != nil {
		t.Fatalf("second run error = %v", err)
	}
	for _, want := range []string{"Alice", "second", "https://www.bilibili.com/video/BV002"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\nGot:\n%s", want, out)
		}
	}

	data, err := os.ReadFile(statePath)
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	if !strings.Contains(string(data), "BV002") {
		t.Errorf("state = %s, want BV002", data)
	}
}

func TestRunOnce_StateFlagOverridesEnv(t *testing.T) {
	clearBiliEnv(t)
	dir := t.TempDir()
	t.Setenv("BILI_STATE_FILE", filepath.Join(dir, "from-env.json"))
	t.Setenv("BILI_UP_IDS", "123")
	platform, configPath := startPlatform(t, filepath.Join(dir, "from-file.json"))
	platform.Publish("123", fakeapi.Video{BVID: "BV001", Title: "t", Author: "A"})

	flagPath := filepath.Join(dir, "from-flag.json")
	if _, _, err := executeCmd(t, "run", "-c", configPath, "--state", flagPath); err != nil {
		t.Fatalf("run error = %v", err)
	}

	if _, err := os.Stat(flagPath); err != nil {
		t.Errorf("state should be written to the --state path: %v", err)
	}
	for _, name := range []string{"from-env.json", "from-file.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("%s should not exist, stat err = %v", name, err)
		}
	}
}

func TestRunOnce_FailedCreatorStillSucceeds(t *testing.T) {
	clearBiliEnv(t)
	platform, configPath := startPlatform(t, filepath.Join(t.TempDir(), "state.json"))
	platform.Publish("123", fakeapi.Video{BVID: "BV001", Title: "t", Author: "A"})
	platform.FailSearch(100)

	_, logs, err := executeCmd(t, "run", "-c", configPath, "--creators", "123")
	if err != nil {
		t.Fatalf("run should succeed when only creators fail, got %v", err)
	}
	if !strings.Contains(logs, `"failed":1`) {
		t.Errorf("logs should report the failed creator\nGot:\n%s", logs)
	}
}

func TestRunOnce_PersistFailureExitsNonZero(t *testing.T) {
	clearBiliEnv(t)
	// a regular file where the state directory should be
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	statePath := filepath.Join(blocker, "state.json")
	platform, configPath := startPlatform(t, statePath)
	platform.Publish("123", fakeapi.Video{BVID: "BV001", Title: "t", Author: "A"})

	_, _, err := executeCmd(t, "run", "-c", configPath, "--creators", "123")
	if err == nil {
		t.Fatal("run expected error when the state cannot be written, got nil")
	}
	if !errors.Is(err, creatorwatch.ErrPersist) {
		t.Errorf("error = %v, want ErrPersist", err)
	}
}

func TestRunOnce_InvalidConfig(t *testing.T) {
	clearBiliEnv(t)
	configPath := writeConfig(t, "http:\n  timeout: 5m\n")

	_, _, err := executeCmd(t, "run", "-c", configPath)
	if err == nil {
		t.Fatal("run expected error for invalid config, got nil")
	}
	if !strings.Contains(err.Error(), "failed to load config") {
		t.Errorf("error = %v", err)
	}
}

func TestRunOnce_NoCreators(t *testing.T) {
	clearBiliEnv(t)
	platform, configPath := startPlatform(t, filepath.Join(t.TempDir(), "state.json"))

	_, logs, err := executeCmd(t, "run", "-c", configPath)
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	if platform.NavRequests() != 0 || platform.SearchRequests() != 0 {
		t.Errorf("no requests expected, got nav=%d search=%d", platform.NavRequests(), platform.SearchRequests())
	}
	if !strings.Contains(logs, "no creators configured") {
		t.Errorf("logs should warn about missing creators\nGot:\n%s", logs)
	}
}

func TestRunOnce_NoCreatorsOpensNothing(t *testing.T) {
	clearBiliEnv(t)
	// nothing listens on port 1; dialing the broker or pinging Redis would fail
	configPath := writeConfig(t, `
state:
  backend: redis
  redis_addr: 127.0.0.1:1
notify:
  - type: kafka
    brokers: ["127.0.0.1:1"]
    topic: creator-items
`)

	_, logs, err := executeCmd(t, "run", "-c", configPath)
	if err != nil {
		t.Fatalf("run with no creators should succeed without connecting, got %v", err)
	}
	if !strings.Contains(logs, "no creators configured") {
		t.Errorf("logs should warn about missing creators\nGot:\n%s", logs)
	}
}

func TestRunOnce_CreatorsFlagCanEmptyTheList(t *testing.T) {
	clearBiliEnv(t)
	t.Setenv("BILI_UP_IDS", "123")
	configPath := writeConfig(t, `
notify:
  - type: kafka
    brokers: ["127.0.0.1:1"]
    topic: creator-items
`)

	if _, _, err := executeCmd(t, "run", "-c", configPath, "--creators", " , "); err != nil {
		t.Fatalf("run error = %v", err)
	}
}
