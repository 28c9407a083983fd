package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestWebhook_Send(t *testing.T) {
	var got Message
	var contentType, messageID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		messageID = r.Header.Get("X-Message-Id")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	msg := testMessage()
	s := NewWebhook(server.URL, WithWebhookLogger(testLogger()))
	if err := s.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if contentType != "application/json" {
		t.Errorf("Content-Type = %q", contentType)
	}
	if messageID != msg.ID {
		t.Errorf("X-Message-Id = %q, want %q", messageID, msg.ID)
	}
	if got.ItemID != "BV002" || got.URL != msg.URL || got.Title != msg.Title {
		t.Errorf("payload = %+v", got)
	}
}

func TestWebhook_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := NewWebhook(server.URL, WithWebhookBackoff(time.Millisecond), WithWebhookLogger(testLogger()))
	if err := s.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestWebhook_GivesUp(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	s := NewWebhook(server.URL,
		WithWebhookRetries(2),
		WithWebhookBackoff(time.Millisecond),
		WithWebhookLogger(testLogger()),
	)
	if err := s.Send(context.Background(), testMessage()); err == nil {
		t.Fatal("expected error, got nil")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3 (1 + 2 retries)", got)
	}
}

func TestWebhook_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	s := NewWebhook(server.URL, WithWebhookBackoff(time.Millisecond), WithWebhookLogger(testLogger()))
	if err := s.Send(context.Background(), testMessage()); err == nil {
		t.Fatal("expected error, got nil")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestWebhook_ContextCancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	s := NewWebhook(server.URL, WithWebhookBackoff(time.Hour), WithWebhookLogger(testLogger()))
	start := time.Now()
	if err := s.Send(ctx, testMessage()); err == nil {
		t.Fatal("expected error, got nil")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Send() did not stop on context cancellation")
	}
}
