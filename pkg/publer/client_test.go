package publer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPublishSuccess(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/posts" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-1" {
			t.Fatalf("unexpected auth header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient("key-1", "acct-1", 2*time.Second)
	c.SetBaseURL(srv.URL)

	res := c.Publish(context.Background(), "Deal! https://t.example/l1", "https://t.example/l1", "https://img.example/a.jpg", []string{"instagram", "facebook"})
	if !res.OK {
		t.Fatalf("expected success, got detail %q", res.Detail)
	}

	accounts, ok := payload["accounts"].([]any)
	if !ok || len(accounts) != 1 || accounts[0] != "acct-1" {
		t.Fatalf("unexpected accounts: %#v", payload["accounts"])
	}
	content, ok := payload["content"].(map[string]any)
	if !ok || content["text"] != "Deal! https://t.example/l1" {
		t.Fatalf("unexpected content: %#v", payload["content"])
	}
	if _, ok := content["media"]; !ok {
		t.Fatalf("expected media in content: %#v", content)
	}
}

func TestPublishNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient("key-1", "acct-1", 2*time.Second)
	c.SetBaseURL(srv.URL)

	res := c.Publish(context.Background(), "text", "https://t.example/l1", "", nil)
	if res.OK {
		t.Fatalf("expected failure on 429")
	}
	if res.Detail == "" {
		t.Fatalf("expected diagnostic detail")
	}
}

func TestPublishMissingCredentials(t *testing.T) {
	c := NewClient("", "", time.Second)
	res := c.Publish(context.Background(), "text", "link", "", nil)
	if res.OK {
		t.Fatalf("expected failure without credentials")
	}
	if res.Detail != "publer credentials missing" {
		t.Fatalf("unexpected detail %q", res.Detail)
	}
}
