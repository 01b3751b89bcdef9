package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func fastOptions() Options {
	opts := DefaultOptions()
	opts.RetryDelay = time.Millisecond
	opts.Timeout = 5 * time.Second
	return opts
}

func TestClientGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "test-agent" {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		fmt.Fprint(w, "<rss/>")
	}))
	defer srv.Close()

	opts := fastOptions()
	opts.UserAgent = "test-agent"
	body, err := NewClient(opts, nil).Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "<rss/>" {
		t.Errorf("body = %q", body)
	}
}

func TestClientRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	body, err := NewClient(fastOptions(), nil).Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("body = %q", body)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestClientGivesUpWithStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(fastOptions(), nil).Get(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error")
	}
	code, ok := StatusCode(err)
	if !ok || code != http.StatusNotFound {
		t.Errorf("StatusCode = %d, %v", code, ok)
	}
	if got := calls.Load(); got != 1+DefaultRetries {
		t.Errorf("expected %d attempts, got %d", 1+DefaultRetries, got)
	}
}

func TestClientFetchReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("partial"))
	}))
	defer srv.Close()

	resp, err := NewClient(fastOptions(), nil).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if resp.Status != http.StatusPartialContent || string(resp.Body) != "partial" {
		t.Errorf("unexpected response %d %q", resp.Status, resp.Body)
	}
}

func TestClientStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	opts := fastOptions()
	opts.RetryDelay = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := NewClient(opts, nil).Get(ctx, srv.URL)
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestStatusCodeOnPlainError(t *testing.T) {
	if _, ok := StatusCode(fmt.Errorf("boom")); ok {
		t.Error("plain error should carry no status")
	}
	wrapped := fmt.Errorf("fetching: %w", &StatusError{Code: 502})
	if code, ok := StatusCode(wrapped); !ok || code != 502 {
		t.Errorf("StatusCode(wrapped) = %d, %v", code, ok)
	}
}
