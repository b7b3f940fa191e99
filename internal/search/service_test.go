package search

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coderomm/Xolana/internal/config"
)

func TestRelayForwardsBodyAndResponse(t *testing.T) {
	var gotBody atomic.Value

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody.Store(string(body))
		w.Write([]byte(`{"hits":[{"symbol":"XSOL"}]}`))
	}))
	defer server.Close()

	svc := NewService(config.SearchConfig{UpstreamURL: server.URL})

	query := []byte(`{"searches":[{"q":"xsol"}]}`)
	response, err := svc.Relay(context.Background(), query)
	if err != nil {
		t.Fatalf("relay: %v", err)
	}

	if got, _ := gotBody.Load().(string); got != string(query) {
		t.Errorf("upstream must receive the body verbatim, got %s", got)
	}
	if string(response) != `{"hits":[{"symbol":"XSOL"}]}` {
		t.Errorf("unexpected response: %s", response)
	}
}

func TestRelayCachesIdenticalQueries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"hits":[]}`))
	}))
	defer server.Close()

	svc := NewService(config.SearchConfig{
		UpstreamURL: server.URL,
		CacheTTL:    config.Duration{Duration: time.Minute},
	})
	ctx := context.Background()

	query := []byte(`{"searches":[{"q":"bonk"}]}`)
	if _, err := svc.Relay(ctx, query); err != nil {
		t.Fatalf("first relay: %v", err)
	}
	if _, err := svc.Relay(ctx, query); err != nil {
		t.Fatalf("second relay: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 upstream call for identical queries, got %d", calls.Load())
	}

	// A different query misses the cache
	if _, err := svc.Relay(ctx, []byte(`{"searches":[{"q":"wif"}]}`)); err != nil {
		t.Fatalf("third relay: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 upstream calls, got %d", calls.Load())
	}
}

func TestRelayUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	svc := NewService(config.SearchConfig{UpstreamURL: server.URL})

	if _, err := svc.Relay(context.Background(), []byte(`{}`)); !errors.Is(err, ErrUpstream) {
		t.Errorf("expected ErrUpstream, got %v", err)
	}
}

func TestRelayErrorsAreNotCached(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"hits":[]}`))
	}))
	defer server.Close()

	svc := NewService(config.SearchConfig{
		UpstreamURL: server.URL,
		CacheTTL:    config.Duration{Duration: time.Minute},
	})
	ctx := context.Background()

	query := []byte(`{"searches":[{"q":"retry"}]}`)
	if _, err := svc.Relay(ctx, query); err == nil {
		t.Fatal("expected first relay to fail")
	}
	if _, err := svc.Relay(ctx, query); err != nil {
		t.Fatalf("second relay should reach upstream again: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 upstream calls, got %d", calls.Load())
	}
}
