package callbacks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coderomm/Xolana/internal/config"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestNewRetryableClientDisabledWithoutURL(t *testing.T) {
	client := NewRetryableClient(config.CallbacksConfig{})
	if _, ok := client.(NoopNotifier); !ok {
		t.Error("empty mint success URL should return NoopNotifier")
	}
}

func TestMintSucceededDelivers(t *testing.T) {
	var received atomic.Int32
	var gotAuth atomic.Value

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewRetryableClient(config.CallbacksConfig{
		MintSuccessURL: server.URL,
		Headers:        map[string]string{"Authorization": "Bearer test-token"},
	})

	client.MintSucceeded(context.Background(), MintEvent{
		Wallet:         "7Np41oeYqPefeNQEHSv1UDhYrehxin3NStELsSKCT4K2",
		StakeSignature: "sig-cb-1",
		MintSignature:  "sig-mint-1",
		Lamports:       1_000_000_000,
	})

	waitFor(t, 3*time.Second, func() bool { return received.Load() == 1 })

	if auth, _ := gotAuth.Load().(string); auth != "Bearer test-token" {
		t.Errorf("expected configured auth header, got %q", auth)
	}
}

func TestMintSucceededRetriesAndHitsDLQ(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	dlq := NewMemoryDLQStore()
	client := NewRetryableClient(
		config.CallbacksConfig{
			MintSuccessURL: server.URL,
			Retry:          config.RetryConfig{Enabled: true},
		},
		WithDLQStore(dlq),
		WithRetryConfig(RetryConfig{
			MaxAttempts:     3,
			InitialInterval: 5 * time.Millisecond,
			MaxInterval:     20 * time.Millisecond,
			Multiplier:      2.0,
			Timeout:         time.Second,
		}),
	)

	client.MintSucceeded(context.Background(), MintEvent{
		Wallet:         "7Np41oeYqPefeNQEHSv1UDhYrehxin3NStELsSKCT4K2",
		StakeSignature: "sig-cb-dlq",
	})

	waitFor(t, 5*time.Second, func() bool {
		failed, _ := dlq.ListFailedCallbacks(context.Background(), 10)
		return len(failed) == 1
	})

	if got := attempts.Load(); got != 3 {
		t.Errorf("expected 3 delivery attempts, got %d", got)
	}

	failed, err := dlq.ListFailedCallbacks(context.Background(), 10)
	if err != nil {
		t.Fatalf("list DLQ: %v", err)
	}
	if failed[0].EventType != "mint.succeeded" {
		t.Errorf("expected mint.succeeded event type, got %s", failed[0].EventType)
	}
	if failed[0].Attempts != 3 {
		t.Errorf("expected 3 recorded attempts, got %d", failed[0].Attempts)
	}
}

func TestPrepareMintEventPreservesExistingID(t *testing.T) {
	event := MintEvent{EventID: "evt_fixed"}
	PrepareMintEvent(&event)

	if event.EventID != "evt_fixed" {
		t.Errorf("existing event ID must be preserved, got %s", event.EventID)
	}
	if event.EventType != "mint.succeeded" {
		t.Errorf("expected default event type, got %s", event.EventType)
	}
	if event.EventTimestamp.IsZero() || event.MintedAt.IsZero() {
		t.Error("timestamps should be populated")
	}
}

func TestFileDLQStorePersists(t *testing.T) {
	path := t.TempDir() + "/dlq.json"
	ctx := context.Background()

	store, err := NewFileDLQStore(path)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}

	cb := FailedCallback{
		ID:        "cb_test_1",
		URL:       "http://example.invalid/callback",
		EventType: "mint.succeeded",
		Attempts:  5,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.SaveFailedCallback(ctx, cb); err != nil {
		t.Fatalf("save: %v", err)
	}

	reopened, err := NewFileDLQStore(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}

	failed, err := reopened.ListFailedCallbacks(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "cb_test_1" {
		t.Errorf("expected persisted DLQ entry, got %+v", failed)
	}
}
