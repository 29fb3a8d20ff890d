package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type quotaState struct {
	mu       sync.Mutex
	count    int
	required int
}

func (q *quotaState) set(count, required int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.count = count
	q.required = required
}

func (q *quotaState) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/status" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		q.mu.Lock()
		defer q.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"count":%d,"required":%d,"quotaMet":%t}`,
			q.count, q.required, q.count >= q.required)
	}
}

func TestShouldBlockUnload(t *testing.T) {
	quota := &quotaState{count: 1, required: 3}
	srv := httptest.NewServer(quota.handler(t))
	defer srv.Close()

	c := newTestClient(srv.URL)

	// Nothing fetched yet: never block on an unknown status.
	if c.ShouldBlockUnload() {
		t.Error("ShouldBlockUnload() = true before any status fetch")
	}

	c.RefreshQuota(context.Background())
	if !c.ShouldBlockUnload() {
		t.Error("ShouldBlockUnload() = false with quota unmet")
	}

	quota.set(3, 3)
	c.RefreshQuota(context.Background())
	if c.ShouldBlockUnload() {
		t.Error("ShouldBlockUnload() = true with quota met")
	}
}

func TestRefreshQuotaKeepsLastKnownOnFailure(t *testing.T) {
	quota := &quotaState{count: 0, required: 3}
	srv := httptest.NewServer(quota.handler(t))

	c := newTestClient(srv.URL)
	c.RefreshQuota(context.Background())
	if !c.ShouldBlockUnload() {
		t.Fatal("ShouldBlockUnload() = false with quota unmet")
	}

	// Daemon gone: the cached unmet status keeps blocking.
	srv.Close()
	c.RefreshQuota(context.Background())
	if !c.ShouldBlockUnload() {
		t.Error("failed refresh cleared the cached quota status")
	}
}

func TestWatchQuota(t *testing.T) {
	quota := &quotaState{count: 0, required: 3}
	srv := httptest.NewServer(quota.handler(t))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newTestClient(srv.URL)
	c.WatchQuota(ctx, 5*time.Millisecond)

	// The first refresh is synchronous.
	if !c.ShouldBlockUnload() {
		t.Fatal("ShouldBlockUnload() = false right after WatchQuota")
	}

	quota.set(3, 3)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !c.ShouldBlockUnload() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("quota cache never picked up the met status")
}

func TestUnloadPromptText(t *testing.T) {
	if UnloadPrompt == "" {
		t.Fatal("UnloadPrompt is empty")
	}
}
