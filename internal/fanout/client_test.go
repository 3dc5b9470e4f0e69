package fanout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openleague/livematch/internal/core/sim"
	"github.com/openleague/livematch/internal/events"
	"github.com/openleague/livematch/internal/reconcile"
)

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestClientFeedsReconcilerFromJoinSnapshot(t *testing.T) {
	bus, matches, wsURL := newWSServer(t, "")
	if !matches.Put(idleRunner(bus, "match-1")) {
		t.Fatal("put runner failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := reconcile.New()
	localBus := events.NewBus()
	c := NewClient(ClientConfig{WSURL: wsURL, Match: "match-1"}, localBus, rec)
	go c.Run(ctx)

	waitFor(t, 2*time.Second, rec.Ready)
	if got := rec.MatchID(); got != "match-1" {
		t.Fatalf("expected reconciled match-1, got %s", got)
	}
}

func TestClientPublishesStatusTransitions(t *testing.T) {
	bus, matches, wsURL := newWSServer(t, "")
	if !matches.Put(idleRunner(bus, "match-1")) {
		t.Fatal("put runner failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	localBus := events.NewBus()
	statusCh := make(chan events.StatusUpdate, 8)
	localBus.Subscribe(events.EventWSStatus, func(e events.Event) error {
		if su, ok := e.Payload.(events.StatusUpdate); ok {
			statusCh <- su
		}
		return nil
	})

	c := NewClient(ClientConfig{WSURL: wsURL, Match: "match-1"}, localBus, reconcile.New())
	go c.Run(ctx)

	select {
	case su := <-statusCh:
		if !su.Connected {
			t.Fatalf("expected connected=true on first status, got %+v", su)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no status update after connect")
	}
}

func TestPollerAppliesSnapshots(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/matches/m1" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"state": sim.LiveMatchState{MatchID: "m1", Status: sim.StatusLive, GameTime: 777},
		})
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := reconcile.New()
	p := NewPoller(ts.URL, func() string { return "m1" }, 10*time.Millisecond, rec)
	go p.Run(ctx)

	waitFor(t, 2*time.Second, func() bool { return rec.Ready() && rec.GameTime() == 777 })
}

func TestClientFallsBackToPolling(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"state": sim.LiveMatchState{MatchID: "m1", Status: sim.StatusLive, GameTime: 42},
		})
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := reconcile.New()
	cfg := ClientConfig{
		WSURL:        "ws://127.0.0.1:1/ws", // nothing listens here
		HTTPURL:      ts.URL,
		Match:        "m1",
		PollInterval: 10 * time.Millisecond,
		MaxAttempts:  1,
	}
	c := NewClient(cfg, events.NewBus(), rec)
	go c.Run(ctx)

	waitFor(t, 3*time.Second, func() bool { return rec.Ready() && rec.GameTime() == 42 })
}
