package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/openleague/livematch/internal/config"
	"github.com/openleague/livematch/internal/core/display"
	"github.com/openleague/livematch/internal/events"
	"github.com/openleague/livematch/internal/fanout"
	"github.com/openleague/livematch/internal/reconcile"
	"github.com/openleague/livematch/internal/telemetry"
)

const refreshInterval = 500 * time.Millisecond

// finalLinger keeps the final scoreboard on screen briefly before exit.
const finalLinger = 2 * time.Second

func main() {
	cfg := config.Load()

	match := flag.String("match", "", "match id to watch")
	list := flag.Bool("list", false, "list matches and exit")
	wsURL := flag.String("ws", cfg.ServerWSURL, "server WebSocket URL")
	httpURL := flag.String("http", cfg.ServerHTTPURL, "server HTTP base URL")
	poll := flag.Int("poll", cfg.PollIntervalSec, "poll interval in seconds (fallback mode)")
	attempts := flag.Int("attempts", 5, "failed connects before polling fallback")
	flag.Parse()

	telemetry.Init(telemetry.ParseLogLevel(cfg.LogLevel))

	if *list {
		listMatches(*httpURL)
		return
	}
	if *match == "" {
		fmt.Fprintln(os.Stderr, "usage: spectator -match <id>  (or -list)")
		os.Exit(1)
	}

	bus := events.NewBus()
	rec := reconcile.New()
	board := display.NewBoard()

	bus.Subscribe(events.EventWSStatus, func(e events.Event) error {
		if su, ok := e.Payload.(events.StatusUpdate); ok {
			board.SetConnected(su.Connected)
		}
		return nil
	})

	completed := make(chan struct{}, 1)
	bus.Subscribe(events.EventMatchComplete, func(e events.Event) error {
		select {
		case completed <- struct{}{}:
		default:
		}
		return nil
	})

	client := fanout.NewClient(fanout.ClientConfig{
		WSURL:        *wsURL,
		HTTPURL:      *httpURL,
		Match:        *match,
		PollInterval: time.Duration(*poll) * time.Second,
		MaxAttempts:  *attempts,
	}, bus, rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	telemetry.Infof("Watching match %s via %s", *match, *wsURL)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if st, ok := rec.View(); ok {
				board.Refresh(st)
			}
		case <-completed:
			if st, ok := rec.View(); ok {
				board.Refresh(st)
			}
			telemetry.Infof("Match complete")
			time.Sleep(finalLinger)
			return
		case <-sigCh:
			telemetry.Infof("Spectator closing")
			return
		}
	}
}

func listMatches(baseURL string) {
	httpClient := &http.Client{Timeout: 10 * time.Second}
	resp, err := httpClient.Get(strings.TrimRight(baseURL, "/") + "/matches")
	if err != nil {
		fmt.Fprintf(os.Stderr, "list matches: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var payload struct {
		Matches []struct {
			MatchID   string `json:"match_id"`
			Home      string `json:"home"`
			Away      string `json:"away"`
			Status    string `json:"status"`
			GameTime  int    `json:"game_time"`
			HomeScore int    `json:"home_score"`
			AwayScore int    `json:"away_score"`
			Source    string `json:"source"`
		} `json:"matches"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		fmt.Fprintf(os.Stderr, "decode match list: %v\n", err)
		os.Exit(1)
	}

	if len(payload.Matches) == 0 {
		fmt.Println("(no matches)")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MATCH\tFIXTURE\tSTATUS\tCLOCK\tSCORE\tSOURCE")
	for _, s := range payload.Matches {
		fmt.Fprintf(w, "%s\t%s vs %s\t%s\t%d'\t%d-%d\t%s\n",
			s.MatchID, s.Home, s.Away, s.Status, s.GameTime/60, s.HomeScore, s.AwayScore, s.Source)
	}
	w.Flush()
}
