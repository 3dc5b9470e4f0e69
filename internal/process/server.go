package process

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/openleague/livematch/internal/alerting"
	"github.com/openleague/livematch/internal/config"
	"github.com/openleague/livematch/internal/core/archive"
	"github.com/openleague/livematch/internal/core/pacing"
	"github.com/openleague/livematch/internal/core/sim"
	"github.com/openleague/livematch/internal/core/store"
	"github.com/openleague/livematch/internal/events"
	"github.com/openleague/livematch/internal/fanout"
	"github.com/openleague/livematch/internal/httpapi"
	"github.com/openleague/livematch/internal/telemetry"
)

// demoClubs seeds out-of-the-box fixtures so a fresh install has something
// to watch. Slugs double as deterministic roster and venue seeds.
var demoClubs = []string{
	"harborview-rovers-fc",
	"eastgate-united",
	"millbrook-athletic",
	"calder-heath-town",
	"redstone-wanderers",
	"northquay-sc",
	"ashford-villa",
	"brockley-rangers-afc",
}

// Run boots the match server process. It wires all shared infrastructure
// (pacing profile, archive, alerting, fanout, HTTP API) and blocks until
// SIGINT/SIGTERM.
func Run() {
	cfg := config.Load()
	telemetry.Init(telemetry.ParseLogLevel(cfg.LogLevel))
	telemetry.Infof("Starting livematch server")

	bus := events.NewBus()
	matches := store.New()

	// ── Pacing profile ─────────────────────────────────────────
	pcfg, err := config.LoadPacing(cfg.PacingConfigPath)
	if err != nil {
		telemetry.Errorf("Pacing config: %v", err)
		os.Exit(1)
	}
	profile := pacing.NewProfile(pcfg)

	// ── Archive ────────────────────────────────────────────────
	arch, err := archive.OpenStore(cfg.ArchivePath)
	if err != nil {
		telemetry.Errorf("Archive: %v", err)
		os.Exit(1)
	}
	archive.NewObserver(bus, arch)

	// ── Alerting ───────────────────────────────────────────────
	notifier := alerting.NewNotifier(cfg.AlertWebhookURL)
	alerting.NewObserver(bus, notifier)
	if notifier.Enabled() {
		telemetry.Infof("Alert webhook enabled")
	}

	// ── Fanout ─────────────────────────────────────────────────
	grace := time.Duration(cfg.RoomGraceSec) * time.Second
	wss := fanout.NewServer(bus, matches, profile, cfg.TickInterval, cfg.ControlToken, grace)

	// ── Runner janitor ─────────────────────────────────────────
	// Completed runners stay resident through the grace window so late
	// joins and snapshot fetches still see them, then the archive takes
	// over as the source of record.
	bus.Subscribe(events.EventMatchComplete, func(e events.Event) error {
		id := e.MatchID
		time.AfterFunc(grace, func() {
			matches.Delete(id)
			telemetry.Debugf("janitor: released completed match %s", id)
		})
		return nil
	})

	// ── HTTP API + WS ──────────────────────────────────────────
	api := httpapi.New(cfg, matches, arch, bus, wss.HandleWS)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      api.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Errorf("HTTP server: %v", err)
			os.Exit(1)
		}
	}()
	telemetry.Infof("Listening on %q  control=%t", addr, cfg.ControlToken != "")

	scheduleDemoFixtures(cfg, matches, bus)

	// ── Shutdown ───────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	telemetry.Infof("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	wss.Close()
	matches.CloseAll()
	arch.Close()

	telemetry.Infof("Shutdown complete  ticks=%d  events=%d  delivered=%d  snapshots=%d  archived=%d",
		telemetry.Metrics.TicksProcessed.Value(),
		telemetry.Metrics.EventsPublished.Value(),
		telemetry.Metrics.EventsDelivered.Value(),
		telemetry.Metrics.SnapshotRequests.Value(),
		telemetry.Metrics.ArchiveWrites.Value(),
	)
}

// scheduleDemoFixtures starts cfg.DemoFixtures matches off the built-in
// club list, kickoffs staggered so the schedule always has overlap.
func scheduleDemoFixtures(cfg *config.Config, matches *store.MatchStore, bus *events.Bus) {
	if cfg.DemoFixtures <= 0 {
		return
	}
	n := cfg.DemoFixtures
	if n > len(demoClubs)/2 {
		n = len(demoClubs) / 2
	}

	eng := sim.NewEngine(cfg.TickStepSec)
	for i := 0; i < n; i++ {
		home, away := demoClubs[2*i], demoClubs[2*i+1]
		kickoff := time.Now().
			Add(time.Duration(cfg.KickoffDelaySec) * time.Second).
			Add(time.Duration(i) * 30 * time.Second)

		fix := sim.NewFixture(uuid.NewString(), home, away, kickoff, cfg.MatchDurationSec)
		r := sim.NewRunner(bus, eng, fix, cfg.TickInterval)
		if !matches.Put(r) {
			r.Close()
			continue
		}
		telemetry.Infof("Fixture %s: %s vs %s, kickoff %s",
			fix.MatchID[:8], fix.Home.Name, fix.Away.Name, kickoff.Format(time.Kitchen))
	}
}
