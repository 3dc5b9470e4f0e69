package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"

	"github.com/openleague/livematch/internal/config"
	"github.com/openleague/livematch/internal/core/archive"
	"github.com/openleague/livematch/internal/core/sim"
	"github.com/openleague/livematch/internal/core/store"
	"github.com/openleague/livematch/internal/events"
)

// API is the HTTP surface: match scheduling, the snapshot endpoint the
// polling fallback relies on, the control mirror for environments without
// a live channel, and the WS upgrade path.
type API struct {
	cfg     *config.Config
	matches *store.MatchStore
	archive *archive.Store
	bus     *events.Bus
	eng     *sim.Engine
	ws      http.HandlerFunc

	started time.Time
	sf      singleflight.Group
}

func New(cfg *config.Config, matches *store.MatchStore, arch *archive.Store, bus *events.Bus, ws http.HandlerFunc) *API {
	return &API{
		cfg:     cfg,
		matches: matches,
		archive: arch,
		bus:     bus,
		eng:     sim.NewEngine(cfg.TickStepSec),
		ws:      ws,
		started: time.Now(),
	}
}

func (a *API) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", a.handleHealth)
	r.Get("/matches", a.handleListMatches)
	r.Post("/matches", a.handleCreateMatch)
	r.Get("/matches/{id}", a.handleGetMatch)
	r.Post("/matches/{id}/control", a.handleControl)
	if a.ws != nil {
		r.Get("/ws", a.ws)
	}
	return r
}
