package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/openleague/livematch/internal/core/sim"
	"github.com/openleague/livematch/internal/telemetry"
)

var errNotFound = errors.New("match not found")

// snapshotResponse is the wire shape the poller decodes; the state field
// name is part of the fallback contract.
type snapshotResponse struct {
	State  sim.LiveMatchState `json:"state"`
	Source string             `json:"source"` // "live" or "archive"
}

type matchSummary struct {
	MatchID   string     `json:"match_id"`
	Home      string     `json:"home"`
	Away      string     `json:"away"`
	Status    sim.Status `json:"status"`
	GameTime  int        `json:"game_time"`
	HomeScore int        `json:"home_score"`
	AwayScore int        `json:"away_score"`
	Source    string     `json:"source"`
}

type createMatchRequest struct {
	HomeTeamID   string `json:"home_team_id"`
	AwayTeamID   string `json:"away_team_id"`
	KickoffInSec *int   `json:"kickoff_in_sec,omitempty"`
	DurationSec  *int   `json:"duration_sec,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status        string `json:"status"`
		ActiveMatches int    `json:"active_matches"`
		UptimeSec     int64  `json:"uptime_sec"`
	}{"ok", a.matches.Count(), int64(time.Since(a.started).Seconds())})
}

func (a *API) handleListMatches(w http.ResponseWriter, r *http.Request) {
	out := make([]matchSummary, 0, 16)
	seen := make(map[string]bool)

	for _, runner := range a.matches.All() {
		st, err := runner.Snapshot()
		if err != nil {
			continue
		}
		seen[st.MatchID] = true
		out = append(out, matchSummary{
			MatchID:   st.MatchID,
			Home:      st.Home.Name,
			Away:      st.Away.Name,
			Status:    st.Status,
			GameTime:  st.GameTime,
			HomeScore: st.HomeScore,
			AwayScore: st.AwayScore,
			Source:    "live",
		})
	}

	if a.archive != nil {
		recs, err := a.archive.Recent(25)
		if err != nil {
			telemetry.Warnf("httpapi: list archive: %v", err)
		}
		for _, rec := range recs {
			// a completed match can briefly sit in both stores
			if seen[rec.MatchID] {
				continue
			}
			out = append(out, matchSummary{
				MatchID:   rec.MatchID,
				Home:      rec.HomeTeam,
				Away:      rec.AwayTeam,
				Status:    sim.StatusCompleted,
				GameTime:  rec.GameTime,
				HomeScore: rec.HomeScore,
				AwayScore: rec.AwayScore,
				Source:    "archive",
			})
		}
	}

	writeJSON(w, http.StatusOK, struct {
		Matches []matchSummary `json:"matches"`
	}{out})
}

func (a *API) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	var req createMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.HomeTeamID == "" || req.AwayTeamID == "" {
		http.Error(w, "home_team_id and away_team_id are required", http.StatusBadRequest)
		return
	}
	if req.HomeTeamID == req.AwayTeamID {
		http.Error(w, "a team cannot play itself", http.StatusBadRequest)
		return
	}

	kickoffIn := a.cfg.KickoffDelaySec
	if req.KickoffInSec != nil {
		kickoffIn = *req.KickoffInSec
	}
	if kickoffIn < 0 {
		http.Error(w, "kickoff_in_sec must not be negative", http.StatusBadRequest)
		return
	}
	duration := a.cfg.MatchDurationSec
	if req.DurationSec != nil {
		duration = *req.DurationSec
	}
	if duration < a.cfg.TickStepSec {
		http.Error(w, "duration_sec shorter than one tick step", http.StatusBadRequest)
		return
	}

	matchID := uuid.NewString()
	fix := sim.NewFixture(matchID, req.HomeTeamID, req.AwayTeamID,
		time.Now().Add(time.Duration(kickoffIn)*time.Second), duration)
	runner := sim.NewRunner(a.bus, a.eng, fix, a.cfg.TickInterval)
	if !a.matches.Put(runner) {
		runner.Close()
		http.Error(w, "match id collision", http.StatusConflict)
		return
	}

	telemetry.Infof("httpapi: scheduled %s, %s vs %s, kickoff in %ds",
		matchID, fix.Home.Name, fix.Away.Name, kickoffIn)

	st, err := runner.Snapshot()
	if err != nil {
		http.Error(w, "match scheduled but snapshot unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, snapshotResponse{State: st, Source: "live"})
}

func (a *API) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	telemetry.Metrics.SnapshotRequests.Inc()
	t0 := time.Now()

	// concurrent pollers of the same match collapse into one snapshot
	v, err, _ := a.sf.Do(id, func() (any, error) {
		if runner, ok := a.matches.Get(id); ok {
			st, err := runner.Snapshot()
			if err == nil {
				return snapshotResponse{State: st, Source: "live"}, nil
			}
			// A runner torn down between Get and Snapshot falls through
			// to the archive; anything else is a real failure.
			if !errors.Is(err, sim.ErrRunnerClosed) {
				return nil, err
			}
		}
		if a.archive != nil {
			rec, found, err := a.archive.Get(id)
			if err != nil {
				return nil, err
			}
			if found {
				return snapshotResponse{State: rec.Snapshot(), Source: "archive"}, nil
			}
		}
		return nil, errNotFound
	})
	telemetry.Metrics.SnapshotLatency.Record(time.Since(t0))

	if errors.Is(err, errNotFound) {
		http.Error(w, "unknown match: "+id, http.StatusNotFound)
		return
	}
	if err != nil {
		telemetry.Warnf("httpapi: snapshot %s: %v", id, err)
		http.Error(w, "snapshot unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleControl mirrors the WS control frame for clients without a live
// channel. Auth first, then existence, so probing ids requires the token.
func (a *API) handleControl(w http.ResponseWriter, r *http.Request) {
	telemetry.Metrics.ControlCommands.Inc()

	if a.cfg.ControlToken == "" {
		http.Error(w, "control surface disabled", http.StatusForbidden)
		return
	}
	if r.Header.Get("X-Control-Token") != a.cfg.ControlToken {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id := chi.URLParam(r, "id")
	runner, ok := a.matches.Get(id)
	if !ok {
		http.Error(w, "unknown match: "+id, http.StatusNotFound)
		return
	}

	var body struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var err error
	switch body.Action {
	case "pause":
		err = runner.Pause()
	case "resume":
		err = runner.Resume()
	default:
		http.Error(w, "unknown action: "+body.Action, http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	st, snapErr := runner.Snapshot()
	if snapErr != nil {
		writeJSON(w, http.StatusOK, struct {
			OK bool `json:"ok"`
		}{true})
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse{State: st, Source: "live"})
}
