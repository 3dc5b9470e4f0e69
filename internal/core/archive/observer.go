package archive

import (
	"time"

	"github.com/openleague/livematch/internal/core/sim"
	"github.com/openleague/livematch/internal/events"
	"github.com/openleague/livematch/internal/telemetry"
)

// Observer persists match-complete bundles as they come off the bus.
// Persistence is fire-and-forget: a failed write is logged and counted but
// never interferes with the live path.
type Observer struct {
	store *Store
}

func NewObserver(bus *events.Bus, store *Store) *Observer {
	o := &Observer{store: store}
	bus.Subscribe(events.EventMatchComplete, o.onMatchComplete)
	return o
}

func (o *Observer) onMatchComplete(e events.Event) error {
	fb, ok := e.Payload.(sim.FinalBundle)
	if !ok {
		return nil
	}

	rec := RecordFromFinal(fb, e.Timestamp)
	if _, err := o.store.Insert(rec); err != nil {
		telemetry.Metrics.ArchiveErrors.Inc()
		telemetry.Warnf("archive: persist match %s: %v", fb.State.MatchID, err)
		return nil
	}
	telemetry.Metrics.ArchiveWrites.Inc()
	return nil
}

// archiveFeedCap bounds the recent-event feed on rebuilt snapshots, same
// cap as the live state carries.
const archiveFeedCap = 50

// Snapshot rebuilds the spectator-facing view of an archived match.
// Lineups are not archived; status, clock, scores and the recent feed are,
// which is everything the snapshot endpoint promises.
func (rec MatchRecord) Snapshot() sim.LiveMatchState {
	st := sim.LiveMatchState{
		MatchID:     rec.MatchID,
		Home:        sim.Team{ID: rec.HomeTeamID, Name: rec.HomeTeam},
		Away:        sim.Team{ID: rec.AwayTeamID, Name: rec.AwayTeam},
		Status:      sim.StatusCompleted,
		GameTime:    rec.GameTime,
		MaxTime:     rec.MaxTime,
		CurrentHalf: 1,
		HomeScore:   rec.HomeScore,
		AwayScore:   rec.AwayScore,
		Attendance:  rec.Attendance,
		ErrorFlag:   rec.ErrorFlag,
		ErrorReason: rec.ErrorReason,
	}
	for _, ev := range rec.Log {
		if ev.Type == events.GameEventHalfTime {
			st.CurrentHalf = 2
			break
		}
	}
	for i := len(rec.Log) - 1; i >= 0 && len(st.RecentEvents) < archiveFeedCap; i-- {
		st.RecentEvents = append(st.RecentEvents, rec.Log[i])
	}
	if n := len(rec.Log); n > 0 {
		st.EventSeq = rec.Log[n-1].Seq
	}
	return st
}

// RecordFromFinal flattens a final bundle into its archive row.
func RecordFromFinal(fb sim.FinalBundle, at time.Time) MatchRecord {
	st := fb.State
	return MatchRecord{
		MatchID:     st.MatchID,
		HomeTeamID:  st.Home.ID,
		HomeTeam:    st.Home.Name,
		AwayTeamID:  st.Away.ID,
		AwayTeam:    st.Away.Name,
		HomeScore:   st.HomeScore,
		AwayScore:   st.AwayScore,
		Attendance:  st.Attendance,
		GameTime:    st.GameTime,
		MaxTime:     st.MaxTime,
		CompletedAt: at,
		ErrorFlag:   st.ErrorFlag,
		ErrorReason: st.ErrorReason,
		EventCount:  len(fb.Log),
		Log:         fb.Log,
	}
}
