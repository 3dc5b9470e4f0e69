package reconcile

import (
	"sync"

	"github.com/openleague/livematch/internal/core/sim"
	"github.com/openleague/livematch/internal/events"
	"github.com/openleague/livematch/internal/telemetry"
)

// maxFeed caps the locally kept event feed, mirroring the server-side
// recent log.
const maxFeed = 50

// Reconciler folds authoritative snapshots and incremental events into the
// client's local view. Snapshots replace state wholesale; events that
// predate the last snapshot's clock are stale echoes of a reconnect or
// poll race and are discarded. The displayed clock never moves backwards
// for a given match.
type Reconciler struct {
	mu      sync.Mutex
	has     bool
	st      sim.LiveMatchState
	feed    []events.GameEvent // most recent first
	lastSeq int
	floor   int // game time of the last applied snapshot
}

func New() *Reconciler {
	return &Reconciler{}
}

// ApplySnapshot replaces the local state with the server's. A snapshot for
// a new match resets the view; a same-match snapshot older than the
// current clock is ignored so the display never regresses.
func (r *Reconciler) ApplySnapshot(st sim.LiveMatchState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.has || st.MatchID != r.st.MatchID {
		r.has = true
		r.st = st.Clone()
		r.feed = append([]events.GameEvent(nil), st.RecentEvents...)
		r.lastSeq = st.EventSeq
		r.floor = st.GameTime
		return
	}

	if st.GameTime < r.st.GameTime {
		telemetry.Debugf("reconcile: ignoring regressive snapshot for %s (%d < %d)",
			st.MatchID, st.GameTime, r.st.GameTime)
		return
	}

	// fold in any events the feed missed, e.g. while polling
	var missed []events.GameEvent
	for _, ev := range st.RecentEvents {
		if ev.Seq > r.lastSeq {
			missed = append(missed, ev)
		}
	}
	r.st = st.Clone()
	if len(missed) > 0 {
		r.feed = append(missed, r.feed...)
		if len(r.feed) > maxFeed {
			r.feed = r.feed[:maxFeed]
		}
	}
	r.lastSeq = st.EventSeq
	r.floor = st.GameTime
}

// ApplyEvent merges one incremental event. Returns false when the event
// was discarded as stale, duplicate, or not attributable to the current
// match.
func (r *Reconciler) ApplyEvent(ev events.GameEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.has || ev.MatchID != r.st.MatchID {
		telemetry.Debugf("reconcile: dropping event %s for unknown match", ev.ID)
		return false
	}
	if ev.Tick < r.floor {
		telemetry.Metrics.StaleEventsDiscarded.Inc()
		telemetry.Debugf("reconcile: stale event %s (tick %d < floor %d)", ev.ID, ev.Tick, r.floor)
		return false
	}
	if ev.Seq <= r.lastSeq {
		return false
	}

	r.feed = append([]events.GameEvent{ev}, r.feed...)
	if len(r.feed) > maxFeed {
		r.feed = r.feed[:maxFeed]
	}
	r.lastSeq = ev.Seq
	return true
}

// Ready reports whether a snapshot has been applied yet.
func (r *Reconciler) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.has
}

// MatchID returns the match currently in view, empty before the first
// snapshot.
func (r *Reconciler) MatchID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.MatchID
}

// GameTime returns the displayed clock.
func (r *Reconciler) GameTime() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.GameTime
}

// View returns a copy of the current state with the local event feed as
// its recent log, safe for rendering.
func (r *Reconciler) View() (sim.LiveMatchState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.has {
		return sim.LiveMatchState{}, false
	}
	out := r.st.Clone()
	out.RecentEvents = append([]events.GameEvent(nil), r.feed...)
	return out, true
}
