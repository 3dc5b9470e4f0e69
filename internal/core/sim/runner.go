package sim

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openleague/livematch/internal/core/rng"
	"github.com/openleague/livematch/internal/events"
	"github.com/openleague/livematch/internal/telemetry"
)

var (
	ErrRunnerBusy   = errors.New("match runner busy")
	ErrRunnerClosed = errors.New("match runner closed")
)

// Runner drives one match. All state mutations are serialized through an
// inbox channel drained by a single goroutine, so no mutexes are needed on
// any field. Other goroutines interact via Send, the control methods and
// Snapshot.
//
// One runner per match; runners share nothing, so one match failing can
// never touch another.
type Runner struct {
	matchID string
	bus     *events.Bus
	eng     *Engine
	mc      *rng.MatchContext

	interval time.Duration

	// Owned by the run goroutine.
	st      LiveMatchState
	fullLog []events.GameEvent

	inbox chan func()
	quit  chan struct{} // closed by Close
	stop  chan struct{} // closed when run exits

	closeOnce sync.Once
}

func NewRunner(bus *events.Bus, eng *Engine, fix Fixture, interval time.Duration) *Runner {
	r := &Runner{
		matchID:  fix.MatchID,
		bus:      bus,
		eng:      eng,
		mc:       rng.NewMatchContext(fix.MatchID, fix.Home.ID, fix.Away.ID, fix.Kickoff),
		interval: interval,
		st:       NewMatchState(fix),
		inbox:    make(chan func(), 256),
		quit:     make(chan struct{}),
		stop:     make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Runner) MatchID() string { return r.matchID }

// run is the match's event loop: the kickoff timer, the tick ticker and
// every closure sent via Send execute here, one at a time.
func (r *Runner) run() {
	defer close(r.stop)

	kickoff := time.NewTimer(time.Until(r.st.Kickoff))
	defer kickoff.Stop()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.quit:
			return
		case fn := <-r.inbox:
			fn()
		case <-kickoff.C:
			r.start()
		case <-ticker.C:
			r.tick()
		}
	}
}

// Send enqueues a closure to run on the match's goroutine.
// Non-blocking: reports false and drops the closure if the inbox is full
// or the runner has been closed, preventing a stuck or torn-down match
// from blocking upstream processing. Safe to call concurrently with Close:
// late callers holding a stale runner pointer get false, never a panic.
func (r *Runner) Send(fn func()) bool {
	select {
	case <-r.stop:
		return false
	default:
	}
	select {
	case r.inbox <- fn:
		return true
	case <-r.stop:
		return false
	default:
		telemetry.Metrics.InboxOverflows.Inc()
		telemetry.Warnf("match %s: inbox full (cap=%d), dropping command", r.matchID, cap(r.inbox))
		return false
	}
}

// Close shuts down the match's goroutine and waits for it to exit.
// Idempotent, and concurrent Send/Snapshot/control calls remain safe.
func (r *Runner) Close() {
	r.closeOnce.Do(func() { close(r.quit) })
	<-r.stop
}

func (r *Runner) start() {
	if r.st.Status != StatusScheduled {
		return
	}
	st, evs, err := r.eng.Start(r.mc, r.st)
	if err != nil {
		r.fault(err)
		return
	}
	r.st = st
	r.fullLog = append(r.fullLog, evs...)
	telemetry.Infof("match %s: kickoff, %s vs %s", r.matchID, st.Home.Name, st.Away.Name)
	r.publishBundle(evs)
}

func (r *Runner) tick() {
	if r.st.Status != StatusLive {
		return
	}
	t0 := time.Now()
	st, evs, err := r.eng.Tick(r.mc, r.st)
	if err != nil {
		if errors.Is(err, ErrMatchCompleted) {
			return
		}
		r.fault(err)
		return
	}
	r.st = st
	r.fullLog = append(r.fullLog, evs...)

	telemetry.Metrics.TicksProcessed.Inc()
	r.publishBundle(evs)
	if r.st.Status == StatusCompleted {
		r.publishFinal()
	}
	telemetry.Metrics.TickLatency.Record(time.Since(t0))
}

// fault handles an illegal transition surfaced by the engine: the match is
// force-completed with the error flag set and the failure is published for
// the alerting layer.
func (r *Runner) fault(err error) {
	telemetry.Errorf("match %s: %v, force-completing", r.matchID, err)
	st, ev := r.eng.ForceComplete(r.st, err.Error())
	r.st = st
	r.fullLog = append(r.fullLog, ev)

	r.publishBundle([]events.GameEvent{ev})
	r.bus.Publish(events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventEngineFault,
		MatchID:   r.matchID,
		Timestamp: time.Now(),
		Payload:   events.EngineFault{MatchID: r.matchID, Reason: err.Error()},
	})
	r.publishFinal()
}

// publishBundle emits the post-tick snapshot bundle plus one envelope per
// generated game event.
func (r *Runner) publishBundle(evs []events.GameEvent) {
	r.bus.Publish(events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTickUpdate,
		MatchID:   r.matchID,
		Timestamp: time.Now(),
		Payload:   TickBundle{State: r.st.Clone(), Events: evs},
	})
	for _, ge := range evs {
		r.bus.Publish(events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventGameEvent,
			MatchID:   r.matchID,
			Timestamp: time.Now(),
			Payload:   ge,
		})
	}
}

func (r *Runner) publishFinal() {
	r.bus.Publish(events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventMatchComplete,
		MatchID:   r.matchID,
		Timestamp: time.Now(),
		Payload: FinalBundle{
			State: r.st.Clone(),
			Log:   append([]events.GameEvent(nil), r.fullLog...),
		},
	})
}

// Pause freezes the match clock. Returns the engine's error when the match
// is not in a pausable state.
func (r *Runner) Pause() error {
	return r.control(func() (LiveMatchState, error) { return r.eng.Pause(r.st) }, "paused")
}

// Resume continues a paused match. No ticks are replayed or skipped; the
// clock picks up exactly where it froze.
func (r *Runner) Resume() error {
	return r.control(func() (LiveMatchState, error) { return r.eng.Resume(r.st) }, "resumed")
}

func (r *Runner) control(apply func() (LiveMatchState, error), verb string) error {
	reply := make(chan error, 1)
	sent := r.Send(func() {
		st, err := apply()
		if err == nil {
			r.st = st
			telemetry.Infof("match %s: %s at %d'", r.matchID, verb, st.GameTime/60)
			// status-only bundle so spectators see the change immediately
			r.publishBundle(nil)
		}
		reply <- err
	})
	if !sent {
		return r.rejectErr()
	}
	select {
	case err := <-reply:
		return err
	case <-r.stop:
		return ErrRunnerClosed
	}
}

// rejectErr reports why a Send was refused.
func (r *Runner) rejectErr() error {
	select {
	case <-r.stop:
		return ErrRunnerClosed
	default:
		return ErrRunnerBusy
	}
}

// Snapshot returns a deep copy of the current state.
func (r *Runner) Snapshot() (LiveMatchState, error) {
	reply := make(chan LiveMatchState, 1)
	sent := r.Send(func() { reply <- r.st.Clone() })
	if !sent {
		return LiveMatchState{}, r.rejectErr()
	}
	select {
	case st := <-reply:
		return st, nil
	case <-r.stop:
		return LiveMatchState{}, ErrRunnerClosed
	}
}
