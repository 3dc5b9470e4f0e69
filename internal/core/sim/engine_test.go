package sim

import (
	"errors"
	"testing"
	"time"

	"github.com/openleague/livematch/internal/core/rng"
	"github.com/openleague/livematch/internal/events"
)

func testTeam(id, name string) Team {
	return Team{
		ID:   id,
		Name: name,
		Lineup: map[Role]PlayerState{
			RoleGoalkeeper: {ID: id + "-gk", Name: name + " Keeper", Role: RoleGoalkeeper, Fitness: 95},
			RoleDefender:   {ID: id + "-def", Name: name + " Back", Role: RoleDefender, Fitness: 90},
			RoleMidfielder: {ID: id + "-mid", Name: name + " Engine", Role: RoleMidfielder, Fitness: 92},
			RoleForward:    {ID: id + "-fwd", Name: name + " Striker", Role: RoleForward, Fitness: 94},
		},
	}
}

func testFixture() Fixture {
	return Fixture{
		MatchID:    "m-100",
		Home:       testTeam("t-h", "Harbor"),
		Away:       testTeam("t-a", "Summit"),
		Facilities: Facilities{StadiumLevel: 3, PitchLevel: 2, FanbaseLevel: 4},
		MaxTime:    5400,
		Kickoff:    time.Date(2026, 8, 22, 19, 0, 0, 0, time.UTC),
	}
}

// runMatch plays a fixture to completion, returning the final state and the
// full event log.
func runMatch(t *testing.T, fix Fixture, stepSec int) (LiveMatchState, []events.GameEvent) {
	t.Helper()
	eng := NewEngine(stepSec)
	mc := rng.NewMatchContext(fix.MatchID, fix.Home.ID, fix.Away.ID, fix.Kickoff)

	st, log, err := eng.Start(mc, NewMatchState(fix))
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	for i := 0; st.Status != StatusCompleted; i++ {
		if i > 10000 {
			t.Fatalf("match did not complete after %d ticks", i)
		}
		var evs []events.GameEvent
		st, evs, err = eng.Tick(mc, st)
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		log = append(log, evs...)
	}
	return st, log
}

func TestStartTransitionsToLive(t *testing.T) {
	fix := testFixture()
	eng := NewEngine(60)
	mc := rng.NewMatchContext(fix.MatchID, fix.Home.ID, fix.Away.ID, fix.Kickoff)

	st, evs, err := eng.Start(mc, NewMatchState(fix))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if st.Status != StatusLive {
		t.Fatalf("expected live after kickoff, got %s", st.Status)
	}
	if st.Attendance <= 0 {
		t.Fatalf("expected positive attendance, got %d", st.Attendance)
	}
	if st.Possession != st.Home.ID && st.Possession != st.Away.ID {
		t.Fatalf("expected opening possession assigned, got %q", st.Possession)
	}
	low, high := fix.MaxTime*48/100, fix.MaxTime*52/100
	if st.HalfTimeAt < low || st.HalfTimeAt > high {
		t.Fatalf("half-time at %d outside [%d,%d]", st.HalfTimeAt, low, high)
	}
	if len(evs) != 2 || evs[0].Type != events.GameEventKickoff || evs[1].Type != events.GameEventEconomic {
		t.Fatalf("expected kickoff + gate receipt events, got %v", evs)
	}
	if evs[1].AmountCents <= 0 {
		t.Fatalf("expected gate receipts amount, got %d", evs[1].AmountCents)
	}
}

func TestStartRequiresScheduled(t *testing.T) {
	fix := testFixture()
	eng := NewEngine(60)
	mc := rng.NewMatchContext(fix.MatchID, fix.Home.ID, fix.Away.ID, fix.Kickoff)

	st := NewMatchState(fix)
	st.Status = StatusLive
	if _, _, err := eng.Start(mc, st); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
}

func TestGameTimeMonotonicWhileLive(t *testing.T) {
	fix := testFixture()
	eng := NewEngine(60)
	mc := rng.NewMatchContext(fix.MatchID, fix.Home.ID, fix.Away.ID, fix.Kickoff)

	st, _, err := eng.Start(mc, NewMatchState(fix))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	prev := st.GameTime
	for i := 0; st.Status != StatusCompleted; i++ {
		if i > 10000 {
			t.Fatalf("match did not complete")
		}
		next, _, err := eng.Tick(mc, st)
		if err != nil {
			t.Fatalf("tick: %v", err)
		}
		if next.GameTime < prev {
			t.Fatalf("clock moved backwards: %d -> %d", prev, next.GameTime)
		}
		prev = next.GameTime
		st = next
	}
	if st.GameTime != fix.MaxTime {
		t.Fatalf("expected final clock %d, got %d", fix.MaxTime, st.GameTime)
	}
}

func TestHalfTimeExactlyOnceInsideWindow(t *testing.T) {
	fix := testFixture()
	_, log := runMatch(t, fix, 60)

	var halfTimes []events.GameEvent
	for _, ev := range log {
		if ev.Type == events.GameEventHalfTime {
			halfTimes = append(halfTimes, ev)
		}
	}
	if len(halfTimes) != 1 {
		t.Fatalf("expected exactly one half-time, got %d", len(halfTimes))
	}
	low, high := fix.MaxTime*48/100, fix.MaxTime*52/100
	if tick := halfTimes[0].Tick; tick < low || tick > high {
		t.Fatalf("half-time at %d outside window [%d,%d]", tick, low, high)
	}
}

func TestSecondHalfAfterInterval(t *testing.T) {
	fix := testFixture()
	st, _ := runMatch(t, fix, 60)
	if st.CurrentHalf != 2 {
		t.Fatalf("expected match to finish in half 2, got %d", st.CurrentHalf)
	}
	if !st.HalfTimeDone {
		t.Fatalf("expected half-time marked done")
	}
}

func TestFullTimeExactlyOnce(t *testing.T) {
	fix := testFixture()
	st, log := runMatch(t, fix, 60)

	fullTimes := 0
	for _, ev := range log {
		if ev.Type == events.GameEventFullTime {
			fullTimes++
		}
	}
	if fullTimes != 1 {
		t.Fatalf("expected exactly one full-time event, got %d", fullTimes)
	}
	if st.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", st.Status)
	}
}

func TestTickAfterCompletionFails(t *testing.T) {
	fix := testFixture()
	st, _ := runMatch(t, fix, 60)

	eng := NewEngine(60)
	mc := rng.NewMatchContext(fix.MatchID, fix.Home.ID, fix.Away.ID, fix.Kickoff)
	after, evs, err := eng.Tick(mc, st)
	if !errors.Is(err, ErrMatchCompleted) {
		t.Fatalf("expected ErrMatchCompleted, got %v", err)
	}
	if len(evs) != 0 {
		t.Fatalf("expected no events after completion, got %d", len(evs))
	}
	if after.GameTime != st.GameTime {
		t.Fatalf("completed clock moved: %d -> %d", st.GameTime, after.GameTime)
	}
}

func TestTickPausedIsFrozen(t *testing.T) {
	fix := testFixture()
	eng := NewEngine(60)
	mc := rng.NewMatchContext(fix.MatchID, fix.Home.ID, fix.Away.ID, fix.Kickoff)

	st, _, err := eng.Start(mc, NewMatchState(fix))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	st, err = eng.Pause(st)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}

	for i := 0; i < 5; i++ {
		next, evs, err := eng.Tick(mc, st)
		if err != nil {
			t.Fatalf("tick while paused: %v", err)
		}
		if next.GameTime != st.GameTime {
			t.Fatalf("paused clock advanced: %d -> %d", st.GameTime, next.GameTime)
		}
		if len(evs) != 0 {
			t.Fatalf("paused tick generated events")
		}
	}
}

func TestPauseResumeTransitions(t *testing.T) {
	fix := testFixture()
	eng := NewEngine(60)
	mc := rng.NewMatchContext(fix.MatchID, fix.Home.ID, fix.Away.ID, fix.Kickoff)

	st, _, err := eng.Start(mc, NewMatchState(fix))
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := eng.Resume(st); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("resume live: expected ErrIllegalTransition, got %v", err)
	}

	st, err = eng.Pause(st)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := eng.Pause(st); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("pause paused: expected ErrIllegalTransition, got %v", err)
	}

	st, err = eng.Resume(st)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if st.Status != StatusLive {
		t.Fatalf("expected live after resume, got %s", st.Status)
	}

	st.Status = StatusCompleted
	if _, err := eng.Resume(st); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("resume completed: expected ErrIllegalTransition, got %v", err)
	}
}

func TestIdenticalFixturesReplayIdentically(t *testing.T) {
	fix := testFixture()
	stA, logA := runMatch(t, fix, 60)
	stB, logB := runMatch(t, fix, 60)

	if stA.HomeScore != stB.HomeScore || stA.AwayScore != stB.AwayScore {
		t.Fatalf("scores diverged: %d-%d vs %d-%d", stA.HomeScore, stA.AwayScore, stB.HomeScore, stB.AwayScore)
	}
	if len(logA) != len(logB) {
		t.Fatalf("event counts diverged: %d vs %d", len(logA), len(logB))
	}
	for i := range logA {
		a, b := logA[i], logB[i]
		if a.ID != b.ID || a.Type != b.Type || a.Tick != b.Tick || a.Description != b.Description {
			t.Fatalf("event %d diverged: %+v vs %+v", i, a, b)
		}
	}
}

func TestEventOrderingStrict(t *testing.T) {
	fix := testFixture()
	_, log := runMatch(t, fix, 60)

	if len(log) == 0 {
		t.Fatalf("expected events from a full match")
	}
	for i := 1; i < len(log); i++ {
		if events.Compare(log[i-1], log[i]) >= 0 {
			t.Fatalf("events out of order at %d: (%d,%d) then (%d,%d)",
				i, log[i-1].Tick, log[i-1].Seq, log[i].Tick, log[i].Seq)
		}
		if log[i].Seq != log[i-1].Seq+1 {
			t.Fatalf("seq gap at %d: %d then %d", i, log[i-1].Seq, log[i].Seq)
		}
	}
}

func TestScoreEventsCarryRunningScore(t *testing.T) {
	fix := testFixture()
	st, log := runMatch(t, fix, 60)

	home, away := 0, 0
	for _, ev := range log {
		if ev.Type != events.GameEventScore {
			continue
		}
		if ev.TeamID == fix.Home.ID {
			home++
		} else {
			away++
		}
		if ev.HomeScore != home || ev.AwayScore != away {
			t.Fatalf("score event carried %d-%d, expected %d-%d", ev.HomeScore, ev.AwayScore, home, away)
		}
	}
	if st.HomeScore != home || st.AwayScore != away {
		t.Fatalf("final score %d-%d does not match events %d-%d", st.HomeScore, st.AwayScore, home, away)
	}
}

func TestRecentEventsCapped(t *testing.T) {
	fix := testFixture()
	st, log := runMatch(t, fix, 60)

	if len(st.RecentEvents) > maxRecentEvents {
		t.Fatalf("recent log exceeded cap: %d", len(st.RecentEvents))
	}
	if len(log) <= maxRecentEvents {
		t.Fatalf("expected a full match to outgrow the cap, got %d events", len(log))
	}
	// most recent first
	if st.RecentEvents[0].Type != events.GameEventFullTime {
		t.Fatalf("expected full-time at head of recent log, got %s", st.RecentEvents[0].Type)
	}
}

func TestCorruptStateIsIllegal(t *testing.T) {
	fix := testFixture()
	eng := NewEngine(60)
	mc := rng.NewMatchContext(fix.MatchID, fix.Home.ID, fix.Away.ID, fix.Kickoff)

	corruptions := []func(*LiveMatchState){
		func(st *LiveMatchState) { st.GameTime = -10 },
		func(st *LiveMatchState) { st.Status = Status("warming-up") },
		func(st *LiveMatchState) { st.MaxTime = 0 },
		func(st *LiveMatchState) { st.CurrentHalf = 3 },
		func(st *LiveMatchState) { st.HomeScore = -1 },
		func(st *LiveMatchState) { st.Home.Lineup = nil },
	}
	for i, corrupt := range corruptions {
		st := NewMatchState(fix)
		st.Status = StatusLive
		corrupt(&st)
		if _, _, err := eng.Tick(mc, st); !errors.Is(err, ErrIllegalTransition) {
			t.Fatalf("corruption %d: expected ErrIllegalTransition, got %v", i, err)
		}
	}
}

func TestForceCompleteSetsErrorFlag(t *testing.T) {
	fix := testFixture()
	eng := NewEngine(60)
	st := NewMatchState(fix)
	st.Status = StatusLive

	st, ev := eng.ForceComplete(st, "game clock -10 outside [0,5400]")
	if st.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", st.Status)
	}
	if !st.ErrorFlag || st.ErrorReason == "" {
		t.Fatalf("expected error flag and reason, got %+v", st)
	}
	if ev.Type != events.GameEventFullTime {
		t.Fatalf("expected terminating full-time event, got %s", ev.Type)
	}
}

func TestCloneIsDeep(t *testing.T) {
	fix := testFixture()
	st := NewMatchState(fix)
	st.RecentEvents = []events.GameEvent{{ID: "m-100-1"}}

	cp := st.Clone()
	lineup := cp.Home.Lineup
	p := lineup[RoleForward]
	p.Goals = 99
	lineup[RoleForward] = p
	cp.RecentEvents[0].ID = "mutated"

	if st.Home.Lineup[RoleForward].Goals == 99 {
		t.Fatalf("clone shares lineup map")
	}
	if st.RecentEvents[0].ID == "mutated" {
		t.Fatalf("clone shares recent events slice")
	}
}
