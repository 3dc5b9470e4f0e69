package fanout

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openleague/livematch/internal/config"
	"github.com/openleague/livematch/internal/core/pacing"
	"github.com/openleague/livematch/internal/core/sim"
	"github.com/openleague/livematch/internal/core/store"
	"github.com/openleague/livematch/internal/events"
)

func newWSServer(t *testing.T, token string) (*events.Bus, *store.MatchStore, string) {
	t.Helper()

	pcfg, err := config.LoadPacing("")
	if err != nil {
		t.Fatalf("load pacing: %v", err)
	}
	bus := events.NewBus()
	matches := store.New()
	srv := NewServer(bus, matches, pacing.NewProfile(pcfg), 10*time.Millisecond, token, 50*time.Millisecond)

	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWS))
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
		matches.CloseAll()
	})

	return bus, matches, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func testRoster(prefix string) sim.Team {
	return sim.Team{
		ID:   prefix,
		Name: strings.ToUpper(prefix),
		Lineup: map[sim.Role]sim.PlayerState{
			sim.RoleGoalkeeper: {ID: prefix + "-gk", Name: prefix + " keeper", Role: sim.RoleGoalkeeper, Fitness: 90},
			sim.RoleDefender:   {ID: prefix + "-def", Name: prefix + " back", Role: sim.RoleDefender, Fitness: 90},
			sim.RoleMidfielder: {ID: prefix + "-mid", Name: prefix + " mid", Role: sim.RoleMidfielder, Fitness: 90},
			sim.RoleForward:    {ID: prefix + "-fwd", Name: prefix + " striker", Role: sim.RoleForward, Fitness: 90},
		},
	}
}

// idleRunner builds a runner whose kickoff is an hour out, so no ticks
// fire during the test.
func idleRunner(bus *events.Bus, id string) *sim.Runner {
	fix := sim.Fixture{
		MatchID:    id,
		Home:       testRoster("h"),
		Away:       testRoster("a"),
		Facilities: sim.Facilities{StadiumLevel: 2, PitchLevel: 1, FanbaseLevel: 2},
		MaxTime:    5400,
		Kickoff:    time.Now().Add(time.Hour),
	}
	return sim.NewRunner(bus, sim.NewEngine(60), fix, time.Hour)
}

// liveRunner kicks off immediately but never ticks past the opening
// bundle, so tests can drive it via control frames.
func liveRunner(bus *events.Bus, id string) *sim.Runner {
	fix := sim.Fixture{
		MatchID:    id,
		Home:       testRoster("h"),
		Away:       testRoster("a"),
		Facilities: sim.Facilities{StadiumLevel: 2, PitchLevel: 1, FanbaseLevel: 2},
		MaxTime:    5400,
		Kickoff:    time.Now(),
	}
	return sim.NewRunner(bus, sim.NewEngine(60), fix, time.Hour)
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) (Envelope, any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	env, payload, err := DecodeFrame(data)
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return env, payload
}

// awaitStatus reads frames until a snapshot with the wanted status shows
// up, skipping interleaved event frames.
func awaitStatus(t *testing.T, conn *websocket.Conn, want sim.Status) sim.LiveMatchState {
	t.Helper()
	for i := 0; i < 20; i++ {
		_, payload := readFrame(t, conn)
		if st, ok := payload.(sim.LiveMatchState); ok && st.Status == want {
			return st
		}
	}
	t.Fatalf("never saw match_update with status %s", want)
	return sim.LiveMatchState{}
}

func TestJoinPushesStatusThenSnapshot(t *testing.T) {
	bus, matches, wsURL := newWSServer(t, "")
	if !matches.Put(idleRunner(bus, "match-1")) {
		t.Fatal("put runner failed")
	}

	conn := dialWS(t, wsURL)
	if err := conn.WriteJSON(ClientFrame{Type: FrameJoin, MatchID: "match-1"}); err != nil {
		t.Fatalf("write join: %v", err)
	}

	env, payload := readFrame(t, conn)
	if env.Type != FrameStatus {
		t.Fatalf("expected first frame %s, got %s", FrameStatus, env.Type)
	}
	su, ok := payload.(events.StatusUpdate)
	if !ok || !su.Connected {
		t.Fatalf("expected connected status, got %#v", payload)
	}

	env, payload = readFrame(t, conn)
	if env.Type != FrameMatchUpdate {
		t.Fatalf("expected second frame %s, got %s", FrameMatchUpdate, env.Type)
	}
	st, ok := payload.(sim.LiveMatchState)
	if !ok {
		t.Fatalf("expected snapshot payload, got %T", payload)
	}
	if st.MatchID != "match-1" || st.Status != sim.StatusScheduled {
		t.Fatalf("unexpected snapshot: id=%s status=%s", st.MatchID, st.Status)
	}
}

func TestJoinUnknownMatch(t *testing.T) {
	_, _, wsURL := newWSServer(t, "")

	conn := dialWS(t, wsURL)
	if err := conn.WriteJSON(ClientFrame{Type: FrameJoin, MatchID: "ghost"}); err != nil {
		t.Fatalf("write join: %v", err)
	}

	env, payload := readFrame(t, conn)
	if env.Type != FrameError {
		t.Fatalf("expected error frame, got %s", env.Type)
	}
	ep := payload.(ErrorPayload)
	if !strings.Contains(ep.Message, "unknown match") {
		t.Fatalf("expected unknown match error, got %q", ep.Message)
	}
}

func TestRoomFanOutPreservesEventOrder(t *testing.T) {
	bus, matches, wsURL := newWSServer(t, "")
	if !matches.Put(idleRunner(bus, "match-1")) {
		t.Fatal("put runner failed")
	}

	conn := dialWS(t, wsURL)
	if err := conn.WriteJSON(ClientFrame{Type: FrameJoin, MatchID: "match-1"}); err != nil {
		t.Fatalf("write join: %v", err)
	}
	readFrame(t, conn) // connection_status
	readFrame(t, conn) // join snapshot

	st := sim.LiveMatchState{MatchID: "match-1", Status: sim.StatusLive, GameTime: 120, EventSeq: 2}
	evs := []events.GameEvent{
		{ID: "match-1-1", MatchID: "match-1", Tick: 120, Seq: 1, Type: events.GameEventPossession, Priority: events.PriorityStandard},
		{ID: "match-1-2", MatchID: "match-1", Tick: 120, Seq: 2, Type: events.GameEventScore, Priority: events.PriorityCritical},
	}
	bus.Publish(events.Event{
		ID:        "tick-1",
		Type:      events.EventTickUpdate,
		MatchID:   "match-1",
		Timestamp: time.Now(),
		Payload:   sim.TickBundle{State: st, Events: evs},
	})

	for want := 1; want <= 2; want++ {
		env, payload := readFrame(t, conn)
		if env.Type != FrameMatchEvent {
			t.Fatalf("expected match_event, got %s", env.Type)
		}
		ge := payload.(events.GameEvent)
		if ge.Seq != want {
			t.Fatalf("expected seq %d, got %d", want, ge.Seq)
		}
	}
	env, payload := readFrame(t, conn)
	if env.Type != FrameMatchUpdate {
		t.Fatalf("expected trailing match_update, got %s", env.Type)
	}
	if got := payload.(sim.LiveMatchState).GameTime; got != 120 {
		t.Fatalf("expected game time 120, got %d", got)
	}
}

func TestControlDisabledWithoutToken(t *testing.T) {
	bus, matches, wsURL := newWSServer(t, "")
	if !matches.Put(idleRunner(bus, "match-1")) {
		t.Fatal("put runner failed")
	}

	conn := dialWS(t, wsURL)
	if err := conn.WriteJSON(ClientFrame{Type: FrameControl, MatchID: "match-1", Action: "pause", Token: "anything"}); err != nil {
		t.Fatalf("write control: %v", err)
	}

	env, payload := readFrame(t, conn)
	if env.Type != FrameError {
		t.Fatalf("expected error frame, got %s", env.Type)
	}
	if msg := payload.(ErrorPayload).Message; !strings.Contains(msg, "disabled") {
		t.Fatalf("expected control disabled error, got %q", msg)
	}
}

func TestControlRejectsBadToken(t *testing.T) {
	bus, matches, wsURL := newWSServer(t, "secret")
	if !matches.Put(idleRunner(bus, "match-1")) {
		t.Fatal("put runner failed")
	}

	conn := dialWS(t, wsURL)
	if err := conn.WriteJSON(ClientFrame{Type: FrameControl, MatchID: "match-1", Action: "pause", Token: "wrong"}); err != nil {
		t.Fatalf("write control: %v", err)
	}

	env, payload := readFrame(t, conn)
	if env.Type != FrameError {
		t.Fatalf("expected error frame, got %s", env.Type)
	}
	if msg := payload.(ErrorPayload).Message; !strings.Contains(msg, "unauthorized") {
		t.Fatalf("expected unauthorized error, got %q", msg)
	}
}

func TestControlPauseResume(t *testing.T) {
	bus, matches, wsURL := newWSServer(t, "secret")
	if !matches.Put(liveRunner(bus, "match-1")) {
		t.Fatal("put runner failed")
	}

	conn := dialWS(t, wsURL)
	if err := conn.WriteJSON(ClientFrame{Type: FrameJoin, MatchID: "match-1"}); err != nil {
		t.Fatalf("write join: %v", err)
	}
	awaitStatus(t, conn, sim.StatusLive)

	if err := conn.WriteJSON(ClientFrame{Type: FrameControl, MatchID: "match-1", Action: "pause", Token: "secret"}); err != nil {
		t.Fatalf("write pause: %v", err)
	}
	awaitStatus(t, conn, sim.StatusPaused)

	if err := conn.WriteJSON(ClientFrame{Type: FrameControl, MatchID: "match-1", Action: "resume", Token: "secret"}); err != nil {
		t.Fatalf("write resume: %v", err)
	}
	awaitStatus(t, conn, sim.StatusLive)
}

func TestLeaveStopsDelivery(t *testing.T) {
	bus, matches, wsURL := newWSServer(t, "")
	if !matches.Put(idleRunner(bus, "match-1")) {
		t.Fatal("put runner failed")
	}

	conn := dialWS(t, wsURL)
	if err := conn.WriteJSON(ClientFrame{Type: FrameJoin, MatchID: "match-1"}); err != nil {
		t.Fatalf("write join: %v", err)
	}
	readFrame(t, conn)
	readFrame(t, conn)

	if err := conn.WriteJSON(ClientFrame{Type: FrameLeave}); err != nil {
		t.Fatalf("write leave: %v", err)
	}
	// leaving twice must not produce an error frame
	if err := conn.WriteJSON(ClientFrame{Type: FrameLeave}); err != nil {
		t.Fatalf("write second leave: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	bus.Publish(events.Event{
		ID:      "tick-after-leave",
		Type:    events.EventTickUpdate,
		MatchID: "match-1",
		Payload: sim.TickBundle{State: sim.LiveMatchState{MatchID: "match-1", Status: sim.StatusLive, GameTime: 60}},
	})

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected no frames after leave, got one")
	}
}

func TestJoinSwitchesRoom(t *testing.T) {
	bus, matches, wsURL := newWSServer(t, "")
	if !matches.Put(idleRunner(bus, "match-1")) {
		t.Fatal("put match-1 failed")
	}
	if !matches.Put(idleRunner(bus, "match-2")) {
		t.Fatal("put match-2 failed")
	}

	conn := dialWS(t, wsURL)
	if err := conn.WriteJSON(ClientFrame{Type: FrameJoin, MatchID: "match-1"}); err != nil {
		t.Fatalf("write first join: %v", err)
	}
	readFrame(t, conn)
	readFrame(t, conn)

	if err := conn.WriteJSON(ClientFrame{Type: FrameJoin, MatchID: "match-2"}); err != nil {
		t.Fatalf("write second join: %v", err)
	}
	readFrame(t, conn)
	readFrame(t, conn)

	// frames for the old room must not arrive anymore
	bus.Publish(events.Event{
		ID:      "old-room-tick",
		Type:    events.EventTickUpdate,
		MatchID: "match-1",
		Payload: sim.TickBundle{State: sim.LiveMatchState{MatchID: "match-1", Status: sim.StatusLive, GameTime: 60}},
	})
	bus.Publish(events.Event{
		ID:      "new-room-tick",
		Type:    events.EventTickUpdate,
		MatchID: "match-2",
		Payload: sim.TickBundle{State: sim.LiveMatchState{MatchID: "match-2", Status: sim.StatusLive, GameTime: 90}},
	})

	env, payload := readFrame(t, conn)
	if env.Type != FrameMatchUpdate || env.MatchID != "match-2" {
		t.Fatalf("expected match-2 update, got %s for %s", env.Type, env.MatchID)
	}
	if got := payload.(sim.LiveMatchState).GameTime; got != 90 {
		t.Fatalf("expected game time 90, got %d", got)
	}
}
