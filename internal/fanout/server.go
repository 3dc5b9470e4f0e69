package fanout

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/openleague/livematch/internal/core/pacing"
	"github.com/openleague/livematch/internal/core/sim"
	"github.com/openleague/livematch/internal/core/store"
	"github.com/openleague/livematch/internal/events"
	"github.com/openleague/livematch/internal/telemetry"
)

const (
	clientSendBuf = 256
	writeDeadline = 5 * time.Second
	pongWait      = 30 * time.Second
	pingInterval  = 20 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// spectator is one WebSocket connection. A connection watches at most one
// match at a time.
type spectator struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	// current room's match id, guarded by Server.mu
	room string
}

// room fans one match out to its members. Tick bundles flow through the
// queue so the delivery pacer can shape drain speed by priority; during
// live play the queue is empty and frames pass through at tick cadence.
type room struct {
	matchID string
	members map[*spectator]struct{}
	queue   chan bundle
	stop    chan struct{}
}

// bundle is one tick's worth of frames, released atomically in order.
type bundle struct {
	priority events.Priority
	frames   [][]byte
}

// Server fans out match updates to spectator WebSocket connections,
// grouped into per-match rooms.
type Server struct {
	matches      *store.MatchStore
	profile      pacing.Profile
	interval     time.Duration
	controlToken string
	grace        time.Duration

	mu      sync.Mutex
	clients map[*spectator]struct{}
	rooms   map[string]*room
}

func NewServer(bus *events.Bus, matches *store.MatchStore, profile pacing.Profile, interval time.Duration, controlToken string, grace time.Duration) *Server {
	s := &Server{
		matches:      matches,
		profile:      profile,
		interval:     interval,
		controlToken: controlToken,
		grace:        grace,
		clients:      make(map[*spectator]struct{}),
		rooms:        make(map[string]*room),
	}
	bus.Subscribe(events.EventTickUpdate, s.onTick)
	bus.Subscribe(events.EventMatchComplete, s.onComplete)
	return s
}

// onTick is called on the runner's goroutine. It serializes the bundle
// once and enqueues it to the match's room, never blocking the publisher.
func (s *Server) onTick(evt events.Event) error {
	tb, ok := evt.Payload.(sim.TickBundle)
	if !ok {
		return nil
	}

	frames := make([][]byte, 0, len(tb.Events)+1)
	for _, ge := range tb.Events {
		data, err := MarshalFrame(FrameMatchEvent, evt.MatchID, ge)
		if err != nil {
			telemetry.Warnf("fanout: marshal event frame: %v", err)
			continue
		}
		frames = append(frames, data)
	}
	data, err := MarshalFrame(FrameMatchUpdate, evt.MatchID, tb.State)
	if err != nil {
		telemetry.Warnf("fanout: marshal update frame: %v", err)
		return nil
	}
	frames = append(frames, data)

	s.enqueue(evt.MatchID, bundle{priority: pacing.BundlePriority(tb.Events), frames: frames})
	return nil
}

// onComplete enqueues the final bundle as critical, then schedules the
// room's teardown after the grace period.
func (s *Server) onComplete(evt events.Event) error {
	fb, ok := evt.Payload.(sim.FinalBundle)
	if !ok {
		return nil
	}

	data, err := MarshalFrame(FrameMatchComplete, evt.MatchID, fb)
	if err != nil {
		telemetry.Warnf("fanout: marshal complete frame: %v", err)
		return nil
	}
	s.enqueue(evt.MatchID, bundle{priority: events.PriorityCritical, frames: [][]byte{data}})

	matchID := evt.MatchID
	time.AfterFunc(s.grace, func() { s.closeRoom(matchID) })
	return nil
}

func (s *Server) enqueue(matchID string, b bundle) {
	s.mu.Lock()
	rm, ok := s.rooms[matchID]
	s.mu.Unlock()
	if !ok {
		// nobody watching
		return
	}

	select {
	case rm.queue <- b:
	default:
		telemetry.Metrics.RoomQueueDrops.Inc()
		telemetry.Warnf("fanout: room %s queue full, dropping bundle", matchID)
	}
}

// runRoom drains the room queue. Between consecutive bundles it enforces
// the pacing delay for the bundle's priority: critical moments play out in
// real time, downtime drains compressed.
func (s *Server) runRoom(rm *room) {
	var last time.Time
	for {
		select {
		case <-rm.stop:
			return
		case b := <-rm.queue:
			delay := s.profile.Delay(b.priority, s.interval)
			if wait := delay - time.Since(last); wait > 0 {
				select {
				case <-time.After(wait):
				case <-rm.stop:
					return
				}
			}
			last = time.Now()
			s.broadcast(rm, b.frames)
		}
	}
}

// broadcast enqueues frames to every member, in order, non-blocking.
func (s *Server) broadcast(rm *room, frames [][]byte) {
	t0 := time.Now()

	s.mu.Lock()
	members := make([]*spectator, 0, len(rm.members))
	for m := range rm.members {
		members = append(members, m)
	}
	s.mu.Unlock()

	for _, m := range members {
		for _, f := range frames {
			select {
			case m.send <- f:
				telemetry.Metrics.EventsDelivered.Inc()
			default:
				telemetry.Metrics.SlowClientDrops.Inc()
				telemetry.Warnf("fanout: dropping frame for slow spectator %s", m.id)
			}
		}
	}
	telemetry.Metrics.BroadcastLatency.Record(time.Since(t0))
}

// HandleWS is the HTTP handler for spectator WebSocket upgrades.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		telemetry.Warnf("fanout: upgrade failed: %v", err)
		return
	}

	c := &spectator{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, clientSendBuf),
		done: make(chan struct{}),
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	telemetry.Metrics.OpenConnections.Inc()

	telemetry.Plainf("fanout: spectator connected [%s]", c.id)

	go s.writePump(c)
	go s.readPump(c)
}

// writePump drains the spectator's send channel and writes to the WS
// connection. It owns the client lifecycle: on exit it removes the client
// from the map (so broadcast never sends to a stale channel) and closes
// the connection.
func (s *Server) writePump(c *spectator) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.removeClient(c)
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				telemetry.Warnf("fanout: write error spectator=%s: %v", c.id, err)
				return
			}
		case <-c.done:
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump parses spectator frames and keeps the connection alive via
// pongs. A spectator that goes silent past the pong deadline is treated
// as having left. On exit it signals writePump via c.done (never closes
// c.send).
func (s *Server) readPump(c *spectator) {
	defer close(c.done)

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var frame ClientFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			s.sendError(c, "", "malformed frame")
			continue
		}

		switch frame.Type {
		case FrameJoin:
			s.handleJoin(c, frame.MatchID)
		case FrameLeave:
			s.handleLeave(c)
		case FrameControl:
			s.handleControl(c, frame)
		default:
			s.sendError(c, frame.MatchID, "unknown frame type: "+frame.Type)
		}
	}
}

// handleJoin moves the spectator into the match's room and pushes one full
// snapshot immediately so the client starts from a consistent view.
// Joining while in another room leaves that room first.
func (s *Server) handleJoin(c *spectator, matchID string) {
	if matchID == "" {
		s.sendError(c, "", "join requires match_id")
		return
	}
	runner, ok := s.matches.Get(matchID)
	if !ok {
		s.sendError(c, matchID, "unknown match: "+matchID)
		return
	}
	snap, err := runner.Snapshot()
	if err != nil {
		s.sendError(c, matchID, "match unavailable, try again")
		return
	}

	s.mu.Lock()
	s.leaveRoomLocked(c)
	rm, ok := s.rooms[matchID]
	if !ok {
		rm = &room{
			matchID: matchID,
			members: make(map[*spectator]struct{}),
			queue:   make(chan bundle, s.profile.QueueCap()),
			stop:    make(chan struct{}),
		}
		s.rooms[matchID] = rm
		go s.runRoom(rm)
	}
	rm.members[c] = struct{}{}
	c.room = matchID
	s.mu.Unlock()

	telemetry.Metrics.RoomJoins.Inc()
	telemetry.Debugf("fanout: spectator %s joined %s", c.id, matchID)

	s.sendDirect(c, FrameStatus, matchID, events.StatusUpdate{Connected: true})
	s.sendDirect(c, FrameMatchUpdate, matchID, snap)
}

// handleLeave is idempotent: leaving while not in a room is a no-op.
func (s *Server) handleLeave(c *spectator) {
	s.mu.Lock()
	left := s.leaveRoomLocked(c)
	s.mu.Unlock()
	if left {
		telemetry.Metrics.RoomLeaves.Inc()
	}
}

// leaveRoomLocked removes the spectator from its room, tearing the room
// down when it empties. Caller holds s.mu.
func (s *Server) leaveRoomLocked(c *spectator) bool {
	if c.room == "" {
		return false
	}
	if rm, ok := s.rooms[c.room]; ok {
		delete(rm.members, c)
		if len(rm.members) == 0 {
			delete(s.rooms, rm.matchID)
			close(rm.stop)
		}
	}
	c.room = ""
	return true
}

func (s *Server) handleControl(c *spectator, frame ClientFrame) {
	telemetry.Metrics.ControlCommands.Inc()

	if s.controlToken == "" {
		s.sendError(c, frame.MatchID, "control disabled")
		return
	}
	if frame.Token != s.controlToken {
		telemetry.Warnf("fanout: rejected control from %s: bad token", c.id)
		s.sendError(c, frame.MatchID, "control unauthorized")
		return
	}
	runner, ok := s.matches.Get(frame.MatchID)
	if !ok {
		s.sendError(c, frame.MatchID, "unknown match: "+frame.MatchID)
		return
	}

	var err error
	switch frame.Action {
	case "pause":
		err = runner.Pause()
	case "resume":
		err = runner.Resume()
	default:
		s.sendError(c, frame.MatchID, "unknown control action: "+frame.Action)
		return
	}
	if err != nil {
		s.sendError(c, frame.MatchID, err.Error())
	}
}

func (s *Server) sendDirect(c *spectator, frameType, matchID string, payload any) {
	data, err := MarshalFrame(frameType, matchID, payload)
	if err != nil {
		telemetry.Warnf("fanout: marshal %s: %v", frameType, err)
		return
	}
	select {
	case c.send <- data:
	default:
		telemetry.Metrics.SlowClientDrops.Inc()
	}
}

func (s *Server) sendError(c *spectator, matchID, msg string) {
	s.sendDirect(c, FrameError, matchID, ErrorPayload{Message: msg})
}

// closeRoom tears a room down regardless of membership, for the
// post-completion grace expiry.
func (s *Server) closeRoom(matchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rm, ok := s.rooms[matchID]
	if !ok {
		return
	}
	for m := range rm.members {
		m.room = ""
	}
	delete(s.rooms, matchID)
	close(rm.stop)
}

func (s *Server) removeClient(c *spectator) {
	s.mu.Lock()
	s.leaveRoomLocked(c)
	delete(s.clients, c)
	s.mu.Unlock()
	telemetry.Metrics.OpenConnections.Dec()
	telemetry.Plainf("fanout: spectator disconnected [%s]", c.id)
}

// Close drops every connection; pumps clean up as reads fail.
func (s *Server) Close() {
	s.mu.Lock()
	clients := make([]*spectator, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.conn.Close()
	}
}
