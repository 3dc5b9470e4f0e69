package fanout

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/openleague/livematch/internal/core/sim"
	"github.com/openleague/livematch/internal/events"
	"github.com/openleague/livematch/internal/reconcile"
	"github.com/openleague/livematch/internal/telemetry"
)

const (
	minBackoff = 1 * time.Second
	maxBackoff = 30 * time.Second
)

var (
	ErrConnectionFailed = errors.New("real-time channel unavailable")
	ErrNotConnected     = errors.New("not connected")
)

// ClientConfig controls the spectator-side connection manager.
type ClientConfig struct {
	WSURL        string
	HTTPURL      string
	Match        string
	PollInterval time.Duration
	// MaxAttempts is the number of consecutive failed sessions before the
	// client falls back to HTTP polling. Zero disables the fallback.
	MaxAttempts int
}

// Client maintains the real-time channel to the match server. Every
// received snapshot and event feeds the reconciler; connection status
// transitions go out on the local bus so the UI can show degraded mode.
// While the channel is down past MaxAttempts the client polls the
// snapshot endpoint, and a successful reconnect stops the poller.
type Client struct {
	cfg ClientConfig
	bus *events.Bus
	rec *reconcile.Reconciler

	mu         sync.Mutex
	conn       *websocket.Conn
	match      string
	pollCancel context.CancelFunc
}

func NewClient(cfg ClientConfig, bus *events.Bus, rec *reconcile.Reconciler) *Client {
	return &Client{cfg: cfg, bus: bus, rec: rec, match: cfg.Match}
}

// Run dials and re-dials the server until ctx is cancelled. Reconnects
// use exponential backoff; a session that survived over a minute resets
// the attempt counter.
func (c *Client) Run(ctx context.Context) error {
	defer c.stopPolling()

	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		connStart := time.Now()
		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected && time.Since(connStart) > time.Minute {
			attempt = 0
		}

		attempt++
		backoff := time.Duration(float64(minBackoff) * math.Pow(2, float64(min(attempt-1, 5))))
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		telemetry.Warnf("client: connection lost (attempt %d): %v, retrying in %s", attempt, err, backoff)

		if c.cfg.MaxAttempts > 0 && attempt >= c.cfg.MaxAttempts {
			c.startPolling(ctx)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// session runs one connection from dial to drop. The returned bool
// reports whether the dial itself succeeded.
func (c *Client) session(ctx context.Context) (bool, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.WSURL, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", c.cfg.WSURL, err)
	}

	c.mu.Lock()
	c.conn = conn
	match := c.match
	c.mu.Unlock()

	c.stopPolling()
	telemetry.Infof("client: connected to %s", c.cfg.WSURL)
	c.publishStatus(true)

	// unblock ReadMessage when ctx is cancelled
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	if match != "" {
		err = c.writeFrame(ClientFrame{Type: FrameJoin, MatchID: match})
	}
	if err == nil {
		err = c.readLoop(conn)
	}

	close(stop)
	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	conn.Close()
	c.publishStatus(false)
	return true, err
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	env, payload, err := DecodeFrame(data)
	if err != nil {
		telemetry.Warnf("client: %v", err)
		return
	}

	switch p := payload.(type) {
	case sim.LiveMatchState:
		c.rec.ApplySnapshot(p)
	case events.GameEvent:
		c.rec.ApplyEvent(p)
	case sim.FinalBundle:
		c.rec.ApplySnapshot(p.State)
		c.publish(events.EventMatchComplete, env.MatchID, p)
	case ErrorPayload:
		telemetry.Warnf("client: server error: %s", p.Message)
	case events.StatusUpdate:
		c.publish(events.EventWSStatus, env.MatchID, p)
	}
}

// SetMatch switches the watched match. If connected, the join goes out
// right away; the server leaves the previous room implicitly.
func (c *Client) SetMatch(matchID string) error {
	c.mu.Lock()
	c.match = matchID
	connected := c.conn != nil
	c.mu.Unlock()

	if !connected {
		return nil
	}
	return c.writeFrame(ClientFrame{Type: FrameJoin, MatchID: matchID})
}

// Match returns the currently watched match id.
func (c *Client) Match() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.match
}

// Leave releases room membership. Safe to call when not joined.
func (c *Client) Leave() error {
	c.mu.Lock()
	c.match = ""
	connected := c.conn != nil
	c.mu.Unlock()

	if !connected {
		return nil
	}
	return c.writeFrame(ClientFrame{Type: FrameLeave})
}

// Control sends a privileged pause/resume request for the watched match.
func (c *Client) Control(action, token string) error {
	c.mu.Lock()
	match := c.match
	c.mu.Unlock()
	return c.writeFrame(ClientFrame{Type: FrameControl, MatchID: match, Action: action, Token: token})
}

func (c *Client) writeFrame(f ClientFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return c.conn.WriteJSON(f)
}

func (c *Client) startPolling(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pollCancel != nil || c.cfg.PollInterval <= 0 {
		return
	}
	telemetry.Errorf("client: %v, polling %s every %v", ErrConnectionFailed, c.cfg.HTTPURL, c.cfg.PollInterval)

	pctx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	p := NewPoller(c.cfg.HTTPURL, c.Match, c.cfg.PollInterval, c.rec)
	go p.Run(pctx)
}

func (c *Client) stopPolling() {
	c.mu.Lock()
	cancel := c.pollCancel
	c.pollCancel = nil
	c.mu.Unlock()
	if cancel != nil {
		telemetry.Infof("client: real-time channel restored, polling stopped")
		cancel()
	}
}

func (c *Client) publishStatus(connected bool) {
	c.publish(events.EventWSStatus, c.Match(), events.StatusUpdate{Connected: connected})
}

func (c *Client) publish(t events.EventType, matchID string, payload any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(events.Event{
		ID:        uuid.NewString(),
		Type:      t,
		MatchID:   matchID,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}
