package fanout

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/openleague/livematch/internal/core/sim"
	"github.com/openleague/livematch/internal/events"
)

// Client to server frame types.
const (
	FrameJoin    = "join"
	FrameLeave   = "leave"
	FrameControl = "control"
)

// Server to client frame types.
const (
	FrameMatchUpdate   = "match_update"
	FrameMatchEvent    = "match_event"
	FrameMatchComplete = "match_complete"
	FrameError         = "error"
	FrameStatus        = "connection_status"
)

// ClientFrame is the wire format for spectator requests. One room per
// connection: a join while joined elsewhere implicitly leaves first.
type ClientFrame struct {
	Type    string `json:"type"`
	MatchID string `json:"match_id,omitempty"`
	Action  string `json:"action,omitempty"` // control: "pause" or "resume"
	Token   string `json:"token,omitempty"`  // control auth
}

// Envelope is the wire format for frames sent to spectators.
type Envelope struct {
	Type      string          `json:"type"`
	MatchID   string          `json:"match_id,omitempty"`
	Timestamp time.Time       `json:"ts"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ErrorPayload carries a client-facing failure description.
type ErrorPayload struct {
	Message string `json:"message"`
}

// MarshalFrame serializes one server frame.
func MarshalFrame(frameType, matchID string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", frameType, err)
	}
	env := Envelope{
		Type:      frameType,
		MatchID:   matchID,
		Timestamp: time.Now(),
		Payload:   raw,
	}
	return json.Marshal(env)
}

// DecodeFrame deserializes a server frame back into its envelope and typed
// payload.
func DecodeFrame(data []byte) (Envelope, any, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case FrameMatchUpdate:
		var st sim.LiveMatchState
		if err := json.Unmarshal(env.Payload, &st); err != nil {
			return env, nil, fmt.Errorf("unmarshal match_update: %w", err)
		}
		return env, st, nil
	case FrameMatchEvent:
		var ge events.GameEvent
		if err := json.Unmarshal(env.Payload, &ge); err != nil {
			return env, nil, fmt.Errorf("unmarshal match_event: %w", err)
		}
		return env, ge, nil
	case FrameMatchComplete:
		var fb sim.FinalBundle
		if err := json.Unmarshal(env.Payload, &fb); err != nil {
			return env, nil, fmt.Errorf("unmarshal match_complete: %w", err)
		}
		return env, fb, nil
	case FrameError:
		var ep ErrorPayload
		if err := json.Unmarshal(env.Payload, &ep); err != nil {
			return env, nil, fmt.Errorf("unmarshal error frame: %w", err)
		}
		return env, ep, nil
	case FrameStatus:
		var su events.StatusUpdate
		if err := json.Unmarshal(env.Payload, &su); err != nil {
			return env, nil, fmt.Errorf("unmarshal connection_status: %w", err)
		}
		return env, su, nil
	default:
		return env, nil, fmt.Errorf("unknown frame type: %s", env.Type)
	}
}
