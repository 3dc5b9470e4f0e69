package events

import "time"

// Event is the envelope that flows through the event bus.
// Every update leaving a match runner (tick bundle, individual game event,
// completion, fault) is wrapped in one.
type Event struct {
	ID        string
	Type      EventType
	MatchID   string
	Timestamp time.Time
	Payload   any
}

type EventType string

const (
	// Published once per simulation tick with the full state bundle.
	EventTickUpdate EventType = "tick_update"
	// Published once per generated game event, for type- and match-keyed
	// subscribers such as the archive and alerting.
	EventGameEvent EventType = "game_event"
	// Published exactly once when a match reaches full time.
	EventMatchComplete EventType = "match_complete"
	// Published when a runner force-completes a match after an illegal
	// state transition.
	EventEngineFault EventType = "engine_fault"
	// Client-side connectivity signal (push connected / degraded to polling).
	EventWSStatus EventType = "ws_status"
)
