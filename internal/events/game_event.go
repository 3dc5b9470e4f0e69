package events

import "fmt"

// Priority buckets drive the delivery layer's pacing decisions. They never
// influence the simulation itself.
type Priority string

const (
	PriorityCritical  Priority = "critical"
	PriorityImportant Priority = "important"
	PriorityStandard  Priority = "standard"
	PriorityDowntime  Priority = "downtime"
)

type GameEventType string

const (
	GameEventKickoff     GameEventType = "kickoff"
	GameEventPossession  GameEventType = "possession"
	GameEventScore       GameEventType = "score"
	GameEventNearMiss    GameEventType = "near_miss"
	GameEventInjury      GameEventType = "injury"
	GameEventProgression GameEventType = "progression"
	GameEventEconomic    GameEventType = "economic"
	GameEventHalfTime    GameEventType = "half_time"
	GameEventFullTime    GameEventType = "full_time"
)

// GameEvent is a single spectator-visible moment within a match.
// Tick is the in-game second the event occurred at; Seq breaks ties between
// events generated on the same tick and is monotonic for the whole match.
type GameEvent struct {
	ID          string        `json:"id"`
	MatchID     string        `json:"match_id"`
	Tick        int           `json:"tick"`
	Seq         int           `json:"seq"`
	Type        GameEventType `json:"type"`
	Priority    Priority      `json:"priority"`
	Description string        `json:"description"`
	TeamID      string        `json:"team_id,omitempty"`
	PlayerID    string        `json:"player_id,omitempty"`

	// Optional structured context, flattened per event type.
	HomeScore   int   `json:"home_score,omitempty"`
	AwayScore   int   `json:"away_score,omitempty"`
	AmountCents int64 `json:"amount_cents,omitempty"`
}

// GameEventID builds the match-unique identifier for the seq-th event.
func GameEventID(matchID string, seq int) string {
	return fmt.Sprintf("%s-%d", matchID, seq)
}

// ClassifyPriority maps a game event type to its delivery priority.
// Unknown types land in the standard bucket rather than being dropped.
func ClassifyPriority(t GameEventType) Priority {
	switch t {
	case GameEventScore, GameEventFullTime:
		return PriorityCritical
	case GameEventInjury, GameEventHalfTime, GameEventKickoff:
		return PriorityImportant
	case GameEventPossession, GameEventNearMiss:
		return PriorityStandard
	case GameEventProgression, GameEventEconomic:
		return PriorityDowntime
	default:
		return PriorityStandard
	}
}

// Compare orders events by tick, then seq. Negative means a precedes b.
func Compare(a, b GameEvent) int {
	if a.Tick != b.Tick {
		return a.Tick - b.Tick
	}
	return a.Seq - b.Seq
}
