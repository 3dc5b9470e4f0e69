package sim

import (
	"time"

	"github.com/openleague/livematch/internal/events"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusLive      Status = "live"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

type Role string

const (
	RoleGoalkeeper Role = "GK"
	RoleDefender   Role = "DEF"
	RoleMidfielder Role = "MID"
	RoleForward    Role = "FWD"
)

// PlayerState is the live view of one fielded player.
type PlayerState struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Role    Role   `json:"role"`
	Fitness int    `json:"fitness"` // 0-100
	Goals   int    `json:"goals"`
	Injured bool   `json:"injured"`
}

// Team carries the static identity plus the active field players, one per
// role slot.
type Team struct {
	ID     string               `json:"id"`
	Name   string               `json:"name"`
	Lineup map[Role]PlayerState `json:"lineup"`
}

// Facilities is per-match static context. Levels color derived values such
// as attendance and sponsorship payouts; they never change mid-match.
type Facilities struct {
	StadiumLevel int `json:"stadium_level"`
	PitchLevel   int `json:"pitch_level"`
	FanbaseLevel int `json:"fanbase_level"`
}

// Fixture is everything needed to start a match.
type Fixture struct {
	MatchID    string     `json:"match_id"`
	Home       Team       `json:"home"`
	Away       Team       `json:"away"`
	Facilities Facilities `json:"facilities"`
	MaxTime    int        `json:"max_time"` // game seconds
	Kickoff    time.Time  `json:"kickoff"`
}

// maxRecentEvents bounds the in-state event log; the same cap applies on
// the client side.
const maxRecentEvents = 50

// LiveMatchState is the complete snapshot of one running match. It is
// mutated only by the engine; everything handed to other goroutines goes
// through Clone.
type LiveMatchState struct {
	MatchID     string     `json:"match_id"`
	Home        Team       `json:"home"`
	Away        Team       `json:"away"`
	Status      Status     `json:"status"`
	GameTime    int        `json:"game_time"` // seconds since kickoff
	MaxTime     int        `json:"max_time"`
	CurrentHalf int        `json:"current_half"`
	HomeScore   int        `json:"home_score"`
	AwayScore   int        `json:"away_score"`
	Possession  string     `json:"possession,omitempty"` // team id, empty during dead ball
	Facilities  Facilities `json:"facilities"`
	Attendance  int        `json:"attendance"`
	Kickoff     time.Time  `json:"kickoff"`

	// RecentEvents is most-recent-first and capped.
	RecentEvents []events.GameEvent `json:"recent_events"`

	// EventSeq is the last assigned event sequence number.
	EventSeq int `json:"event_seq"`

	// HalfTimeAt is the rolled game second the interval occurs at. Zero
	// until kickoff.
	HalfTimeAt   int  `json:"half_time_at"`
	HalfTimeDone bool `json:"half_time_done"`

	// Set when the match was force-completed after an engine fault.
	ErrorFlag   bool   `json:"error_flag,omitempty"`
	ErrorReason string `json:"error_reason,omitempty"`
}

// NewMatchState builds the scheduled pre-kickoff state for a fixture.
func NewMatchState(fix Fixture) LiveMatchState {
	return LiveMatchState{
		MatchID:     fix.MatchID,
		Home:        cloneTeam(fix.Home),
		Away:        cloneTeam(fix.Away),
		Status:      StatusScheduled,
		MaxTime:     fix.MaxTime,
		CurrentHalf: 1,
		Facilities:  fix.Facilities,
		Kickoff:     fix.Kickoff,
	}
}

// Clone returns a deep copy safe to hand across goroutines.
func (st LiveMatchState) Clone() LiveMatchState {
	out := st
	out.Home = cloneTeam(st.Home)
	out.Away = cloneTeam(st.Away)
	out.RecentEvents = append([]events.GameEvent(nil), st.RecentEvents...)
	return out
}

func cloneTeam(t Team) Team {
	out := t
	out.Lineup = make(map[Role]PlayerState, len(t.Lineup))
	for role, p := range t.Lineup {
		out.Lineup[role] = p
	}
	return out
}

// team returns the side with the given id, nil when unknown.
func (st *LiveMatchState) team(id string) *Team {
	switch id {
	case st.Home.ID:
		return &st.Home
	case st.Away.ID:
		return &st.Away
	}
	return nil
}

// opponent returns the other side's id.
func (st *LiveMatchState) opponent(id string) string {
	if id == st.Home.ID {
		return st.Away.ID
	}
	return st.Home.ID
}

// pushEvent prepends to the capped recent log.
func (st *LiveMatchState) pushEvent(ev events.GameEvent) {
	st.RecentEvents = append([]events.GameEvent{ev}, st.RecentEvents...)
	if len(st.RecentEvents) > maxRecentEvents {
		st.RecentEvents = st.RecentEvents[:maxRecentEvents]
	}
}

// TickBundle is the per-tick payload published on the bus: the post-tick
// snapshot plus the events generated on that tick, in seq order.
type TickBundle struct {
	State  LiveMatchState     `json:"state"`
	Events []events.GameEvent `json:"events"`
}

// FinalBundle is the match-complete payload: the final snapshot plus the
// full event log of the match.
type FinalBundle struct {
	State LiveMatchState     `json:"state"`
	Log   []events.GameEvent `json:"log"`
}
