package sim

import (
	"errors"
	"fmt"

	"github.com/openleague/livematch/internal/core/rng"
	"github.com/openleague/livematch/internal/events"
)

var (
	ErrMatchCompleted    = errors.New("match already completed")
	ErrIllegalTransition = errors.New("illegal state transition")
)

// Tunables. The concrete values shape the feel of a match but are not part
// of any compatibility contract.
var (
	pGoalAttempt     = 0.16
	pPossessionSwing = 0.24
	pInjury          = 0.035
	pConversion      = 0.38
	homeAdvantage    = 0.55

	seatsPerStadiumLevel = 8000
	ticketPriceCents     = 1200
	goalBonusBaseCents   = 200000
	goalBonusPerFanLevel = 50000

	scorerRoleWeights = []rng.Weighted{
		{Option: string(RoleForward), Weight: 0.58},
		{Option: string(RoleMidfielder), Weight: 0.30},
		{Option: string(RoleDefender), Weight: 0.10},
		{Option: string(RoleGoalkeeper), Weight: 0.02},
	}
)

// roleOrder fixes iteration order wherever the lineup feeds a roll.
var roleOrder = []Role{RoleGoalkeeper, RoleDefender, RoleMidfielder, RoleForward}

var missFlavors = []string{
	"curls one just wide of the far post",
	"sees the shot palmed over the bar",
	"rattles the crossbar from distance",
	"drags the effort across the face of goal",
	"is denied by a last-ditch block",
}

var swingFlavors = []string{
	"win the ball back in midfield",
	"intercept a loose pass and break",
	"force a turnover on the touchline",
	"come away with it after a crunching tackle",
}

var quietFlavors = []string{
	"Patient build-up play in midfield",
	"The tempo drops as both sides probe",
	"Possession is traded in the middle third",
	"A lull in play as the back lines push up",
}

// Engine advances match state one step at a time. It is pure: identical
// (context, state) inputs always yield identical outputs, and it never
// consults the wall clock.
type Engine struct {
	stepSec int
}

func NewEngine(stepSec int) *Engine {
	if stepSec <= 0 {
		stepSec = 60
	}
	return &Engine{stepSec: stepSec}
}

func (e *Engine) StepSec() int { return e.stepSec }

// Start performs the scheduled to live transition: derives attendance,
// rolls the half-time second, assigns opening possession and emits the
// kickoff events.
func (e *Engine) Start(mc *rng.MatchContext, st LiveMatchState) (LiveMatchState, []events.GameEvent, error) {
	if err := validateState(&st); err != nil {
		return st, nil, err
	}
	if st.Status != StatusScheduled {
		return st, nil, fmt.Errorf("%w: kickoff from %s", ErrIllegalTransition, st.Status)
	}

	capacity := st.Facilities.StadiumLevel * seatsPerStadiumLevel
	if capacity <= 0 {
		capacity = seatsPerStadiumLevel
	}
	fill := 0.45 + 0.05*float64(st.Facilities.FanbaseLevel) + 0.25*mc.Float("attendance")
	if fill > 1 {
		fill = 1
	}
	st.Attendance = int(float64(capacity) * fill)

	// Roll the interval second inside the mid-match window, leaving room
	// for the tick that crosses it to still land inside.
	htLow := st.MaxTime * 48 / 100
	htHigh := st.MaxTime*52/100 - e.stepSec
	if htHigh < htLow {
		htHigh = htLow
	}
	ht, err := mc.IntBetween("half-time-at", htLow, htHigh)
	if err != nil {
		return st, nil, err
	}
	st.HalfTimeAt = ht

	opening, err := mc.Pick("opening-possession", []string{st.Home.ID, st.Away.ID})
	if err != nil {
		return st, nil, err
	}
	st.Status = StatusLive
	st.Possession = opening

	var out []events.GameEvent

	kick := st.newEvent(events.GameEventKickoff,
		fmt.Sprintf("Kick-off! %s host %s in front of %d fans", st.Home.Name, st.Away.Name, st.Attendance),
		opening, "")
	st.pushEvent(kick)
	out = append(out, kick)

	gate := st.newEvent(events.GameEventEconomic,
		fmt.Sprintf("Gate receipts collected for %s", st.Home.Name),
		st.Home.ID, "")
	gate.AmountCents = int64(st.Attendance) * int64(ticketPriceCents)
	st.pushEvent(gate)
	out = append(out, gate)

	return st, out, nil
}

// Tick advances the clock one step and generates that step's events.
// Scheduled and paused matches are left untouched; ticking a completed
// match is an error.
func (e *Engine) Tick(mc *rng.MatchContext, st LiveMatchState) (LiveMatchState, []events.GameEvent, error) {
	if st.Status == StatusCompleted {
		return st, nil, ErrMatchCompleted
	}
	if err := validateState(&st); err != nil {
		return st, nil, err
	}
	if st.Status != StatusLive {
		return st, nil, nil
	}

	st.GameTime += e.stepSec
	if st.GameTime > st.MaxTime {
		st.GameTime = st.MaxTime
	}

	var out []events.GameEvent

	if !st.HalfTimeDone && st.HalfTimeAt > 0 && st.GameTime >= st.HalfTimeAt {
		st.HalfTimeDone = true
		st.CurrentHalf = 2
		st.Possession = st.opponent(st.Possession)
		ev := st.newEvent(events.GameEventHalfTime,
			fmt.Sprintf("Half-time: %s %d-%d %s", st.Home.Name, st.HomeScore, st.AwayScore, st.Away.Name),
			"", "")
		ev.HomeScore = st.HomeScore
		ev.AwayScore = st.AwayScore
		st.pushEvent(ev)
		return st, append(out, ev), nil
	}

	if st.GameTime >= st.MaxTime {
		st.Status = StatusCompleted
		st.Possession = ""
		ev := st.newEvent(events.GameEventFullTime,
			fmt.Sprintf("Full-time: %s %d-%d %s", st.Home.Name, st.HomeScore, st.AwayScore, st.Away.Name),
			"", "")
		ev.HomeScore = st.HomeScore
		ev.AwayScore = st.AwayScore
		st.pushEvent(ev)
		return st, append(out, ev), nil
	}

	action := mc.Float("action")
	switch {
	case action < pGoalAttempt:
		evs, err := e.goalAttempt(mc, &st)
		if err != nil {
			return st, nil, err
		}
		out = append(out, evs...)

	case action < pGoalAttempt+pPossessionSwing:
		ev, err := e.possessionSwing(mc, &st)
		if err != nil {
			return st, nil, err
		}
		out = append(out, ev)

	case action < pGoalAttempt+pPossessionSwing+pInjury:
		ev, err := e.injury(mc, &st)
		if err != nil {
			return st, nil, err
		}
		out = append(out, ev)

	default:
		flavor, err := mc.Pick("progression-flavor", quietFlavors)
		if err != nil {
			return st, nil, err
		}
		ev := st.newEvent(events.GameEventProgression,
			fmt.Sprintf("%s. %d'", flavor, st.GameTime/60), "", "")
		st.pushEvent(ev)
		out = append(out, ev)
	}

	return st, out, nil
}

// goalAttempt resolves a shot: a goal plus its sponsorship payout, or a
// near miss.
func (e *Engine) goalAttempt(mc *rng.MatchContext, st *LiveMatchState) ([]events.GameEvent, error) {
	attackerID := st.Possession
	if attackerID == "" {
		pick, err := mc.WeightedPick("attacking-team", []rng.Weighted{
			{Option: st.Home.ID, Weight: homeAdvantage},
			{Option: st.Away.ID, Weight: 1 - homeAdvantage},
		})
		if err != nil {
			return nil, err
		}
		attackerID = pick
	}
	attacker := st.team(attackerID)
	if attacker == nil {
		return nil, fmt.Errorf("%w: possession held by unknown team %q", ErrIllegalTransition, attackerID)
	}

	roleStr, err := mc.WeightedPick("scorer-role", scorerRoleWeights)
	if err != nil {
		return nil, err
	}
	shooter := attacker.Lineup[Role(roleStr)]

	if mc.Float("goal-chance") >= pConversion {
		flavor, err := mc.Pick("miss-flavor", missFlavors)
		if err != nil {
			return nil, err
		}
		st.Possession = st.opponent(attackerID)
		ev := st.newEvent(events.GameEventNearMiss,
			fmt.Sprintf("%s (%s) %s", shooter.Name, attacker.Name, flavor),
			attackerID, shooter.ID)
		st.pushEvent(ev)
		return []events.GameEvent{ev}, nil
	}

	if attackerID == st.Home.ID {
		st.HomeScore++
	} else {
		st.AwayScore++
	}
	shooter.Goals++
	attacker.Lineup[Role(roleStr)] = shooter
	st.Possession = st.opponent(attackerID)

	goal := st.newEvent(events.GameEventScore,
		fmt.Sprintf("GOAL! %s scores for %s. %s %d-%d %s",
			shooter.Name, attacker.Name, st.Home.Name, st.HomeScore, st.AwayScore, st.Away.Name),
		attackerID, shooter.ID)
	goal.HomeScore = st.HomeScore
	goal.AwayScore = st.AwayScore
	st.pushEvent(goal)

	bonus := st.newEvent(events.GameEventEconomic,
		fmt.Sprintf("Sponsorship goal bonus paid to %s", attacker.Name),
		attackerID, shooter.ID)
	bonus.AmountCents = int64(goalBonusBaseCents + goalBonusPerFanLevel*st.Facilities.FanbaseLevel)
	st.pushEvent(bonus)

	return []events.GameEvent{goal, bonus}, nil
}

func (e *Engine) possessionSwing(mc *rng.MatchContext, st *LiveMatchState) (events.GameEvent, error) {
	var winnerID string
	if st.Possession == "" {
		pick, err := mc.Pick("possession-winner", []string{st.Home.ID, st.Away.ID})
		if err != nil {
			return events.GameEvent{}, err
		}
		winnerID = pick
	} else {
		winnerID = st.opponent(st.Possession)
	}
	winner := st.team(winnerID)
	if winner == nil {
		return events.GameEvent{}, fmt.Errorf("%w: possession swing to unknown team %q", ErrIllegalTransition, winnerID)
	}

	flavor, err := mc.Pick("swing-flavor", swingFlavors)
	if err != nil {
		return events.GameEvent{}, err
	}
	st.Possession = winnerID
	ev := st.newEvent(events.GameEventPossession,
		fmt.Sprintf("%s %s", winner.Name, flavor),
		winnerID, "")
	st.pushEvent(ev)
	return ev, nil
}

// injury picks a player weighted toward low fitness, knocks their fitness
// down and flags them when the knock is serious.
func (e *Engine) injury(mc *rng.MatchContext, st *LiveMatchState) (events.GameEvent, error) {
	teamID, err := mc.Pick("injury-team", []string{st.Home.ID, st.Away.ID})
	if err != nil {
		return events.GameEvent{}, err
	}
	side := st.team(teamID)

	choices := make([]rng.Weighted, 0, len(roleOrder))
	for _, role := range roleOrder {
		p, ok := side.Lineup[role]
		if !ok {
			continue
		}
		choices = append(choices, rng.Weighted{Option: string(role), Weight: float64(111 - p.Fitness)})
	}
	roleStr, err := mc.WeightedPick("injury-player", choices)
	if err != nil {
		return events.GameEvent{}, err
	}

	severity, err := mc.IntBetween("injury-severity", 10, 35)
	if err != nil {
		return events.GameEvent{}, err
	}

	p := side.Lineup[Role(roleStr)]
	p.Fitness -= severity
	if p.Fitness < 5 {
		p.Fitness = 5
	}
	serious := severity >= 25
	if serious {
		p.Injured = true
	}
	side.Lineup[Role(roleStr)] = p

	desc := fmt.Sprintf("%s (%s) is down and receiving treatment", p.Name, side.Name)
	if serious {
		desc = fmt.Sprintf("%s (%s) limps off the pitch after a heavy challenge", p.Name, side.Name)
	}
	ev := st.newEvent(events.GameEventInjury, desc, teamID, p.ID)
	st.pushEvent(ev)
	return ev, nil
}

// Pause freezes a live match. The clock does not advance while paused.
func (e *Engine) Pause(st LiveMatchState) (LiveMatchState, error) {
	if st.Status != StatusLive {
		return st, fmt.Errorf("%w: pause from %s", ErrIllegalTransition, st.Status)
	}
	st.Status = StatusPaused
	return st, nil
}

// Resume continues a paused match from the exact second it froze at.
func (e *Engine) Resume(st LiveMatchState) (LiveMatchState, error) {
	if st.Status != StatusPaused {
		return st, fmt.Errorf("%w: resume from %s", ErrIllegalTransition, st.Status)
	}
	st.Status = StatusLive
	return st, nil
}

// ForceComplete terminates a match after an unrecoverable engine fault.
// The match ends with the error flag set rather than being left wedged.
func (e *Engine) ForceComplete(st LiveMatchState, reason string) (LiveMatchState, events.GameEvent) {
	st.Status = StatusCompleted
	st.Possession = ""
	st.ErrorFlag = true
	st.ErrorReason = reason
	ev := st.newEvent(events.GameEventFullTime,
		fmt.Sprintf("Match abandoned: %s %d-%d %s", st.Home.Name, st.HomeScore, st.AwayScore, st.Away.Name),
		"", "")
	ev.HomeScore = st.HomeScore
	ev.AwayScore = st.AwayScore
	st.pushEvent(ev)
	return st, ev
}

// newEvent assigns the next seq and stamps the event at the current game
// second.
func (st *LiveMatchState) newEvent(typ events.GameEventType, desc, teamID, playerID string) events.GameEvent {
	st.EventSeq++
	return events.GameEvent{
		ID:          events.GameEventID(st.MatchID, st.EventSeq),
		MatchID:     st.MatchID,
		Tick:        st.GameTime,
		Seq:         st.EventSeq,
		Type:        typ,
		Priority:    events.ClassifyPriority(typ),
		Description: desc,
		TeamID:      teamID,
		PlayerID:    playerID,
	}
}

func validateState(st *LiveMatchState) error {
	switch st.Status {
	case StatusScheduled, StatusLive, StatusPaused, StatusCompleted:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrIllegalTransition, st.Status)
	}
	if st.MaxTime <= 0 {
		return fmt.Errorf("%w: max time %d", ErrIllegalTransition, st.MaxTime)
	}
	if st.GameTime < 0 || st.GameTime > st.MaxTime {
		return fmt.Errorf("%w: game clock %d outside [0,%d]", ErrIllegalTransition, st.GameTime, st.MaxTime)
	}
	if st.CurrentHalf < 1 || st.CurrentHalf > 2 {
		return fmt.Errorf("%w: half %d", ErrIllegalTransition, st.CurrentHalf)
	}
	if st.HomeScore < 0 || st.AwayScore < 0 {
		return fmt.Errorf("%w: negative score %d-%d", ErrIllegalTransition, st.HomeScore, st.AwayScore)
	}
	if len(st.Home.Lineup) == 0 || len(st.Away.Lineup) == 0 {
		return fmt.Errorf("%w: empty lineup", ErrIllegalTransition)
	}
	return nil
}
