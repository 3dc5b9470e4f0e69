package rng

import (
	"fmt"
	"time"
)

// MatchContext owns the random stream for one match. The seed is derived
// from the pairing and kickoff instant, so re-creating a context with
// identical parameters reproduces every roll of the original match.
type MatchContext struct {
	MatchID string

	seed string
	src  *Source
}

func NewMatchContext(matchID, homeTeamID, awayTeamID string, kickoff time.Time) *MatchContext {
	seed := fmt.Sprintf("%s:%s:%s", homeTeamID, awayTeamID, kickoff.UTC().Format(time.RFC3339))
	return &MatchContext{
		MatchID: matchID,
		seed:    seed,
		src:     NewSource(seed),
	}
}

func (mc *MatchContext) Seed() string { return mc.seed }

func (mc *MatchContext) Float(label string) float64 {
	return mc.src.Float(label)
}

func (mc *MatchContext) IntBetween(label string, min, max int) (int, error) {
	return mc.src.IntBetween(label, min, max)
}

func (mc *MatchContext) Pick(label string, options []string) (string, error) {
	return mc.src.Pick(label, options)
}

func (mc *MatchContext) WeightedPick(label string, choices []Weighted) (string, error) {
	return mc.src.WeightedPick(label, choices)
}
