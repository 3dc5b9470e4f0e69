package sim

import (
	"strings"
	"time"
	"unicode"

	"github.com/openleague/livematch/internal/core/rng"
)

// Squad name pools. Rosters are derived from the team id, so the same club
// fields the same players every time it appears in a fixture.
var squadFirstNames = []string{
	"Arlo", "Bram", "Cato", "Dario", "Emil", "Felix", "Goran", "Hugo",
	"Iker", "Jonas", "Kasper", "Luka", "Mateo", "Nico", "Oskar", "Pavel",
	"Rafael", "Stefan", "Tomas", "Viktor",
}

var squadLastNames = []string{
	"Albrecht", "Bergkamp", "Costa", "Dvorak", "Eriksen", "Ferreira",
	"Gruber", "Hansen", "Ivanov", "Jansen", "Kovac", "Lindqvist", "Moreau",
	"Novak", "Oliveira", "Petrov", "Ramirez", "Sorensen", "Tanaka", "Vidal",
}

var teamAbbrevs = map[string]bool{
	"FC": true, "SC": true, "CF": true, "AFC": true, "UTD": true,
}

// BuildTeam derives a team with one player per role slot from its id.
func BuildTeam(id string) Team {
	src := rng.NewSource("roster:" + id)
	lineup := make(map[Role]PlayerState, len(roleOrder))
	for _, role := range roleOrder {
		first, _ := src.Pick("first:"+string(role), squadFirstNames)
		last, _ := src.Pick("last:"+string(role), squadLastNames)
		fitness, _ := src.IntBetween("fitness:"+string(role), 78, 98)
		lineup[role] = PlayerState{
			ID:      id + "-" + strings.ToLower(string(role)),
			Name:    first + " " + last,
			Role:    role,
			Fitness: fitness,
		}
	}
	return Team{ID: id, Name: TeamName(id), Lineup: lineup}
}

// TeamName renders a display name from a slug id: "harborview-rovers-fc"
// becomes "Harborview Rovers FC".
func TeamName(id string) string {
	words := strings.FieldsFunc(id, func(r rune) bool { return r == '-' || r == '_' })
	if len(words) == 0 {
		return id
	}
	for i, w := range words {
		if up := strings.ToUpper(w); teamAbbrevs[up] {
			words[i] = up
			continue
		}
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// NewFixture assembles a complete fixture for scheduling. Facility levels
// come off the home id, so a venue stays the same between meetings.
func NewFixture(matchID, homeID, awayID string, kickoff time.Time, maxTime int) Fixture {
	src := rng.NewSource("venue:" + homeID)
	stadium, _ := src.IntBetween("stadium", 1, 5)
	pitch, _ := src.IntBetween("pitch", 1, 5)
	fanbase, _ := src.IntBetween("fanbase", 1, 5)
	return Fixture{
		MatchID:    matchID,
		Home:       BuildTeam(homeID),
		Away:       BuildTeam(awayID),
		Facilities: Facilities{StadiumLevel: stadium, PitchLevel: pitch, FanbaseLevel: fanbase},
		MaxTime:    maxTime,
		Kickoff:    kickoff,
	}
}
