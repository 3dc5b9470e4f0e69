package display

import (
	"strings"
	"testing"

	"github.com/openleague/livematch/internal/core/sim"
	"github.com/openleague/livematch/internal/events"
)

func TestRenderScoreboard(t *testing.T) {
	st := sim.LiveMatchState{
		MatchID:     "m1",
		Home:        sim.Team{ID: "h", Name: "Harborview Rovers FC"},
		Away:        sim.Team{ID: "a", Name: "Eastvale United"},
		Status:      sim.StatusLive,
		GameTime:    1860,
		MaxTime:     5400,
		CurrentHalf: 1,
		HomeScore:   2,
		AwayScore:   1,
		Possession:  "a",
		Attendance:  12847,
		RecentEvents: []events.GameEvent{
			{Tick: 1800, Type: events.GameEventScore, Description: "GOAL for Rovers"},
		},
	}

	out := Render(st, true)
	for _, want := range []string{
		"Rovers 2 - 1 United",
		"31' of 90'",
		"Eastvale United",
		"12,847",
		"GOAL for Rovers",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "[POLLING]") {
		t.Fatalf("connected board must not show the polling tag:\n%s", out)
	}
}

func TestRenderDegradedAndFinalTags(t *testing.T) {
	st := sim.LiveMatchState{
		MatchID: "m1",
		Home:    sim.Team{ID: "h", Name: "Home"},
		Away:    sim.Team{ID: "a", Name: "Away"},
		Status:  sim.StatusCompleted,
		MaxTime: 5400,
	}

	out := Render(st, false)
	if !strings.Contains(out, "[FINAL") {
		t.Fatalf("expected FINAL tag, got:\n%s", out)
	}
	if !strings.Contains(out, "[POLLING]") {
		t.Fatalf("expected polling tag while disconnected, got:\n%s", out)
	}
}

func TestShortName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Harborview Rovers FC", "Rovers"},
		{"Eastvale United", "United"},
		{"Solo", "Solo"},
	}
	for _, c := range cases {
		if got := shortName(c.in); got != c.want {
			t.Fatalf("shortName(%q): expected %q, got %q", c.in, c.want, got)
		}
	}
}
