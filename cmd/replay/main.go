package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/openleague/livematch/internal/core/rng"
	"github.com/openleague/livematch/internal/core/sim"
	"github.com/openleague/livematch/internal/events"
)

// replay drives the engine headless, twice, with identical inputs, and
// compares the event logs. Any divergence means a nondeterministic roll
// crept into the engine.

func playMatch(eng *sim.Engine, fix sim.Fixture) ([]events.GameEvent, sim.LiveMatchState, error) {
	mc := rng.NewMatchContext(fix.MatchID, fix.Home.ID, fix.Away.ID, fix.Kickoff)
	st := sim.NewMatchState(fix)

	st, evs, err := eng.Start(mc, st)
	if err != nil {
		return nil, st, fmt.Errorf("kickoff: %w", err)
	}
	eventLog := append([]events.GameEvent(nil), evs...)

	maxTicks := fix.MaxTime/eng.StepSec() + 16
	for i := 0; i < maxTicks; i++ {
		if st.Status == sim.StatusCompleted {
			return eventLog, st, nil
		}
		st, evs, err = eng.Tick(mc, st)
		if err != nil {
			return nil, st, fmt.Errorf("tick %d: %w", i, err)
		}
		eventLog = append(eventLog, evs...)
	}
	return nil, st, fmt.Errorf("match did not complete within %d ticks", maxTicks)
}

func eventJSON(ev events.GameEvent) string {
	data, _ := json.Marshal(ev)
	return string(data)
}

func main() {
	home := flag.String("home", "harborview-rovers-fc", "home team id")
	away := flag.String("away", "eastgate-united", "away team id")
	matchID := flag.String("match", "replay-check", "match id")
	duration := flag.Int("duration", 5400, "match length in game seconds")
	step := flag.Int("step", 60, "game seconds advanced per tick")
	kickoffStr := flag.String("kickoff", "", "kickoff instant (RFC3339, default now)")
	verbose := flag.Bool("v", false, "print the full event log")
	flag.Parse()

	kickoff := time.Now().UTC().Truncate(time.Second)
	if *kickoffStr != "" {
		t, err := time.Parse(time.RFC3339, *kickoffStr)
		if err != nil {
			log.Fatalf("bad -kickoff: %v", err)
		}
		kickoff = t
	}

	eng := sim.NewEngine(*step)
	fix := sim.NewFixture(*matchID, *home, *away, kickoff, *duration)

	fmt.Printf("=== Replay Check ===\n")
	fmt.Printf("Fixture:  %s vs %s\n", fix.Home.Name, fix.Away.Name)
	fmt.Printf("Kickoff:  %s\n", kickoff.Format(time.RFC3339))
	fmt.Printf("Duration: %d sec, step %d\n\n", *duration, *step)

	log1, final1, err := playMatch(eng, fix)
	if err != nil {
		log.Fatalf("run 1: %v", err)
	}
	log2, final2, err := playMatch(eng, fix)
	if err != nil {
		log.Fatalf("run 2: %v", err)
	}

	fmt.Printf("Run 1: %d events, final %d-%d, attendance %d\n",
		len(log1), final1.HomeScore, final1.AwayScore, final1.Attendance)
	fmt.Printf("Run 2: %d events, final %d-%d, attendance %d\n\n",
		len(log2), final2.HomeScore, final2.AwayScore, final2.Attendance)

	if *verbose {
		for _, ev := range log1 {
			fmt.Printf("  %4d' seq=%-3d %-12s %s\n", ev.Tick/60, ev.Seq, ev.Type, ev.Description)
		}
		fmt.Println()
	}

	if len(log1) != len(log2) {
		fmt.Printf("FAIL: event counts differ (%d vs %d)\n", len(log1), len(log2))
		os.Exit(1)
	}
	for i := range log1 {
		a, b := eventJSON(log1[i]), eventJSON(log2[i])
		if a != b {
			fmt.Printf("FAIL: first divergence at index %d\n  run 1: %s\n  run 2: %s\n", i, a, b)
			os.Exit(1)
		}
	}
	if final1.HomeScore != final2.HomeScore || final1.AwayScore != final2.AwayScore {
		fmt.Printf("FAIL: final scores differ\n")
		os.Exit(1)
	}

	fmt.Printf("OK: event logs identical (%d events)\n", len(log1))
}
