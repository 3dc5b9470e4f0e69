package display

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/openleague/livematch/internal/core/sim"
)

const (
	dividerHeavy = "========================================================================"
	dividerLight = "~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~"

	maxFeedLines = 5
)

// stderrTTY gates in-place redraws. Piped output appends frame after frame
// instead of emitting cursor escapes.
var stderrTTY = isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

// Board renders match snapshots for the terminal spectator. On a terminal
// each frame redraws over the last; piped output appends. A snapshot
// identical to the last drawn one (same event seq, same status) is skipped,
// which keeps polling mode from spamming duplicates.
type Board struct {
	mu         sync.Mutex
	connected  bool
	drawn      bool
	lastSeq    int
	lastStatus sim.Status
}

func NewBoard() *Board {
	return &Board{}
}

// SetConnected flips the degraded-mode tag. Safe from any goroutine.
func (bd *Board) SetConnected(c bool) {
	bd.mu.Lock()
	bd.connected = c
	bd.mu.Unlock()
}

// Refresh prints the snapshot if anything visible changed since the last
// draw.
func (bd *Board) Refresh(st sim.LiveMatchState) {
	bd.mu.Lock()
	if bd.drawn && st.EventSeq == bd.lastSeq && st.Status == bd.lastStatus {
		bd.mu.Unlock()
		return
	}
	bd.drawn = true
	bd.lastSeq = st.EventSeq
	bd.lastStatus = st.Status
	connected := bd.connected
	bd.mu.Unlock()

	if stderrTTY {
		fmt.Fprint(os.Stderr, "\033[H\033[2J")
	}
	fmt.Fprint(os.Stderr, Render(st, connected))
}

// Render formats one scoreboard frame.
func Render(st sim.LiveMatchState, connected bool) string {
	tag := strings.ToUpper(string(st.Status))
	if st.Status == sim.StatusCompleted {
		tag = "FINAL"
	}
	wsTag := ""
	if !connected {
		wsTag = "  [POLLING]"
	}
	divider := dividerHeavy
	if st.Status == sim.StatusPaused {
		divider = dividerLight
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n[%s %s]%s\n", tag, time.Now().Format("3:04:05 PM"), wsTag)
	fmt.Fprintf(&b, "%s\n", divider)
	fmt.Fprintf(&b, "  %s @ %s\n", st.Away.Name, st.Home.Name)
	fmt.Fprintf(&b, "    %-24s%s %d - %d %s\n",
		"Score:", shortName(st.Home.Name), st.HomeScore, st.AwayScore, shortName(st.Away.Name))
	fmt.Fprintf(&b, "    %-24s%d' of %d'  |  Half %d\n",
		"Clock:", st.GameTime/60, st.MaxTime/60, st.CurrentHalf)
	if st.Possession != "" {
		fmt.Fprintf(&b, "    %-24s%s\n", "Possession:", teamName(st, st.Possession))
	}
	fmt.Fprintf(&b, "    %-24s%s\n", "Attendance:", humanize.Comma(int64(st.Attendance)))
	if st.ErrorFlag {
		fmt.Fprintf(&b, "    %-24s%s\n", "Fault:", st.ErrorReason)
	}
	if len(st.RecentEvents) > 0 {
		fmt.Fprintf(&b, "  Recent:\n")
		n := len(st.RecentEvents)
		if n > maxFeedLines {
			n = maxFeedLines
		}
		for _, ev := range st.RecentEvents[:n] {
			fmt.Fprintf(&b, "    %3d'  %-12s %s\n", ev.Tick/60, ev.Type, ev.Description)
		}
	}
	fmt.Fprintf(&b, "%s\n", divider)
	return b.String()
}

func teamName(st sim.LiveMatchState, id string) string {
	switch id {
	case st.Home.ID:
		return st.Home.Name
	case st.Away.ID:
		return st.Away.Name
	}
	return id
}

var teamSuffixes = map[string]bool{
	"FC": true, "SC": true, "CF": true, "AFC": true, "FK": true,
	"BK": true, "IF": true, "SK": true, "CD": true, "AD": true,
	"UD": true, "SV": true, "CA": true, "RC": true,
}

// shortName trims club suffixes so score lines stay narrow:
// "Harborview Rovers FC" renders as "Rovers".
func shortName(name string) string {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return name
	}
	last := parts[len(parts)-1]
	if len(parts) > 1 && teamSuffixes[strings.ToUpper(last)] {
		return parts[len(parts)-2]
	}
	return last
}
