package pacing

import (
	"time"

	"github.com/openleague/livematch/internal/config"
	"github.com/openleague/livematch/internal/events"
)

// Profile maps event priorities to downtime-compression factors. The
// factors shape how fast a delivery queue may drain; they are advisory to
// the delivery layer and never reach the simulation.
type Profile struct {
	compression map[events.Priority]int
	queueCap    int
}

func NewProfile(cfg config.Pacing) Profile {
	return Profile{
		compression: map[events.Priority]int{
			events.PriorityCritical:  cfg.Critical,
			events.PriorityImportant: cfg.Important,
			events.PriorityStandard:  cfg.Standard,
			events.PriorityDowntime:  cfg.Downtime,
		},
		queueCap: cfg.QueueCap,
	}
}

// Compression returns the factor for a priority. Unknown priorities play
// out in real time.
func (p Profile) Compression(pr events.Priority) int {
	if c, ok := p.compression[pr]; ok && c >= 1 {
		return c
	}
	return 1
}

func (p Profile) QueueCap() int { return p.queueCap }

// Delay returns the minimum real-time gap between releasing consecutive
// tick bundles while a queue is draining. One bundle covers one tick, so
// the uncompressed gap is the tick interval itself.
func (p Profile) Delay(highest events.Priority, tickInterval time.Duration) time.Duration {
	return tickInterval / time.Duration(p.Compression(highest))
}

// rank orders priorities for BundlePriority.
var rank = map[events.Priority]int{
	events.PriorityDowntime:  0,
	events.PriorityStandard:  1,
	events.PriorityImportant: 2,
	events.PriorityCritical:  3,
}

// BundlePriority is the highest priority among a bundle's events. A bundle
// with no events is pure downtime.
func BundlePriority(evs []events.GameEvent) events.Priority {
	highest := events.PriorityDowntime
	for _, ev := range evs {
		if rank[ev.Priority] > rank[highest] {
			highest = ev.Priority
		}
	}
	return highest
}
