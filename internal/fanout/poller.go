package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/openleague/livematch/internal/core/sim"
	"github.com/openleague/livematch/internal/reconcile"
	"github.com/openleague/livematch/internal/telemetry"
)

// Poller is the degraded-mode fallback: it fetches full snapshots from
// the HTTP endpoint while the real-time channel is down. Snapshots alone
// are enough to converge because the reconciler backfills missed events
// from each snapshot's recent-event feed.
type Poller struct {
	baseURL string
	match   func() string
	limiter *rate.Limiter
	client  *http.Client
	rec     *reconcile.Reconciler
}

func NewPoller(baseURL string, match func() string, interval time.Duration, rec *reconcile.Reconciler) *Poller {
	return &Poller{
		baseURL: baseURL,
		match:   match,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		client:  &http.Client{Timeout: 10 * time.Second},
		rec:     rec,
	}
}

// Run polls until ctx is cancelled. Individual fetch failures are logged
// and skipped; the next interval retries.
func (p *Poller) Run(ctx context.Context) {
	for {
		if err := p.limiter.Wait(ctx); err != nil {
			return
		}
		matchID := p.match()
		if matchID == "" {
			continue
		}
		if err := p.fetch(ctx, matchID); err != nil {
			telemetry.Warnf("poller: %v", err)
		}
	}
}

func (p *Poller) fetch(ctx context.Context, matchID string) error {
	telemetry.Metrics.PollRequests.Inc()

	url := fmt.Sprintf("%s/matches/%s", p.baseURL, matchID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	var body struct {
		State sim.LiveMatchState `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	p.rec.ApplySnapshot(body.State)
	return nil
}
