package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/openleague/livematch/internal/core/sim"
	"github.com/openleague/livematch/internal/events"
	"github.com/openleague/livematch/internal/telemetry"
)

// Notifier posts operational alerts to a Discord-compatible webhook. With
// no URL configured every send is a silent no-op, so call sites never need
// to check.
type Notifier struct {
	webhookURL string
	httpClient *http.Client
}

func NewNotifier(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *Notifier) Enabled() bool { return n.webhookURL != "" }

type Embed struct {
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Color       int     `json:"color,omitempty"`
	Fields      []Field `json:"fields,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
}

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type webhookPayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

func (n *Notifier) SendText(ctx context.Context, msg string) error {
	return n.send(ctx, webhookPayload{Content: msg})
}

func (n *Notifier) SendEmbed(ctx context.Context, embed Embed) error {
	if embed.Timestamp == "" {
		embed.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	return n.send(ctx, webhookPayload{Embeds: []Embed{embed}})
}

func (n *Notifier) send(ctx context.Context, payload webhookPayload) error {
	if !n.Enabled() {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal alert payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("alert webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 429 {
		telemetry.Warnf("alerting: rate limited")
		return fmt.Errorf("alert webhook rate limited")
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook: status=%d", resp.StatusCode)
	}

	return nil
}

const (
	ColorRed    = 0xE74C3C
	ColorYellow = 0xF1C40F
)

// EngineFault posts the red alert for a force-completed match.
func (n *Notifier) EngineFault(ctx context.Context, matchID, reason string) error {
	return n.SendEmbed(ctx, Embed{
		Title: "Engine Fault",
		Color: ColorRed,
		Fields: []Field{
			{Name: "Match", Value: matchID, Inline: true},
			{Name: "Reason", Value: reason, Inline: false},
		},
	})
}

// FullTime posts the final score line.
func (n *Notifier) FullTime(ctx context.Context, homeTeam, awayTeam string, homeScore, awayScore int) error {
	return n.SendEmbed(ctx, Embed{
		Title:       "Full Time",
		Description: fmt.Sprintf("%s %d - %d %s", homeTeam, homeScore, awayScore, awayTeam),
		Color:       ColorYellow,
	})
}

// Observer forwards bus alerts to the notifier. Sends run on their own
// goroutine so a slow webhook never blocks the runner that published.
type Observer struct {
	n *Notifier
}

const sendTimeout = 10 * time.Second

func NewObserver(bus *events.Bus, n *Notifier) *Observer {
	o := &Observer{n: n}
	if !n.Enabled() {
		return o
	}
	bus.Subscribe(events.EventEngineFault, o.onFault)
	bus.Subscribe(events.EventMatchComplete, o.onComplete)
	return o
}

func (o *Observer) onFault(e events.Event) error {
	f, ok := e.Payload.(events.EngineFault)
	if !ok {
		return nil
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := o.n.EngineFault(ctx, f.MatchID, f.Reason); err != nil {
			telemetry.Warnf("alerting: %v", err)
		}
	}()
	return nil
}

func (o *Observer) onComplete(e events.Event) error {
	fb, ok := e.Payload.(sim.FinalBundle)
	if !ok {
		return nil
	}
	st := fb.State
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := o.n.FullTime(ctx, st.Home.Name, st.Away.Name, st.HomeScore, st.AwayScore); err != nil {
			telemetry.Warnf("alerting: %v", err)
		}
	}()
	return nil
}
