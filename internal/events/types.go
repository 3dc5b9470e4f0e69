package events

// StatusUpdate signals push-channel connect/disconnect to client-side
// subscribers so they can flip between live and degraded indicators.
type StatusUpdate struct {
	Connected bool `json:"connected"`
}

// EngineFault is published when a match runner hits an illegal state
// transition and force-completes its match. The alerting layer subscribes.
type EngineFault struct {
	MatchID string `json:"match_id"`
	Reason  string `json:"reason"`
}
