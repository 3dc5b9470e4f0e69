package rng

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrInvalidRange = errors.New("invalid range")
	ErrEmptyOptions = errors.New("empty options")
)

// Source produces deterministic rolls keyed by label. Each label is an
// independent stream: the n-th roll for a label depends only on the seed,
// the label, and n, so interleaving other labels never disturbs it.
type Source struct {
	mu     sync.Mutex
	seed   []byte
	counts map[string]uint64
}

func NewSource(seed string) *Source {
	return &Source{
		seed:   []byte(seed),
		counts: make(map[string]uint64),
	}
}

// Float returns the next value in [0, 1) for label.
func (s *Source) Float(label string) float64 {
	s.mu.Lock()
	n := s.counts[label]
	s.counts[label] = n + 1
	s.mu.Unlock()
	return floatAt(s.seed, label, n)
}

// floatAt derives roll n for a label: HMAC-SHA256(seed, "label:n"), first
// four digest bytes folded into a float by descending byte weight.
func floatAt(seed []byte, label string, n uint64) float64 {
	mac := hmac.New(sha256.New, seed)
	fmt.Fprintf(mac, "%s:%d", label, n)
	sum := mac.Sum(nil)

	var f float64
	div := 256.0
	for _, b := range sum[:4] {
		f += float64(b) / div
		div *= 256
	}
	return f
}

// IntBetween returns the next integer in [min, max], inclusive on both ends.
// A failed validation does not consume a roll.
func (s *Source) IntBetween(label string, min, max int) (int, error) {
	if min > max {
		return 0, fmt.Errorf("%w: min %d > max %d", ErrInvalidRange, min, max)
	}
	span := max - min + 1
	v := min + int(s.Float(label)*float64(span))
	if v > max {
		v = max
	}
	return v, nil
}

// Pick returns one of options, uniformly.
func (s *Source) Pick(label string, options []string) (string, error) {
	if len(options) == 0 {
		return "", ErrEmptyOptions
	}
	idx := int(s.Float(label) * float64(len(options)))
	if idx >= len(options) {
		idx = len(options) - 1
	}
	return options[idx], nil
}

// Weighted pairs an option with its relative likelihood.
type Weighted struct {
	Option string
	Weight float64
}

// WeightedPick returns one of the options with probability proportional to
// its weight. Options with non-positive weight are never picked.
func (s *Source) WeightedPick(label string, choices []Weighted) (string, error) {
	var total float64
	for _, c := range choices {
		if c.Weight > 0 {
			total += c.Weight
		}
	}
	if total <= 0 {
		return "", ErrEmptyOptions
	}

	r := s.Float(label) * total
	var acc float64
	for _, c := range choices {
		if c.Weight <= 0 {
			continue
		}
		acc += c.Weight
		if r < acc {
			return c.Option, nil
		}
	}
	// float accumulation can land exactly on total
	for i := len(choices) - 1; i >= 0; i-- {
		if choices[i].Weight > 0 {
			return choices[i].Option, nil
		}
	}
	return "", ErrEmptyOptions
}
