package events

import (
	"sync"

	"github.com/openleague/livematch/internal/telemetry"
)

// Handler processes an event. Returning an error logs it but does not stop dispatch.
type Handler func(Event) error

// Subscription identifies one registered handler so it can be removed later.
type Subscription struct {
	id      uint64
	typ     EventType
	matchID string
}

// Bus is a synchronous in-process event bus.
// Subscribers are invoked in registration order on the publisher's goroutine,
// type-keyed subscribers before match-keyed ones. For async processing,
// handlers should send to their own channel/goroutine.
type Bus struct {
	mu      sync.RWMutex
	nextID  uint64
	byType  map[EventType][]*entry
	byMatch map[string][]*entry
}

type entry struct {
	id uint64
	h  Handler
}

func NewBus() *Bus {
	return &Bus{
		byType:  make(map[EventType][]*entry),
		byMatch: make(map[string][]*entry),
	}
}

// Subscribe registers a handler for a given event type across all matches.
func (b *Bus) Subscribe(eventType EventType, h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.byType[eventType] = append(b.byType[eventType], &entry{id: b.nextID, h: h})
	return &Subscription{id: b.nextID, typ: eventType}
}

// SubscribeMatch registers a handler for every event of a single match.
func (b *Bus) SubscribeMatch(matchID string, h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.byMatch[matchID] = append(b.byMatch[matchID], &entry{id: b.nextID, h: h})
	return &Subscription{id: b.nextID, matchID: matchID}
}

// Unsubscribe removes a subscription. Removing one that is already gone,
// or passing nil, is a no-op.
func (b *Bus) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.matchID != "" {
		b.byMatch[s.matchID] = removeEntry(b.byMatch[s.matchID], s.id)
		if len(b.byMatch[s.matchID]) == 0 {
			delete(b.byMatch, s.matchID)
		}
		return
	}
	b.byType[s.typ] = removeEntry(b.byType[s.typ], s.id)
	if len(b.byType[s.typ]) == 0 {
		delete(b.byType, s.typ)
	}
}

func removeEntry(list []*entry, id uint64) []*entry {
	for i, e := range list {
		if e.id == id {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

// Publish dispatches an event to all handlers registered for its type and
// for its match. Game event payloads arriving without a priority are
// classified here.
func (b *Bus) Publish(e Event) {
	if ge, ok := e.Payload.(GameEvent); ok && ge.Priority == "" {
		ge.Priority = ClassifyPriority(ge.Type)
		e.Payload = ge
	}

	b.mu.RLock()
	handlers := make([]*entry, 0, len(b.byType[e.Type])+len(b.byMatch[e.MatchID]))
	handlers = append(handlers, b.byType[e.Type]...)
	if e.MatchID != "" {
		handlers = append(handlers, b.byMatch[e.MatchID]...)
	}
	b.mu.RUnlock()

	telemetry.Metrics.EventsPublished.Inc()
	for _, h := range handlers {
		b.dispatch(h, e)
	}
}

// dispatch isolates one handler invocation: a panic or error in one
// subscriber must not block the rest.
func (b *Bus) dispatch(en *entry, e Event) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.Metrics.HandlerPanics.Inc()
			telemetry.Errorf("event handler panic on %s: %v", e.Type, r)
		}
	}()
	if err := en.h(e); err != nil {
		telemetry.Warnf("event handler error on %s: %v", e.Type, err)
	}
}
