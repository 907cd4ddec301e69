package session

import (
	"sync"
	"time"
)

// EventType names what happened in a session.
type EventType string

const (
	EventAccount        EventType = "account"
	EventPositionOpened EventType = "position_opened"
	// EventPositionClosed is a close the user asked for.
	EventPositionClosed EventType = "position_closed"
	// EventLiquidation is a margin call; its positions are not also
	// reported as position_closed.
	EventLiquidation    EventType = "liquidation"
	EventOrderPlaced    EventType = "order_placed"
	EventOrderCancelled EventType = "order_cancelled"
)

// Event is one notification published on a Bus.
type Event struct {
	Type    EventType `json:"type"`
	Account string    `json:"account"`
	Time    time.Time `json:"time"`
	Data    any       `json:"data"`
}

// Bus fans events out to subscribers. Publishing never blocks: a subscriber
// whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	buffer int
}

// NewBus returns a bus whose subscriptions buffer up to buffer events.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 100
	}
	return &Bus{subs: make(map[chan Event]struct{}), buffer: buffer}
}

func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.RUnlock()
}

// Subscribers reports how many subscriptions are open.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
