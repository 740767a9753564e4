// Package bus provides an in-process notification bus for trace lifecycle
// events, used to keep loaded-trace caches consistent with the catalog.
package bus

import (
	"sync"

	"github.com/google/uuid"
)

// EventType represents the kind of trace lifecycle event.
type EventType int

const (
	TraceRegistered EventType = iota
	TraceDeleted
	ReplayFinished
)

// Event represents one trace lifecycle notification.
type Event struct {
	Type      EventType
	TraceID   string
	StepCount int
	Timestamp int64
}

// Notifier is an in-process pub/sub bus for trace events.
type Notifier struct {
	subscribers sync.Map
	bufferSize  int
}

// NewNotifier creates a notifier whose subscriber channels buffer up to
// bufferSize events.
func NewNotifier(bufferSize int) *Notifier {
	return &Notifier{bufferSize: bufferSize}
}

// Publish delivers an event to all matching subscribers. Non-blocking: a
// subscriber whose channel is full misses the event.
func (n *Notifier) Publish(ev Event) {
	n.subscribers.Range(func(key, value interface{}) bool {
		sub := value.(*Subscriber)
		if sub.matches(ev.TraceID) {
			select {
			case sub.Ch <- ev:
			default:
			}
		}
		return true
	})
}

// Subscribe registers a subscriber with the given ID. Trace ID prefixes in
// filters restrict delivery; an empty filter list receives everything.
func (n *Notifier) Subscribe(id string, filters []string) *Subscriber {
	sub := &Subscriber{
		ID:      id,
		Filters: filters,
		Ch:      make(chan Event, n.bufferSize),
	}
	n.subscribers.Store(sub.ID, sub)
	return sub
}

// SubscribeAutoID registers a subscriber with a generated ID and returns
// its channel.
func (n *Notifier) SubscribeAutoID(filters ...string) chan Event {
	sub := n.Subscribe("sub_"+uuid.New().String(), filters)
	return sub.Ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (n *Notifier) Unsubscribe(subID string) {
	if value, ok := n.subscribers.LoadAndDelete(subID); ok {
		close(value.(*Subscriber).Ch)
	}
}

// Subscriber represents one bus subscriber.
type Subscriber struct {
	ID      string
	Filters []string
	Ch      chan Event
}

func (s *Subscriber) matches(traceID string) bool {
	if len(s.Filters) == 0 {
		return true
	}
	for _, filter := range s.Filters {
		if len(filter) == 0 {
			return true
		}
		if len(traceID) >= len(filter) && traceID[:len(filter)] == filter {
			return true
		}
	}
	return false
}
