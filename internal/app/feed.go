package app

import (
	"sync"
	"time"
)

// Event types pushed to admin subscribers.
const (
	EventSessionStarted   = "session.started"
	EventSessionCompleted = "session.completed"
	EventSessionValidity  = "session.validity"
)

// Event is one entry of the admin live feed.
type Event struct {
	Type    string    `json:"type"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

// Feed fans session lifecycle events out to live admin subscribers.
// A nil *Feed is valid and drops everything.
type Feed struct {
	now         func() time.Time
	mu          sync.Mutex
	subscribers map[chan Event]struct{}
}

func NewFeed() *Feed {
	return &Feed{now: time.Now, subscribers: make(map[chan Event]struct{})}
}

// Subscribe registers a buffered channel of events.
// The caller must invoke the returned cancel function to avoid leaks.
func (f *Feed) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 8)
	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subscribers[ch]; ok {
			delete(f.subscribers, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber without blocking.
func (f *Feed) Publish(eventType string, payload any) {
	if f == nil {
		return
	}
	ev := Event{Type: eventType, Payload: payload, At: f.now().UTC()}

	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers {
		select {
		case ch <- ev:
		default:
			// Slow subscriber: drop its oldest event to make room.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

// Subscribers reports the number of live subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}
