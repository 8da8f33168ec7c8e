package sse

import (
	"context"
	"rallysphere/internal/models"
	"sync"
)

const (
	UpdateCreated    = "event.created"
	UpdateChanged    = "event.updated"
	UpdateMembership = "event.membership"
)

// allClubs is the key for subscribers that want every club's events.
const allClubs = ""

// EventUpdate is one message on the live feed.
type EventUpdate struct {
	Type  string       `json:"type"`
	Event models.Event `json:"event"`
}

// EventFeed fans event changes out to live subscribers, keyed by club.
type EventFeed struct {
	clients map[string][]chan EventUpdate
	mu      sync.RWMutex
	buffer  int
}

func NewEventFeed() *EventFeed {
	return &EventFeed{
		clients: make(map[string][]chan EventUpdate),
		buffer:  16,
	}
}

// Subscribe returns a channel receiving updates for clubID, or for every
// club when clubID is empty. The channel is closed once ctx is done.
func (f *EventFeed) Subscribe(ctx context.Context, clubID string) chan EventUpdate {
	ch := make(chan EventUpdate, f.buffer)

	f.mu.Lock()
	f.clients[clubID] = append(f.clients[clubID], ch)
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.remove(clubID, ch)
	}()

	return ch
}

// Listen invokes callback for every update until the returned function is
// called.
func (f *EventFeed) Listen(clubID string, callback func(EventUpdate)) (unsubscribe func()) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := f.Subscribe(ctx, clubID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range ch {
			callback(update)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

// Publish broadcasts to the event's club subscribers and to global
// subscribers. Subscribers with a full buffer miss the update.
func (f *EventFeed) Publish(updateType string, event models.Event) {
	update := EventUpdate{Type: updateType, Event: event}

	f.mu.RLock()
	defer f.mu.RUnlock()

	targets := f.clients[allClubs]
	if event.ClubID != allClubs {
		targets = append(targets[:len(targets):len(targets)], f.clients[event.ClubID]...)
	}
	for _, ch := range targets {
		select {
		case ch <- update:
		default:
		}
	}
}

func (f *EventFeed) remove(clubID string, ch chan EventUpdate) {
	f.mu.Lock()
	defer f.mu.Unlock()

	clients := f.clients[clubID]
	for i, c := range clients {
		if c == ch {
			f.clients[clubID] = append(clients[:i], clients[i+1:]...)
			close(ch)
			break
		}
	}
	if len(f.clients[clubID]) == 0 {
		delete(f.clients, clubID)
	}
}

// ClientCount returns the number of subscribers for clubID.
func (f *EventFeed) ClientCount(clubID string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients[clubID])
}
