// Package stream fans project location changes out to live map subscribers.
package stream

import (
	"context"
	"sync"
	"time"

	"sitetrack.io/internal/model"
	"sitetrack.io/internal/obs"
)

// Marker is a project plotted on the map.
type Marker struct {
	ProjectID string              `json:"project_id"`
	Title     string              `json:"title"`
	Status    model.ProjectStatus `json:"status"`
	Progress  int                 `json:"progress"`
	Location  string              `json:"location,omitempty"`
	Lat       float64             `json:"lat"`
	Lng       float64             `json:"lng"`
	// InRange is false when the resolved point lies outside WGS84 bounds.
	InRange bool `json:"in_range"`
}

// Kind distinguishes marker updates from removals.
type Kind string

const (
	KindUpsert Kind = "upsert"
	KindDelete Kind = "delete"
)

// Event describes a change to one project's marker.
type Event struct {
	Kind      Kind      `json:"kind"`
	Marker    Marker    `json:"marker"`
	Timestamp time.Time `json:"timestamp"`

	// Project is the snapshot the event was built from. Subscribers use it to
	// filter removals, which can no longer be checked against the store.
	Project model.Project `json:"-"`
}

// Stream fan-outs marker events to all active subscribers (SSE clients).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber and returns a channel which will receive events.
// The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()
	obs.MapSubscribers(1)

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
		obs.MapSubscribers(-1)
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// Subscribers returns the number of open subscriptions.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
