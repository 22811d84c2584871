package stream

import (
	"context"
	"sync"
	"time"
)

// TransitionEvent describes a committed lifecycle transition, as handed to
// the post-transition hook by the lifecycle services.
type TransitionEvent struct {
	Entity    string    `json:"entity"`
	ID        string    `json:"id"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

// Stream fan-outs transition events to all active subscribers (SSE clients,
// future notification senders). Slow subscribers drop events rather than
// block the publisher.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan TransitionEvent
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan TransitionEvent)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan TransitionEvent {
	ch := make(chan TransitionEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish delivers the event to every subscriber without blocking.
func (s *Stream) Publish(ev TransitionEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Hook adapts the stream to the lifecycle hook signature.
func (s *Stream) Hook() func(ctx context.Context, entity, id, from, to string) {
	return func(_ context.Context, entity, id, from, to string) {
		s.Publish(TransitionEvent{Entity: entity, ID: id, From: from, To: to})
	}
}
