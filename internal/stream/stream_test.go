package stream

import (
	"context"
	"testing"
	"time"
)

func TestPublishReachesSubscribers(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := s.Subscribe(ctx)
	b := s.Subscribe(ctx)
	s.Publish(Event{Kind: KindUpsert, Marker: Marker{ProjectID: "p1"}})

	for _, ch := range []<-chan Event{a, b} {
		select {
		case evt := <-ch:
			if evt.Marker.ProjectID != "p1" {
				t.Fatalf("unexpected event: %+v", evt)
			}
			if evt.Timestamp.IsZero() {
				t.Fatal("expected timestamp to be filled")
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestSubscriptionClosesWithContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
	if n := s.Subscribers(); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := s.Subscribe(ctx)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.Publish(Event{Kind: KindUpsert})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	if got := len(ch); got != cap(ch) {
		t.Fatalf("expected buffer to be full (%d), got %d", cap(ch), got)
	}
}
