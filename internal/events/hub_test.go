package events

import (
	"testing"
	"time"
)

func TestHubPublishSubscribe(t *testing.T) {
	hub := NewHub(8)

	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Publish(TypeDispatchStart, DispatchData{Capability: "render"})

	select {
	case ev := <-ch:
		if ev.Type != TypeDispatchStart {
			t.Fatalf("expected event type %q, got %q", TypeDispatchStart, ev.Type)
		}
		if ev.ID != 1 {
			t.Fatalf("expected first event ID 1, got %d", ev.ID)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
	}
}

func TestHubSnapshotSince(t *testing.T) {
	hub := NewHub(8)

	hub.Publish(TypeDispatchStart, DispatchData{Capability: "render"})
	hub.Publish(TypeDispatchSelected, DispatchData{Capability: "render", Handler: "proxy-renderer"})
	hub.Publish(TypeDispatchFailed, DispatchData{Capability: "render", Handler: "proxy-renderer", Error: "boom"})

	all := hub.SnapshotSince(0)
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	if all[0].ID != 1 || all[2].ID != 3 {
		t.Fatalf("expected oldest-first ordering, got %+v", all)
	}

	since := hub.SnapshotSince(2)
	if len(since) != 1 || since[0].Type != TypeDispatchFailed {
		t.Fatalf("expected only events after ID 2, got %+v", since)
	}
}

func TestHubRingOverwritesOldest(t *testing.T) {
	hub := NewHub(3)

	for i := 0; i < 5; i++ {
		hub.Publish(TypeDispatchStart, nil)
	}

	snapshot := hub.SnapshotSince(0)
	if len(snapshot) != 3 {
		t.Fatalf("expected ring capped at 3 events, got %d", len(snapshot))
	}
	if snapshot[0].ID != 3 || snapshot[2].ID != 5 {
		t.Fatalf("expected oldest entries evicted, got %+v", snapshot)
	}
}

func TestHubSlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub(4)

	// Subscriber that never drains its channel.
	_, cancel := hub.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 300; i++ {
			hub.Publish(TypeDispatchStart, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on slow subscriber")
	}
}
