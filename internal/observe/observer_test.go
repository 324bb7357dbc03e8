package observe

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/mattjoyce/switchboard/internal/events"
)

type countingObserver struct {
	starts   int
	selected int
	warned   int
	failed   int
}

func (c *countingObserver) SpanStart(string)                    { c.starts++ }
func (c *countingObserver) HandlerSelected(string, string)      { c.selected++ }
func (c *countingObserver) DeprecationWarning(string, string)   { c.warned++ }
func (c *countingObserver) HandlerFailed(string, string, error) { c.failed++ }

func TestMultiFansOutToAll(t *testing.T) {
	a := &countingObserver{}
	b := &countingObserver{}
	m := Multi{a, b}

	m.SpanStart("render")
	m.HandlerSelected("render", "proxy-renderer")
	m.DeprecationWarning("legacy-renderer", "0.9.0")
	m.HandlerFailed("render", "proxy-renderer", errors.New("boom"))

	for _, c := range []*countingObserver{a, b} {
		if c.starts != 1 || c.selected != 1 || c.warned != 1 || c.failed != 1 {
			t.Fatalf("expected every event delivered once, got %+v", c)
		}
	}
}

func TestHubObserverPublishesDispatchEvents(t *testing.T) {
	hub := events.NewHub(8)
	o := NewHubObserver(hub)

	o.SpanStart("render")
	o.HandlerSelected("render", "proxy-renderer")
	o.DeprecationWarning("legacy-renderer", "0.9.0")
	o.HandlerFailed("render", "proxy-renderer", errors.New("boom"))

	got := hub.SnapshotSince(0)
	if len(got) != 4 {
		t.Fatalf("expected 4 events, got %d", len(got))
	}

	wantTypes := []string{
		events.TypeDispatchStart,
		events.TypeDispatchSelected,
		events.TypeDispatchDeprecated,
		events.TypeDispatchFailed,
	}
	for i, want := range wantTypes {
		if got[i].Type != want {
			t.Fatalf("expected event %d type %q, got %q", i, want, got[i].Type)
		}
	}

	var failed events.DispatchData
	if err := json.Unmarshal(got[3].Data, &failed); err != nil {
		t.Fatalf("failed to decode event payload: %v", err)
	}
	if failed.Handler != "proxy-renderer" || failed.Error != "boom" {
		t.Fatalf("unexpected failure payload: %+v", failed)
	}
}
