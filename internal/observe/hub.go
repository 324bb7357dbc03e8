package observe

import "github.com/mattjoyce/switchboard/internal/events"

// HubObserver publishes dispatch lifecycle events to an in-memory hub for
// SSE streaming and the watch TUI.
type HubObserver struct {
	hub *events.Hub
}

// NewHubObserver wraps an event hub as an Observer.
func NewHubObserver(hub *events.Hub) *HubObserver {
	return &HubObserver{hub: hub}
}

func (o *HubObserver) SpanStart(capability string) {
	o.hub.Publish(events.TypeDispatchStart, events.DispatchData{Capability: capability})
}

func (o *HubObserver) HandlerSelected(capability, name string) {
	o.hub.Publish(events.TypeDispatchSelected, events.DispatchData{Capability: capability, Handler: name})
}

func (o *HubObserver) DeprecationWarning(name, version string) {
	o.hub.Publish(events.TypeDispatchDeprecated, events.DispatchData{Handler: name, Version: version})
}

func (o *HubObserver) HandlerFailed(capability, name string, err error) {
	o.hub.Publish(events.TypeDispatchFailed, events.DispatchData{
		Capability: capability,
		Handler:    name,
		Error:      err.Error(),
	})
}
