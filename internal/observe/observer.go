// Package observe defines the dispatch observability sink. Observers are
// side-effect only: the engine never consults them for control flow, and a
// missing or failing observer must not change dispatch outcomes.
package observe

import "log/slog"

// Observer receives dispatch lifecycle events keyed by capability and
// handler name.
type Observer interface {
	SpanStart(capability string)
	HandlerSelected(capability, name string)
	DeprecationWarning(name, version string)
	HandlerFailed(capability, name string, err error)
}

// Nop is an Observer that discards every event.
type Nop struct{}

func (Nop) SpanStart(string)                    {}
func (Nop) HandlerSelected(string, string)      {}
func (Nop) DeprecationWarning(string, string)   {}
func (Nop) HandlerFailed(string, string, error) {}

// Logger emits dispatch events as structured log records.
type Logger struct {
	log *slog.Logger
}

// NewLogger wraps a slog logger as an Observer.
func NewLogger(log *slog.Logger) *Logger {
	return &Logger{log: log}
}

func (l *Logger) SpanStart(capability string) {
	l.log.Debug("dispatch started", "capability", capability)
}

func (l *Logger) HandlerSelected(capability, name string) {
	l.log.Info("handler selected", "capability", capability, "handler", name)
}

func (l *Logger) DeprecationWarning(name, version string) {
	l.log.Warn("deprecated handler invoked", "handler", name, "version", version)
}

func (l *Logger) HandlerFailed(capability, name string, err error) {
	l.log.Warn("handler failed, falling back", "capability", capability, "handler", name, "error", err)
}

// Multi fans events out to several observers in order.
type Multi []Observer

func (m Multi) SpanStart(capability string) {
	for _, o := range m {
		o.SpanStart(capability)
	}
}

func (m Multi) HandlerSelected(capability, name string) {
	for _, o := range m {
		o.HandlerSelected(capability, name)
	}
}

func (m Multi) DeprecationWarning(name, version string) {
	for _, o := range m {
		o.DeprecationWarning(name, version)
	}
}

func (m Multi) HandlerFailed(capability, name string, err error) {
	for _, o := range m {
		o.HandlerFailed(capability, name, err)
	}
}
