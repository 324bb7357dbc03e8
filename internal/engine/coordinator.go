// Package engine drives capability dispatch: it walks the catalog's ordered
// candidate chain for a request and falls back to the next candidate when
// one declines or faults.
package engine

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/switchboard/internal/catalog"
	"github.com/mattjoyce/switchboard/internal/handler"
	"github.com/mattjoyce/switchboard/internal/log"
	"github.com/mattjoyce/switchboard/internal/observe"
)

// Result describes a successful dispatch.
type Result struct {
	RequestID  string        `json:"request_id"`
	Capability string        `json:"capability"`
	Handler    string        `json:"handler"`
	Attempts   int           `json:"attempts"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Coordinator executes requests against an immutable catalog. It holds no
// mutable state across requests, so a single Coordinator serves concurrent
// callers.
type Coordinator struct {
	catalog  *catalog.Catalog
	observer observe.Observer
	logger   *slog.Logger
}

// New creates a Coordinator. observer may be nil, in which case events are
// discarded.
func New(cat *catalog.Catalog, observer observe.Observer) *Coordinator {
	if observer == nil {
		observer = observe.Nop{}
	}
	return &Coordinator{
		catalog:  cat,
		observer: observer,
		logger:   log.WithComponent("engine"),
	}
}

// Execute resolves the candidate chain for the request's capability and
// tries each candidate in order until one handles it.
//
// A candidate whose CanHandle is false is skipped without side effects. A
// candidate that declines (false, nil) or faults (non-nil error) triggers
// fallback to the next candidate; faults are contained here and never
// propagate directly. The two terminal failures are
// *UnsupportedCapabilityError and *ExhaustedError.
func (c *Coordinator) Execute(req *handler.Request) (*Result, error) {
	requestID := uuid.NewString()
	capability := req.Capability()
	logger := c.logger.With("request_id", requestID, "capability", capability)
	started := time.Now()

	candidates := c.catalog.Lookup(capability)
	if len(candidates) == 0 {
		logger.Warn("unsupported capability")
		return nil, &UnsupportedCapabilityError{Capability: capability}
	}

	c.observer.SpanStart(capability)

	var lastErr error
	attempts := 0
	for _, candidate := range candidates {
		meta := candidate.Metadata()

		if !candidate.CanHandle(req) {
			logger.Debug("candidate not applicable", "handler", meta.Name)
			continue
		}

		if meta.Deprecated {
			c.observer.DeprecationWarning(meta.Name, meta.Version.String())
		}

		attempts++
		handled, err := candidate.Execute(req)
		if err != nil {
			// Fallback step: a fault means "try the next candidate",
			// never a fatal condition for the request.
			lastErr = err
			c.observer.HandlerFailed(capability, meta.Name, err)
			logger.Warn("candidate faulted", "handler", meta.Name, "error", err)
			continue
		}
		if !handled {
			logger.Debug("candidate declined", "handler", meta.Name)
			continue
		}

		c.observer.HandlerSelected(capability, meta.Name)
		result := &Result{
			RequestID:  requestID,
			Capability: capability,
			Handler:    meta.Name,
			Attempts:   attempts,
			Elapsed:    time.Since(started),
		}
		logger.Info("dispatch succeeded", "handler", meta.Name, "attempts", attempts)
		return result, nil
	}

	logger.Warn("all candidates exhausted", "attempts", attempts, "last_error", lastErr)
	return nil, &ExhaustedError{
		Capability: capability,
		Attempts:   attempts,
		LastErr:    lastErr,
	}
}

// Catalog exposes the underlying catalog for read-only host surfaces.
func (c *Coordinator) Catalog() *catalog.Catalog {
	return c.catalog
}
