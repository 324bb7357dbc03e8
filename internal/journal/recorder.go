package journal

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/switchboard/internal/engine"
	"github.com/mattjoyce/switchboard/internal/handler"
	"github.com/mattjoyce/switchboard/internal/log"
)

// Dispatcher is the dispatch operation the recorder wraps.
type Dispatcher interface {
	Execute(req *handler.Request) (*engine.Result, error)
}

// RecordingDispatcher decorates a Dispatcher and persists each outcome.
// Journal failures are logged, never surfaced: auditing must not change
// dispatch results.
type RecordingDispatcher struct {
	next   Dispatcher
	store  *Store
	logger *slog.Logger
}

// NewRecordingDispatcher wraps next so every dispatch lands in the journal.
func NewRecordingDispatcher(next Dispatcher, store *Store) *RecordingDispatcher {
	return &RecordingDispatcher{
		next:   next,
		store:  store,
		logger: log.WithComponent("journal"),
	}
}

// Execute dispatches and records the outcome.
func (d *RecordingDispatcher) Execute(req *handler.Request) (*engine.Result, error) {
	started := time.Now()
	result, err := d.next.Execute(req)

	rec := Record{
		Capability: req.Capability(),
		Duration:   time.Since(started),
	}

	switch {
	case err == nil:
		rec.RequestID = result.RequestID
		rec.Outcome = OutcomeSuccess
		rec.Handler = result.Handler
		rec.Attempts = result.Attempts
		rec.Duration = result.Elapsed
	default:
		var exhausted *engine.ExhaustedError
		var unsupported *engine.UnsupportedCapabilityError
		switch {
		case errors.As(err, &exhausted):
			rec.Outcome = OutcomeExhausted
			rec.Attempts = exhausted.Attempts
			if exhausted.LastErr != nil {
				msg := exhausted.LastErr.Error()
				rec.LastError = &msg
			}
		case errors.As(err, &unsupported):
			rec.Outcome = OutcomeUnsupported
		default:
			msg := err.Error()
			rec.Outcome = OutcomeExhausted
			rec.LastError = &msg
		}
		// Terminal errors carry no engine request ID; mint one for the row.
		rec.RequestID = uuid.NewString()
	}

	// Record with a fresh context: the request's context may already be
	// cancelled, and the audit row should land regardless.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if recErr := d.store.Record(ctx, rec); recErr != nil {
		d.logger.Error("failed to record dispatch", "capability", rec.Capability, "error", recErr)
	}

	return result, err
}
