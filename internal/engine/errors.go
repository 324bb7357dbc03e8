package engine

import "fmt"

// UnsupportedCapabilityError is returned when no handler is registered for
// the requested capability. It is terminal and never retried.
type UnsupportedCapabilityError struct {
	Capability string
}

func (e *UnsupportedCapabilityError) Error() string {
	return fmt.Sprintf("no handler registered for capability %q", e.Capability)
}

// ExhaustedError is returned when every eligible candidate declined or
// faulted. LastErr is the last fault encountered in iteration order, or nil
// when every candidate merely declined.
type ExhaustedError struct {
	Capability string
	Attempts   int
	LastErr    error
}

func (e *ExhaustedError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("all %d candidates for capability %q exhausted, last error: %v",
			e.Attempts, e.Capability, e.LastErr)
	}
	return fmt.Sprintf("all %d candidates for capability %q declined", e.Attempts, e.Capability)
}

func (e *ExhaustedError) Unwrap() error { return e.LastErr }
