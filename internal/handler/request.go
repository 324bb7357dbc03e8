package handler

import "context"

// Request carries one capability dispatch: the capability name (immutable
// for the life of the request), ad-hoc parameters, and the caller's context
// for cooperative cancellation. The engine never reads parameters back, so
// a handler mutating its own view of Params is not observed.
type Request struct {
	capability string
	Params     map[string]any

	ctx context.Context
}

// NewRequest creates a request for one dispatch. ctx must not be nil; pass
// context.Background() when no cancellation is needed.
func NewRequest(ctx context.Context, capability string, params map[string]any) *Request {
	if ctx == nil {
		ctx = context.Background()
	}
	if params == nil {
		params = make(map[string]any)
	}
	return &Request{capability: capability, Params: params, ctx: ctx}
}

// Capability returns the capability this request asks for.
func (r *Request) Capability() string { return r.capability }

// Context returns the cancellation context. Handlers performing blocking
// work are expected to honor it; the engine itself does not abort a running
// handler.
func (r *Request) Context() context.Context { return r.ctx }

// Param returns a single parameter value.
func (r *Request) Param(key string) (any, bool) {
	v, ok := r.Params[key]
	return v, ok
}

// StringParam returns a parameter as a string, with ok=false when absent or
// not a string.
func (r *Request) StringParam(key string) (string, bool) {
	v, ok := r.Params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
