// Package handler defines the capability handler contract shared by the
// catalog and the execution engine. A handler advertises immutable metadata,
// answers whether it applies to a given request, and executes it with a
// three-way outcome: handled, declined, or faulted.
package handler

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Metadata is the immutable descriptor attached to every handler.
type Metadata struct {
	Name       string
	Version    *semver.Version
	Capability string
	Priority   int // higher = preferred
	Deprecated bool
}

// Validate checks the invariants every registered handler must satisfy.
func (m Metadata) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("handler name is required")
	}
	if strings.TrimSpace(m.Capability) == "" {
		return fmt.Errorf("handler %q: capability is required", m.Name)
	}
	if m.Version == nil {
		return fmt.Errorf("handler %q: version is required", m.Name)
	}
	return nil
}

// Handler is one implementation of a capability. Implementations must be
// stateless and reentrant: the engine may invoke the same handler for
// concurrent requests and never mutates it.
//
// Execute returns (true, nil) when the request was handled, (false, nil)
// when the handler declines without side effects, and a non-nil error when
// it faulted. A fault is contained by the engine and triggers fallback to
// the next candidate.
type Handler interface {
	Metadata() Metadata
	CanHandle(req *Request) bool
	Execute(req *Request) (bool, error)
}

// Func adapts plain functions into a Handler for in-process registration.
type Func struct {
	meta      Metadata
	canHandle func(*Request) bool
	execute   func(*Request) (bool, error)
}

// New creates an in-process handler. canHandle may be nil, in which case the
// handler accepts every request for its capability.
func New(meta Metadata, canHandle func(*Request) bool, execute func(*Request) (bool, error)) *Func {
	return &Func{meta: meta, canHandle: canHandle, execute: execute}
}

func (f *Func) Metadata() Metadata { return f.meta }

func (f *Func) CanHandle(req *Request) bool {
	if f.canHandle == nil {
		return true
	}
	return f.canHandle(req)
}

func (f *Func) Execute(req *Request) (bool, error) {
	if f.execute == nil {
		return false, nil
	}
	return f.execute(req)
}
