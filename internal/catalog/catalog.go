// Package catalog turns an unordered collection of handler registrations
// into a build-once, read-only index keyed by capability.
package catalog

import (
	"fmt"
	"sort"

	"github.com/mattjoyce/switchboard/internal/handler"
)

// Catalog is the immutable capability index. It is safe for concurrent
// reads without synchronization: nothing is mutated after Build returns.
type Catalog struct {
	byCapability map[string][]handler.Handler
	total        int
}

// Build groups handlers by capability and orders each group for dispatch.
//
// Candidate order within a capability is priority descending, then version
// descending, then name ascending. The name key exists so that two runs fed
// the same registrations in different order always produce the same chain;
// relying on insertion order would make fallback behavior dependent on how
// the host happened to enumerate its handlers.
func Build(handlers []handler.Handler) (*Catalog, error) {
	byCapability := make(map[string][]handler.Handler)

	for _, h := range handlers {
		if h == nil {
			return nil, fmt.Errorf("nil handler in registration list")
		}
		meta := h.Metadata()
		if err := meta.Validate(); err != nil {
			return nil, fmt.Errorf("invalid handler registration: %w", err)
		}
		byCapability[meta.Capability] = append(byCapability[meta.Capability], h)
	}

	total := 0
	for _, group := range byCapability {
		sort.SliceStable(group, func(i, j int) bool {
			a, b := group[i].Metadata(), group[j].Metadata()
			if a.Priority != b.Priority {
				return a.Priority > b.Priority
			}
			if c := a.Version.Compare(b.Version); c != 0 {
				return c > 0
			}
			return a.Name < b.Name
		})
		total += len(group)
	}

	return &Catalog{byCapability: byCapability, total: total}, nil
}

// Lookup returns the ordered candidate chain for a capability. The returned
// slice aliases the frozen backing storage; callers must not modify it. A
// capability with no registrations yields nil, never an error.
func (c *Catalog) Lookup(capability string) []handler.Handler {
	return c.byCapability[capability]
}

// Capabilities returns the distinct capability names, sorted.
func (c *Catalog) Capabilities() []string {
	out := make([]string, 0, len(c.byCapability))
	for capability := range c.byCapability {
		out = append(out, capability)
	}
	sort.Strings(out)
	return out
}

// Size returns the total number of registered handlers across capabilities.
func (c *Catalog) Size() int {
	return c.total
}
