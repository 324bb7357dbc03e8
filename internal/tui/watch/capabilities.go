package watch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/switchboard/internal/events"
)

// CapabilityState accumulates dispatch activity for one capability.
type CapabilityState struct {
	Name       string
	Candidates []string

	Dispatches  int
	Fallbacks   int
	Exhausted   int
	Unsupported bool

	LastHandler string
	LastOutcome string // "", "ok", "failed", "exhausted"
	LastSeen    time.Time
}

// updateCapabilityState folds one dispatch event into the capability table.
func updateCapabilityState(caps map[string]*CapabilityState, e events.Event) {
	var data events.DispatchData
	_ = json.Unmarshal(e.Data, &data)
	if data.Capability == "" {
		return
	}

	st, ok := caps[data.Capability]
	if !ok {
		st = &CapabilityState{Name: data.Capability}
		caps[data.Capability] = st
	}
	st.LastSeen = e.At

	switch e.Type {
	case events.TypeDispatchStart:
		st.Dispatches++
	case events.TypeDispatchSelected:
		st.LastHandler = data.Handler
		st.LastOutcome = "ok"
	case events.TypeDispatchFailed:
		st.Fallbacks++
		st.LastHandler = data.Handler
		st.LastOutcome = "failed"
	case events.TypeDispatchExhausted:
		st.Exhausted++
		st.LastOutcome = "exhausted"
	case events.TypeDispatchUnsupported:
		st.Unsupported = true
	}
}

func renderCapabilities(caps map[string]*CapabilityState, selected int, theme Theme, width int) string {
	innerWidth := width - 4

	if len(caps) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("CAPABILITIES"),
			theme.Dim.Render("  No capabilities registered"),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	names := make([]string, 0, len(caps))
	for name := range caps {
		names = append(names, name)
	}
	sort.Strings(names)

	header := theme.Header.Render(fmt.Sprintf("  %-24s %-10s %-10s %-10s %s",
		"CAPABILITY", "DISPATCHES", "FALLBACKS", "EXHAUSTED", "LAST HANDLER"))

	lines := []string{header}
	for i, name := range names {
		st := caps[name]

		marker := "  "
		if i == selected {
			marker = "> "
		}

		var outcomeStyle lipgloss.Style
		switch st.LastOutcome {
		case "ok":
			outcomeStyle = theme.StatusOK
		case "failed":
			outcomeStyle = theme.StatusDegraded
		case "exhausted":
			outcomeStyle = theme.StatusFailed
		default:
			outcomeStyle = theme.Dim
		}

		lastHandler := st.LastHandler
		if lastHandler == "" {
			lastHandler = "-"
		}

		row := fmt.Sprintf("%s%-24s %-10d %-10d %-10d %s",
			marker, st.Name, st.Dispatches, st.Fallbacks, st.Exhausted,
			outcomeStyle.Render(lastHandler))
		if i == selected {
			row = theme.Highlight.Render(row)
		}
		lines = append(lines, row)

		// Show the candidate chain for the selected capability.
		if i == selected && len(st.Candidates) > 0 {
			chain := theme.Dim.Render("    chain: " + strings.Join(st.Candidates, " → "))
			lines = append(lines, chain)
		}
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("CAPABILITIES"),
		strings.Join(lines, "\n"),
	)

	return theme.Border.Width(innerWidth).Render(content)
}
