package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/switchboard/internal/events"
)

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for dispatch events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= 10 {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	eventsText := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENT STREAM"),
		eventsText,
	)

	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch e.Type {
	case events.TypeDispatchSelected:
		typeStyle = theme.StatusOK
	case events.TypeDispatchFailed:
		typeStyle = theme.StatusDegraded
	case events.TypeDispatchExhausted, events.TypeDispatchUnsupported:
		typeStyle = theme.StatusFailed
	case events.TypeDispatchDeprecated:
		typeStyle = theme.Highlight
	default:
		typeStyle = theme.Dim
	}

	typeName := typeStyle.Render(fmt.Sprintf("%-22s", e.Type))

	return fmt.Sprintf("%s %s %s", ts, typeName, describeEvent(e))
}

func describeEvent(e events.Event) string {
	var data events.DispatchData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		raw := string(e.Data)
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}

	var parts []string
	if data.Capability != "" {
		parts = append(parts, data.Capability)
	}
	if data.Handler != "" {
		parts = append(parts, data.Handler)
	}
	if data.Version != "" {
		parts = append(parts, "v"+data.Version)
	}
	if data.Error != "" {
		msg := data.Error
		if len(msg) > 40 {
			msg = msg[:40] + "..."
		}
		parts = append(parts, msg)
	}

	return strings.Join(parts, " ")
}
