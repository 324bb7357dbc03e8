package watch

import (
	"strings"
	"time"
)

// Ticker rotates through frames to show the watch loop is alive. It stops
// rotating if ticks stop arriving, which reads as a freeze.
type Ticker struct {
	frames   []string
	index    int
	lastTick time.Time
}

func NewTicker() Ticker {
	return Ticker{
		frames:   []string{"⟲", "⟳"},
		lastTick: time.Now(),
	}
}

func (t *Ticker) Tick() {
	t.index = (t.index + 1) % len(t.frames)
	t.lastTick = time.Now()
}

func (t Ticker) Current() string {
	return t.frames[t.index]
}

// Pulse shows dispatch activity with a decaying dot pattern. It lights up
// on events and fades over time.
type Pulse struct {
	dots      int
	lastEvent time.Time
}

func NewPulse() Pulse {
	return Pulse{}
}

func (p *Pulse) OnEvent() {
	p.dots = 5
	p.lastEvent = time.Now()
}

// Decay fades the pulse dots based on time since the last event.
func (p *Pulse) Decay() {
	if p.dots == 0 {
		return
	}
	elapsed := time.Since(p.lastEvent)
	switch {
	case elapsed > 10*time.Second:
		p.dots = 0
	case elapsed > 8*time.Second:
		p.dots = 1
	case elapsed > 6*time.Second:
		p.dots = 2
	case elapsed > 4*time.Second:
		p.dots = 3
	case elapsed > 2*time.Second:
		p.dots = 4
	}
}

func (p Pulse) Render(theme Theme) string {
	var result strings.Builder
	for i := range 5 {
		if i < p.dots {
			result.WriteString(theme.PulseOn.Render("●"))
		} else {
			result.WriteString(theme.PulseOff.Render("○"))
		}
	}
	return result.String()
}

func (p Pulse) LastEvent() time.Time {
	return p.lastEvent
}
