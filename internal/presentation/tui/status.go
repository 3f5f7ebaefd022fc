package tui

import (
	"github.com/muesli/termenv"

	"github.com/aretw0/chainflow/pkg/domain"
)

var statusColors = map[domain.Status]string{
	domain.StatusReady:            "#94a3b8",
	domain.StatusStart:            "#38bdf8",
	domain.StatusPauseForInput:    "#facc15",
	domain.StatusPauseForWakeUp:   "#facc15",
	domain.StatusError:            "#f87171",
	domain.StatusFinishedNormal:   "#4ade80",
	domain.StatusFinishedAbnormal: "#ef4444",
}

// StatusLabel colors a run status for terminal listings.
func StatusLabel(s domain.Status) string {
	p := termenv.EnvColorProfile()
	color, ok := statusColors[s]
	if !ok {
		return string(s)
	}
	out := p.String(string(s)).Foreground(p.Color(color))
	if s.IsFinished() {
		return out.String()
	}
	return out.Bold().String()
}
