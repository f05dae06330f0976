package tui

import (
	"os"

	"github.com/aretw0/sidecar/pkg/domain"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// StatusLine renders a discovery status, coloured when profile supports it.
// Pass termenv.Ascii for plain output.
func StatusLine(st domain.Status, profile termenv.Profile) string {
	var color string
	switch st.Phase {
	case domain.PhaseReady:
		color = "#22c55e"
	case domain.PhaseError:
		color = "#ef4444"
	default:
		color = "#eab308"
	}
	return termenv.String("● "+st.String()).Foreground(profile.Color(color)).String()
}

// Profile returns the colour profile for f: the detected one on a terminal,
// plain ASCII otherwise.
func Profile(f *os.File) termenv.Profile {
	if !IsTerminal(f) {
		return termenv.Ascii
	}
	return termenv.NewOutput(f).Profile
}
