package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

// PrintBanner writes the sidecar banner and version to w.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	s1 := termenv.String("  ___ _    _                 ").Foreground(p.Color("#34d399"))
	s2 := termenv.String(" / __(_)__| |___ __ __ _ _ _ ").Foreground(p.Color("#2dd4bf"))
	s3 := termenv.String(" \\__ \\ / _` / -_) _/ _` | '_|").Foreground(p.Color("#22d3ee"))
	s4 := termenv.String(" |___/_\\__,_\\___\\__\\__,_|_|  ").Foreground(p.Color("#38bdf8"))
	v := termenv.String("  v" + strings.TrimSpace(version)).Faint()

	fmt.Fprintln(w)
	fmt.Fprintln(w, s1)
	fmt.Fprintln(w, s2)
	fmt.Fprintln(w, s3)
	fmt.Fprintln(w, s4)
	fmt.Fprintln(w, v)
	fmt.Fprintln(w)
}
