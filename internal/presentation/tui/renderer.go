package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
)

// NewRenderer returns a function that renders markdown using glamour.
func NewRenderer() func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Automatically detect light/dark background
	)

	return func(markdown string) (string, error) {
		if err != nil {
			return markdown, err
		}
		return r.Render(markdown)
	}
}

// ReadyReport describes a discovered worker as markdown.
func ReadyReport(pid, port int, baseURL string) string {
	var b strings.Builder
	b.WriteString("## Sidecar ready\n\n")
	b.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| PID | %d |\n", pid)
	fmt.Fprintf(&b, "| Port | %d |\n", port)
	fmt.Fprintf(&b, "| Ping | `%s/ping` |\n", baseURL)
	fmt.Fprintf(&b, "| Version | `%s/version` |\n", baseURL)
	return b.String()
}
