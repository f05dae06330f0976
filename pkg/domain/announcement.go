package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// AnnouncementPrefix starts the single line a worker prints on stdout once its listener is bound.
const AnnouncementPrefix = "SIDECAR_PORT:"

const (
	MinPort = 1
	MaxPort = 65535
)

// ValidatePort checks that port lies in [MinPort, MaxPort].
func ValidatePort(port int) error {
	if port < MinPort || port > MaxPort {
		return fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	return nil
}

// FormatAnnouncement renders the announcement line (without newline).
func FormatAnnouncement(port int) string {
	return AnnouncementPrefix + strconv.Itoa(port)
}

// ParseAnnouncement extracts the port from an announcement line.
// Surrounding whitespace (including a CR from Windows line endings) is ignored.
// Any other content, or a port outside the valid range, yields ok=false.
func ParseAnnouncement(line string) (port int, ok bool) {
	line = strings.TrimSpace(line)
	rest, found := strings.CutPrefix(line, AnnouncementPrefix)
	if !found {
		return 0, false
	}
	port, err := ParsePort(rest)
	if err != nil {
		return 0, false
	}
	return port, true
}

// ParsePort parses a decimal port value as found in the port file.
func ParsePort(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty value", ErrInvalidPort)
	}
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPort, s)
	}
	if err := ValidatePort(port); err != nil {
		return 0, err
	}
	return port, nil
}
