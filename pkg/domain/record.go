package domain

import "time"

// PortRecord is the value a worker persists to a fallback channel.
type PortRecord struct {
	Port      int       `json:"port"`
	WrittenAt time.Time `json:"written_at"`
	// Source names the channel the record was read from (e.g. "file", "redis").
	Source string `json:"source,omitempty"`
}

// FreshSince reports whether the record was written at or after t, i.e. during
// the worker lifetime that started at t. A zero t accepts any record.
func (r PortRecord) FreshSince(t time.Time) bool {
	if t.IsZero() {
		return true
	}
	return !r.WrittenAt.Before(t)
}
