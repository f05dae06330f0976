package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/sidecar/pkg/domain"
	"github.com/aretw0/sidecar/pkg/ports"
)

// Mode names the channel a Capability polls.
type Mode string

const (
	ModeIPC  Mode = "ipc"
	ModeFile Mode = "file"
)

// Capability is the query channel selected for a Client. It is chosen once,
// at startup, and never re-evaluated per attempt.
type Capability struct {
	mode       Mode
	querier    ports.PortQuerier
	reader     ports.RecordReader
	crossCheck ports.RecordReader
}

// IPC polls a live querier, typically a supervisor.
func IPC(q ports.PortQuerier) Capability {
	return Capability{mode: ModeIPC, querier: q}
}

// FileFallback polls a persisted record (port file, shared registry).
func FileFallback(r ports.RecordReader) Capability {
	return Capability{mode: ModeFile, reader: r}
}

// Select picks IPC when q is present and reports itself available, otherwise
// the fallback reader. With neither, it returns domain.ErrChannelUnavailable.
func Select(q ports.PortQuerier, fallback ports.RecordReader) (Capability, error) {
	if q != nil && q.Available() {
		return IPC(q), nil
	}
	if fallback != nil {
		return FileFallback(fallback), nil
	}
	return Capability{}, domain.ErrChannelUnavailable
}

// WithCrossCheck makes an IPC capability compare each found port against r.
// A disagreeing record is reported stale; the live query always wins.
func (c Capability) WithCrossCheck(r ports.RecordReader) Capability {
	c.crossCheck = r
	return c
}

// Mode returns the selected channel.
func (c Capability) Mode() Mode {
	return c.mode
}

// FreshnessTolerance is how far a record's WrittenAt may precede the worker
// start and still count as fresh. Linux stamps file mtimes from the coarse
// kernel clock, a few milliseconds behind time.Now.
const FreshnessTolerance = time.Second

func fresh(rec domain.PortRecord, since time.Time) bool {
	if since.IsZero() {
		return true
	}
	return rec.FreshSince(since.Add(-FreshnessTolerance))
}

// poll runs one attempt against the selected channel.
func (c Capability) poll(ctx context.Context, freshSince time.Time, logger *slog.Logger) (int, domain.PollOutcome, error) {
	switch c.mode {
	case ModeIPC:
		return c.pollQuerier(ctx, logger)
	case ModeFile:
		return c.pollRecord(ctx, c.reader, freshSince)
	default:
		return 0, domain.OutcomeChannelUnavailable, domain.ErrChannelUnavailable
	}
}

func (c Capability) pollQuerier(ctx context.Context, logger *slog.Logger) (int, domain.PollOutcome, error) {
	if c.querier == nil {
		return 0, domain.OutcomeChannelUnavailable, domain.ErrChannelUnavailable
	}
	port, err := c.querier.QueryPort(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrChannelUnavailable) {
			return 0, domain.OutcomeChannelUnavailable, err
		}
		return 0, domain.OutcomeNoPortYet, err
	}
	if err := domain.ValidatePort(port); err != nil {
		return 0, domain.OutcomeNoPortYet, err
	}

	if c.crossCheck != nil {
		if rec, err := c.crossCheck.ReadRecord(ctx); err == nil && rec.Port != port {
			logger.Warn("Fallback record disagrees with live query, treating it as stale",
				"query_port", port, "record_port", rec.Port, "source", rec.Source)
		}
	}
	return port, domain.OutcomePortFound, nil
}

func (c Capability) pollRecord(ctx context.Context, r ports.RecordReader, freshSince time.Time) (int, domain.PollOutcome, error) {
	if r == nil {
		return 0, domain.OutcomeChannelUnavailable, domain.ErrChannelUnavailable
	}
	rec, err := r.ReadRecord(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrPortNotKnown) {
			return 0, domain.OutcomeNoPortYet, err
		}
		return 0, domain.OutcomeChannelUnavailable, err
	}
	if err := domain.ValidatePort(rec.Port); err != nil {
		return 0, domain.OutcomeNoPortYet, err
	}
	if !fresh(rec, freshSince) {
		return 0, domain.OutcomeNoPortYet, fmt.Errorf("%w: written %s, worker started %s",
			domain.ErrStaleRecord, rec.WrittenAt.Format(time.RFC3339Nano), freshSince.Format(time.RFC3339Nano))
	}
	return rec.Port, domain.OutcomePortFound, nil
}
