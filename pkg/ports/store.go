package ports

import (
	"context"

	"github.com/aretw0/sidecar/pkg/domain"
)

// RecordReader reads a worker's persisted PortRecord.
type RecordReader interface {
	// ReadRecord returns the current record.
	// Returns domain.ErrPortNotKnown if nothing (or nothing parsable) has been written.
	ReadRecord(ctx context.Context) (domain.PortRecord, error)
}

// RecordPublisher persists a worker's PortRecord.
type RecordPublisher interface {
	// Publish writes the record, replacing any previous one.
	Publish(ctx context.Context, rec domain.PortRecord) error

	// Clear removes the record, but only if it still holds port.
	// A record written by a newer worker is left untouched.
	Clear(ctx context.Context, port int) error
}

// RecordStore is a channel that can be both written by a worker and read by a consumer.
type RecordStore interface {
	RecordReader
	RecordPublisher
}
