package memory

import (
	"context"
	"sync"

	"github.com/aretw0/sidecar/pkg/domain"
)

// Store implements ports.RecordStore in memory.
// Safe for concurrent use.
type Store struct {
	mu  sync.RWMutex
	rec *domain.PortRecord
}

// NewStore creates a new, empty in-memory store.
func NewStore() *Store {
	return &Store{}
}

// Publish stores a copy of the record.
func (s *Store) Publish(ctx context.Context, rec domain.PortRecord) error {
	if err := domain.ValidatePort(rec.Port); err != nil {
		return err
	}
	rec.Source = "memory"

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = &rec
	return nil
}

// ReadRecord returns the stored record.
func (s *Store) ReadRecord(ctx context.Context) (domain.PortRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.rec == nil {
		return domain.PortRecord{}, domain.ErrPortNotKnown
	}
	return *s.rec, nil
}

// Clear drops the record if it still holds port.
func (s *Store) Clear(ctx context.Context, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec != nil && s.rec.Port == port {
		s.rec = nil
	}
	return nil
}
