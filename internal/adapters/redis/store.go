package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aretw0/sidecar/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// clearScript deletes the record only while it still holds the caller's port,
// so a stopping worker never removes the announcement of its successor.
var clearScript = backend.NewScript(`
	if redis.call("hget", KEYS[1], "port") == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Store implements ports.RecordStore using Redis. It lets a worker announce its
// port to consumers on other machines or in other containers.
type Store struct {
	client *backend.Client
	prefix string
	name   string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for the record. A worker that dies without
// clearing its record stops being advertised after ttl.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithName selects which worker's record the store reads and writes.
func WithName(name string) Option {
	return func(s *Store) {
		s.name = name
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "sidecar:port:",
		name:   "default",
		ttl:    0, // No expiration by default
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Key returns the Redis key holding the record.
func (s *Store) Key() string {
	return s.prefix + s.name
}

// Publish writes the record as a hash, replacing any previous one.
func (s *Store) Publish(ctx context.Context, rec domain.PortRecord) error {
	if err := domain.ValidatePort(rec.Port); err != nil {
		return err
	}
	if rec.WrittenAt.IsZero() {
		rec.WrittenAt = time.Now()
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.Key())
	pipe.HSet(ctx, s.Key(),
		"port", strconv.Itoa(rec.Port),
		"written_at", strconv.FormatInt(rec.WrittenAt.UnixNano(), 10),
	)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.Key(), s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: redis publish: %v", domain.ErrAnnouncementFailure, err)
	}
	return nil
}

// ReadRecord returns the current record, or domain.ErrPortNotKnown when the key is
// missing or malformed. Connection failures wrap domain.ErrChannelUnavailable.
func (s *Store) ReadRecord(ctx context.Context) (domain.PortRecord, error) {
	fields, err := s.client.HGetAll(ctx, s.Key()).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return domain.PortRecord{}, domain.ErrPortNotKnown
		}
		return domain.PortRecord{}, fmt.Errorf("%w: redis read: %v", domain.ErrChannelUnavailable, err)
	}
	if len(fields) == 0 {
		return domain.PortRecord{}, domain.ErrPortNotKnown
	}

	port, err := domain.ParsePort(fields["port"])
	if err != nil {
		return domain.PortRecord{}, fmt.Errorf("%w: %v", domain.ErrPortNotKnown, err)
	}
	rec := domain.PortRecord{Port: port, Source: "redis"}
	if nanos, err := strconv.ParseInt(fields["written_at"], 10, 64); err == nil {
		rec.WrittenAt = time.Unix(0, nanos)
	}
	return rec, nil
}

// Clear removes the record if it still holds port.
func (s *Store) Clear(ctx context.Context, port int) error {
	err := clearScript.Run(ctx, s.client, []string{s.Key()}, strconv.Itoa(port)).Err()
	if err != nil && !errors.Is(err, backend.Nil) {
		return fmt.Errorf("redis clear: %w", err)
	}
	return nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
