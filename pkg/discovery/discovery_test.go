package discovery_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/sidecar/pkg/adapters/memory"
	"github.com/aretw0/sidecar/pkg/discovery"
	"github.com/aretw0/sidecar/pkg/domain"
	"github.com/aretw0/sidecar/pkg/portfile"
	"github.com/aretw0/sidecar/pkg/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newManual() *schedule.Manual {
	return schedule.NewManual(epoch)
}

func TestScenarioA_PortAnnouncedBetweenAttempts(t *testing.T) {
	m := newManual()
	q := memory.NewQuerier()
	m.AfterFunc(200*time.Millisecond, func() { q.Announce(54321) })

	s := discovery.NewClient(discovery.IPC(q), discovery.WithScheduler(m)).Start(context.Background())
	defer s.Cancel()
	assert.Equal(t, domain.SessionPolling, s.State())

	m.Advance(0)
	assert.Equal(t, domain.SessionPolling, s.State())
	assert.Equal(t, 1, s.AttemptsMade())

	m.Advance(500 * time.Millisecond)
	require.Equal(t, domain.SessionReady, s.State())

	port, ok := s.Port()
	assert.True(t, ok)
	assert.Equal(t, 54321, port)
	assert.Equal(t, 2, s.AttemptsMade())

	attempts := s.Attempts()
	assert.Equal(t, domain.OutcomeNoPortYet, attempts[0].Outcome)
	assert.Equal(t, domain.OutcomePortFound, attempts[1].Outcome)
	assert.Equal(t, epoch.Add(500*time.Millisecond), attempts[1].At)

	assert.Equal(t, domain.Status{Phase: domain.PhaseReady, Port: 54321}, s.Status())
	assert.Equal(t, 0, m.Pending(), "no attempt may be scheduled after Ready")
}

func TestScenarioB_WorkerNeverAnnounces(t *testing.T) {
	m := newManual()
	q := memory.NewQuerier() // worker exited without binding: the port never becomes known

	var failed atomic.Int32
	s := discovery.NewClient(discovery.IPC(q),
		discovery.WithScheduler(m),
		discovery.WithHooks(domain.LifecycleHooks{
			OnFailed: func(context.Context, *domain.SessionEvent) { failed.Add(1) },
		}),
	).Start(context.Background())

	m.Advance(0)
	m.Advance(time.Minute)

	assert.Equal(t, domain.SessionFailed, s.State())
	assert.Equal(t, 30, s.AttemptsMade())
	assert.Equal(t, 30, q.Calls())
	assert.ErrorIs(t, s.Err(), domain.ErrTimeout)
	assert.Equal(t, int32(1), failed.Load())

	status := s.Status()
	assert.Equal(t, domain.PhaseError, status.Phase)
	assert.Contains(t, status.Reason, "did not start in time")

	_, err := s.Wait(context.Background())
	assert.ErrorIs(t, err, domain.ErrTimeout)

	m.Advance(time.Minute)
	assert.Equal(t, 30, q.Calls(), "never retries beyond the budget")
}

func TestScenarioC_FallbackFileWhenPrimaryUnavailable(t *testing.T) {
	m := newManual()
	q := memory.NewQuerier(memory.WithUnavailable(), memory.WithPort(1234))
	file := portfile.New(filepath.Join(t.TempDir(), portfile.DefaultFileName))
	require.NoError(t, file.Publish(context.Background(), domain.PortRecord{Port: 41000}))

	capability, err := discovery.Select(q, file)
	require.NoError(t, err)
	assert.Equal(t, discovery.ModeFile, capability.Mode())

	s := discovery.NewClient(capability, discovery.WithScheduler(m)).Start(context.Background())
	m.Advance(0)

	port, ok := s.Port()
	require.True(t, ok)
	assert.Equal(t, 41000, port)
	assert.Equal(t, 0, q.Calls(), "primary query must never be called")
}

func TestBoundedWait(t *testing.T) {
	m := newManual()
	q := memory.NewQuerier()
	s := discovery.NewClient(discovery.IPC(q), discovery.WithScheduler(m)).Start(context.Background())

	m.Advance(0)
	for s.State() == domain.SessionPolling {
		m.Advance(discovery.DefaultInterval)
	}

	attempts := s.Attempts()
	require.Len(t, attempts, discovery.DefaultMaxAttempts)
	last := attempts[len(attempts)-1].At.Sub(epoch)
	assert.LessOrEqual(t, last, time.Duration(discovery.DefaultMaxAttempts)*discovery.DefaultInterval)
	for i, a := range attempts {
		assert.Equal(t, i+1, a.Number)
	}
}

func TestIdempotentPort(t *testing.T) {
	m := newManual()
	q := memory.NewQuerier(memory.WithPort(54321))
	s := discovery.NewClient(discovery.IPC(q), discovery.WithScheduler(m)).Start(context.Background())
	m.Advance(0)

	for i := 0; i < 10; i++ {
		port, ok := s.Port()
		assert.True(t, ok)
		assert.Equal(t, 54321, port)
	}
	m.Advance(10 * time.Second)
	assert.Equal(t, 1, q.Calls())
}

func TestCancelBetweenAttempts(t *testing.T) {
	m := newManual()
	q := memory.NewQuerier()
	s := discovery.NewClient(discovery.IPC(q), discovery.WithScheduler(m)).Start(context.Background())

	m.Advance(0)
	m.Advance(1000 * time.Millisecond)
	require.Equal(t, 3, q.Calls())

	s.Cancel()
	q.Announce(54321)
	m.Advance(time.Minute)

	assert.Equal(t, 3, q.Calls(), "no attempt after cancellation")
	assert.Equal(t, domain.SessionPolling, s.State(), "no observable transition after cancellation")
	assert.True(t, s.Cancelled())
	assert.Equal(t, domain.PhaseLoading, s.Status().Phase)

	_, err := s.Wait(context.Background())
	assert.ErrorIs(t, err, domain.ErrCancelled)
}

func TestContextCancellationCancelsSession(t *testing.T) {
	m := newManual()
	q := memory.NewQuerier()
	ctx, cancel := context.WithCancel(context.Background())
	s := discovery.NewClient(discovery.IPC(q), discovery.WithScheduler(m)).Start(ctx)
	m.Advance(0)

	cancel()
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not observe context cancellation")
	}

	m.Advance(time.Minute)
	assert.Equal(t, 1, q.Calls())
	assert.ErrorIs(t, s.Err(), domain.ErrCancelled)
}

func TestAttemptErrorsDoNotAbort(t *testing.T) {
	m := newManual()
	q := memory.NewQuerier()
	q.FailWith(fmt.Errorf("invoke get_sidecar_port: %w", domain.ErrChannelUnavailable))
	s := discovery.NewClient(discovery.IPC(q), discovery.WithScheduler(m)).Start(context.Background())

	m.Advance(0)
	q.FailWith(errors.New("transient"))
	m.Advance(500 * time.Millisecond)
	q.FailWith(nil)
	q.Announce(54321)
	m.Advance(500 * time.Millisecond)

	require.Equal(t, domain.SessionReady, s.State())
	attempts := s.Attempts()
	require.Len(t, attempts, 3)
	assert.Equal(t, domain.OutcomeChannelUnavailable, attempts[0].Outcome)
	assert.Equal(t, domain.OutcomeNoPortYet, attempts[1].Outcome)
	assert.Equal(t, domain.OutcomePortFound, attempts[2].Outcome)
}

func TestCustomBudget(t *testing.T) {
	m := newManual()
	q := memory.NewQuerier()
	s := discovery.NewClient(discovery.IPC(q),
		discovery.WithScheduler(m),
		discovery.WithInterval(100*time.Millisecond),
		discovery.WithMaxAttempts(5),
	).Start(context.Background())

	m.Advance(0)
	m.Advance(400 * time.Millisecond)

	assert.Equal(t, domain.SessionFailed, s.State())
	assert.Equal(t, 5, q.Calls())
}

func TestStaleRecordIsIgnored(t *testing.T) {
	m := newManual()
	store := memory.NewStore()
	require.NoError(t, store.Publish(context.Background(), domain.PortRecord{Port: 40000, WrittenAt: epoch.Add(-time.Hour)}))

	s := discovery.NewClient(discovery.FileFallback(store),
		discovery.WithScheduler(m),
		discovery.WithFreshness(epoch),
	).Start(context.Background())

	m.Advance(0)
	assert.Equal(t, domain.SessionPolling, s.State())
	assert.ErrorIs(t, s.Attempts()[0].Err, domain.ErrStaleRecord)

	require.NoError(t, store.Publish(context.Background(), domain.PortRecord{Port: 41000, WrittenAt: epoch.Add(time.Second)}))
	m.Advance(500 * time.Millisecond)

	port, ok := s.Port()
	require.True(t, ok)
	assert.Equal(t, 41000, port)
}

func TestConsistencyBetweenChannels(t *testing.T) {
	const announced = 54321
	q := memory.NewQuerier(memory.WithPort(announced))
	file := portfile.New(filepath.Join(t.TempDir(), portfile.DefaultFileName))
	require.NoError(t, file.Publish(context.Background(), domain.PortRecord{Port: announced}))

	viaQuery, err := discovery.Discover(context.Background(), discovery.IPC(q).WithCrossCheck(file))
	require.NoError(t, err)
	viaFile, err := discovery.Discover(context.Background(), discovery.FileFallback(file))
	require.NoError(t, err)

	assert.Equal(t, viaQuery, viaFile)
}

func TestCrossCheckPrefersLiveQuery(t *testing.T) {
	q := memory.NewQuerier(memory.WithPort(54321))
	stale := memory.NewStore()
	require.NoError(t, stale.Publish(context.Background(), domain.PortRecord{Port: 40000}))

	port, err := discovery.Discover(context.Background(), discovery.IPC(q).WithCrossCheck(stale))
	require.NoError(t, err)
	assert.Equal(t, 54321, port)
}

func TestSelect(t *testing.T) {
	q := memory.NewQuerier()
	store := memory.NewStore()

	c, err := discovery.Select(q, store)
	require.NoError(t, err)
	assert.Equal(t, discovery.ModeIPC, c.Mode())

	c, err = discovery.Select(nil, store)
	require.NoError(t, err)
	assert.Equal(t, discovery.ModeFile, c.Mode())

	_, err = discovery.Select(memory.NewQuerier(memory.WithUnavailable()), nil)
	assert.ErrorIs(t, err, domain.ErrChannelUnavailable)
}

func TestDiscover_RealClock(t *testing.T) {
	q := memory.NewQuerier()
	time.AfterFunc(30*time.Millisecond, func() { q.Announce(54321) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	port, err := discovery.Discover(ctx, discovery.IPC(q), discovery.WithInterval(10*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 54321, port)
	assert.GreaterOrEqual(t, q.Calls(), 2)
}

func TestHooksAndSessionEvents(t *testing.T) {
	m := newManual()
	q := memory.NewQuerier()
	var attempts []int
	var ready *domain.SessionEvent

	s := discovery.NewClient(discovery.IPC(q),
		discovery.WithScheduler(m),
		discovery.WithHooks(domain.LifecycleHooks{
			OnAttempt: func(_ context.Context, e *domain.AttemptEvent) {
				attempts = append(attempts, e.Attempt.Number)
				assert.Equal(t, discovery.DefaultMaxAttempts, e.MaxAttempts)
			},
			OnReady: func(_ context.Context, e *domain.SessionEvent) { ready = e },
		}),
	).Start(context.Background())

	m.Advance(0)
	q.Announce(41000)
	m.Advance(500 * time.Millisecond)

	assert.Equal(t, []int{1, 2}, attempts)
	require.NotNil(t, ready)
	assert.Equal(t, s.ID(), ready.SessionID)
	assert.Equal(t, 41000, ready.Port)
	assert.Equal(t, 2, ready.Attempts)
	assert.Equal(t, 500*time.Millisecond, ready.Elapsed)
}

func TestBaseURL(t *testing.T) {
	assert.Equal(t, "http://localhost:54321", discovery.BaseURL(54321))
}

func TestFreshness_ToleratesCoarseTimestamps(t *testing.T) {
	store := memory.NewStore()
	require.NoError(t, store.Publish(context.Background(), domain.PortRecord{Port: 40000, WrittenAt: epoch.Add(-10 * time.Millisecond)}))

	m := newManual()
	s := discovery.NewClient(discovery.FileFallback(store),
		discovery.WithScheduler(m),
		discovery.WithFreshness(epoch),
	).Start(context.Background())
	m.Advance(0)

	port, ok := s.Port()
	require.True(t, ok, "a record stamped just before the worker start belongs to it")
	assert.Equal(t, 40000, port)

	require.NoError(t, store.Publish(context.Background(), domain.PortRecord{Port: 40000, WrittenAt: epoch.Add(-discovery.FreshnessTolerance - time.Millisecond)}))
	m = newManual()
	s = discovery.NewClient(discovery.FileFallback(store),
		discovery.WithScheduler(m),
		discovery.WithFreshness(epoch),
	).Start(context.Background())
	defer s.Cancel()
	m.Advance(0)
	assert.ErrorIs(t, s.Attempts()[0].Err, domain.ErrStaleRecord)
}

// A port file is judged by its mtime, which the kernel may stamp slightly
// before the caller's own clock reading.
func TestFreshness_PortFileWrittenAfterStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sidecar.port")
	for i := 0; i < 50; i++ {
		started := time.Now()
		require.NoError(t, portfile.New(path).Publish(context.Background(), domain.PortRecord{Port: 40000 + i, WrittenAt: time.Now()}))

		m := newManual()
		s := discovery.NewClient(discovery.FileFallback(portfile.New(path)),
			discovery.WithScheduler(m),
			discovery.WithFreshness(started),
		).Start(context.Background())
		m.Advance(0)

		port, ok := s.Port()
		require.True(t, ok, "attempt %d: %v", i, s.Attempts()[0].Err)
		assert.Equal(t, 40000+i, port)
	}
}
