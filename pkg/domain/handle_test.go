package domain_test

import (
	"testing"
	"time"

	"github.com/aretw0/sidecar/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestHandleState_Monotonic(t *testing.T) {
	assert.True(t, domain.HandleStarting.CanTransition(domain.HandlePortKnown))
	assert.True(t, domain.HandlePortKnown.CanTransition(domain.HandleReady))
	assert.True(t, domain.HandleStarting.CanTransition(domain.HandleFailed))
	assert.True(t, domain.HandleReady.CanTransition(domain.HandleStopped))

	assert.False(t, domain.HandleReady.CanTransition(domain.HandlePortKnown))
	assert.False(t, domain.HandlePortKnown.CanTransition(domain.HandleStarting))
	assert.False(t, domain.HandleFailed.CanTransition(domain.HandleStopped))
	assert.False(t, domain.HandleStopped.CanTransition(domain.HandleReady))
}

func TestPortRecord_FreshSince(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rec := domain.PortRecord{Port: 41000, WrittenAt: start.Add(time.Second)}

	assert.True(t, rec.FreshSince(time.Time{}))
	assert.True(t, rec.FreshSince(start))
	assert.True(t, rec.FreshSince(rec.WrittenAt))
	assert.False(t, rec.FreshSince(start.Add(time.Minute)))
}

func TestStatus(t *testing.T) {
	ready := domain.Status{Phase: domain.PhaseReady, Port: 54321}
	assert.True(t, ready.IsReady())
	assert.Equal(t, "ready(54321)", ready.String())

	failed := domain.Status{Phase: domain.PhaseError, Reason: "sidecar did not start in time"}
	assert.False(t, failed.IsReady())
	assert.Equal(t, "error(sidecar did not start in time)", failed.String())

	assert.Equal(t, "loading", domain.Status{Phase: domain.PhaseLoading}.String())
}
