package mcp

import (
	"context"
	"testing"

	"github.com/aretw0/sidecar/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuerier struct {
	port int
}

func (f *fakeQuerier) Query() (int, bool) {
	return f.port, f.port != 0
}

func TestGetSidecarPort_NotYetKnown(t *testing.T) {
	s := NewServer(&fakeQuerier{}, WithHandleInfo(func() (domain.HandleState, error) {
		return domain.HandleStarting, nil
	}))

	resp, err := s.handleGetPort(context.Background(), mcp.CallToolRequest{}, nil)
	require.NoError(t, err)
	assert.False(t, resp.Known)
	assert.Zero(t, resp.Port)
	assert.Equal(t, "starting", resp.State)
}

func TestGetSidecarPort_Known(t *testing.T) {
	q := &fakeQuerier{}
	s := NewServer(q)

	q.port = 54321
	resp, err := s.handleGetPort(context.Background(), mcp.CallToolRequest{}, nil)
	require.NoError(t, err)
	assert.Equal(t, PortResponse{Known: true, Port: 54321, BaseURL: "http://localhost:54321"}, resp)
}

func TestGetSidecarPort_Failed(t *testing.T) {
	s := NewServer(&fakeQuerier{}, WithHandleInfo(func() (domain.HandleState, error) {
		return domain.HandleFailed, domain.ErrWorkerExited
	}))

	resp, err := s.handleGetPort(context.Background(), mcp.CallToolRequest{}, nil)
	require.NoError(t, err)
	assert.False(t, resp.Known)
	assert.Equal(t, "failed", resp.State)
	assert.Equal(t, domain.ErrWorkerExited.Error(), resp.Error)
}

func TestGetDiscoveryStatus(t *testing.T) {
	s := NewServer(&fakeQuerier{}, WithStatus(func() domain.Status {
		return domain.Status{Phase: domain.PhaseError, Reason: "sidecar did not start in time"}
	}))

	resp, err := s.handleGetStatus(context.Background(), mcp.CallToolRequest{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Phase)
	assert.Equal(t, "sidecar did not start in time", resp.Reason)
}
