// Package mcp exposes the supervisor's port query as MCP tools, so automation
// clients can discover the sidecar the same way the host UI does.
package mcp

import (
	"context"
	"strings"

	"github.com/aretw0/sidecar"
	"github.com/aretw0/sidecar/pkg/discovery"
	"github.com/aretw0/sidecar/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// PortResponse is the result of get_sidecar_port.
type PortResponse struct {
	Known   bool   `json:"known" jsonschema_description:"Whether the worker has announced its port"`
	Port    int    `json:"port,omitempty" jsonschema_description:"The announced port, when known"`
	BaseURL string `json:"base_url,omitempty" jsonschema_description:"HTTP base URL of the worker, when known"`
	State   string `json:"state,omitempty" jsonschema_description:"Lifecycle state of the worker process"`
	Error   string `json:"error,omitempty" jsonschema_description:"Why the worker failed, if it did"`
}

// StatusResponse is the result of get_discovery_status.
type StatusResponse struct {
	Phase  string `json:"phase" jsonschema_description:"loading, ready or error"`
	Port   int    `json:"port,omitempty" jsonschema_description:"The discovered port when ready"`
	Reason string `json:"reason,omitempty" jsonschema_description:"Failure reason when in error"`
}

// Querier is the non-blocking port peek offered by the supervisor.
type Querier interface {
	Query() (int, bool)
}

// HandleInfo reports the worker's lifecycle for richer answers.
type HandleInfo func() (domain.HandleState, error)

// Server exposes a Querier as an MCP Server.
type Server struct {
	querier   Querier
	handle    HandleInfo
	status    func() domain.Status
	mcpServer *server.MCPServer
}

type Option func(*Server)

// WithHandleInfo adds the worker state to get_sidecar_port answers.
func WithHandleInfo(fn HandleInfo) Option {
	return func(s *Server) {
		s.handle = fn
	}
}

// WithStatus registers get_discovery_status, backed by fn.
func WithStatus(fn func() domain.Status) Option {
	return func(s *Server) {
		s.status = fn
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(q Querier, opts ...Option) *Server {
	s := &Server{
		querier:   q,
		mcpServer: server.NewMCPServer("sidecar-mcp", strings.TrimSpace(sidecar.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	// TOOL: get_sidecar_port
	portTool := mcp.NewTool("get_sidecar_port",
		mcp.WithDescription("Return the port announced by the sidecar worker, or known=false if it has not announced yet."),
		mcp.WithOutputSchema[PortResponse](),
	)
	s.mcpServer.AddTool(portTool, mcp.NewStructuredToolHandler(s.handleGetPort))

	if s.status == nil {
		return
	}

	// TOOL: get_discovery_status
	statusTool := mcp.NewTool("get_discovery_status",
		mcp.WithDescription("Return the host's discovery status: loading, ready(port) or error(reason)."),
		mcp.WithOutputSchema[StatusResponse](),
	)
	s.mcpServer.AddTool(statusTool, mcp.NewStructuredToolHandler(s.handleGetStatus))
}

func (s *Server) handleGetPort(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (PortResponse, error) {
	var resp PortResponse
	if port, ok := s.querier.Query(); ok {
		resp.Known = true
		resp.Port = port
		resp.BaseURL = discovery.BaseURL(port)
	}
	if s.handle != nil {
		state, err := s.handle()
		resp.State = state.String()
		if err != nil {
			resp.Error = err.Error()
		}
	}
	return resp, nil
}

func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (StatusResponse, error) {
	st := s.status()
	return StatusResponse{
		Phase:  string(st.Phase),
		Port:   st.Port,
		Reason: st.Reason,
	}, nil
}
