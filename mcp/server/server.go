// Package server serves an x402 facilitator over the Model Context Protocol.
package server

import (
	"errors"
	"log/slog"
	"net/http"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/algox402/x402-go"
	"github.com/algox402/x402-go/facilitator"
)

// Config configures a FacilitatorServer.
type Config struct {
	Facilitator facilitator.Interface

	// Timeouts bound each tool call. Zero means x402.DefaultTimeouts.
	Timeouts x402.TimeoutConfig

	// ReadOnly registers only x402_supported and x402_verify.
	ReadOnly bool

	Logger *slog.Logger
}

// FacilitatorServer wraps an MCP server whose tools verify and settle
// payments through a facilitator.
type FacilitatorServer struct {
	mcpServer *mcpserver.MCPServer
	fac       facilitator.Interface
	timeouts  x402.TimeoutConfig
	logger    *slog.Logger
}

// NewFacilitatorServer creates an MCP server exposing cfg.Facilitator.
func NewFacilitatorServer(name, version string, cfg Config) (*FacilitatorServer, error) {
	if cfg.Facilitator == nil {
		return nil, errors.New("x402: mcp server requires a facilitator")
	}
	timeouts := cfg.Timeouts
	if timeouts == (x402.TimeoutConfig{}) {
		timeouts = x402.DefaultTimeouts
	}
	if err := timeouts.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &FacilitatorServer{
		mcpServer: mcpserver.NewMCPServer(name, version, mcpserver.WithToolCapabilities(false)),
		fac:       cfg.Facilitator,
		timeouts:  timeouts,
		logger:    logger,
	}
	s.mcpServer.AddTools(s.tools(cfg.ReadOnly)...)
	return s, nil
}

// Handler returns the streamable HTTP transport for the server.
func (s *FacilitatorServer) Handler() http.Handler {
	return mcpserver.NewStreamableHTTPServer(s.mcpServer)
}

// MCPServer returns the underlying MCP server (for advanced usage).
func (s *FacilitatorServer) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}
