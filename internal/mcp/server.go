package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/corpusd/corpusd/internal/jobstore"
	"github.com/corpusd/corpusd/internal/searcher"
)

const (
	// ServerName is the MCP server name
	ServerName = "corpusd"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	searcher *searcher.Searcher
	jobs     *jobstore.Store
	sources  []string
}

// NewServer creates an MCP server over an already-wired searcher and
// job store.
func NewServer(search *searcher.Searcher, jobs *jobstore.Store, sources []string) *Server {
	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		searcher: search,
		jobs:     jobs,
		sources:  sources,
	}
	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(searchCorpusTool(), s.handleSearchCorpus)
	s.mcp.AddTool(getJobStatusTool(), s.handleGetJobStatus)
	s.mcp.AddTool(listSourcesTool(), s.handleListSources)
}
