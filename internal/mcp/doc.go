// Package mcp implements the Model Context Protocol (MCP) server for corpusd.
//
// The MCP server exposes three tools to AI assistants:
//   - search_corpus: Semantic search across ingested collections
//   - get_job_status: Check an ingestion job's state and statistics
//   - list_sources: List configured sources and their sync state
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport: the server reads
// requests from stdin and writes responses to stdout, so any
// MCP-compatible client can drive it. It is started with `corpusd --mcp`
// and shares the searcher and job store with the HTTP surface.
package mcp
