package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/corpusd/corpusd/internal/searcher"
	"github.com/corpusd/corpusd/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams = -32602 // Invalid method parameters
	ErrorCodeInternalError = -32603 // Internal JSON-RPC error
	ErrorCodeJobNotFound   = -32001 // No job with the given id
	ErrorCodeEmptyQuery    = -32002 // Query parameter is empty
)

// handleSearchCorpus handles the search_corpus tool invocation
func (s *Server) handleSearchCorpus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "n_results", searcher.DefaultLimit)
	if limit < 1 || limit > searcher.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "n_results must be between 1 and 100", map[string]interface{}{
			"param": "n_results",
			"value": limit,
		})
	}

	sources := getStringSlice(args, "sources")

	resp, err := s.searcher.Search(ctx, searcher.Request{
		Query:   query,
		Sources: sources,
		Limit:   limit,
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, len(resp.Results))
	for i, r := range resp.Results {
		results[i] = map[string]interface{}{
			"source":          r.Source,
			"source_path":     r.SourcePath,
			"section_headers": r.SectionHeaders,
			"content":         r.Content,
			"score":           r.Score,
		}
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"results":   results,
		"count":     len(results),
		"cache_hit": resp.CacheHit,
	})), nil
}

// handleGetJobStatus handles the get_job_status tool invocation
func (s *Server) handleGetJobStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	jobID, ok := args["job_id"].(string)
	if !ok || jobID == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "job_id parameter is required", map[string]interface{}{
			"param":  "job_id",
			"reason": "missing or empty",
		})
	}

	job, err := s.jobs.GetJob(ctx, jobID)
	if errors.Is(err, types.ErrNotFound) {
		return nil, newMCPError(ErrorCodeJobNotFound, "no job with id "+jobID, nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to load job", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"job_id":     job.ID,
		"source":     job.Source,
		"collection": job.CollectionName,
		"status":     string(job.Status),
		"stats": map[string]interface{}{
			"total_files":     job.Stats.TotalFiles,
			"processed_files": job.Stats.ProcessedFiles,
			"failed_files":    job.Stats.FailedFiles,
			"total_chunks":    job.Stats.TotalChunks,
		},
	}
	if job.Error != "" {
		response["error"] = job.Error
	}

	if job.IsParent() {
		response["total_batches"] = job.TotalBatches
		subs, err := s.jobs.ListSubJobs(ctx, jobID)
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "failed to load sub-jobs", map[string]interface{}{
				"error": err.Error(),
			})
		}
		rollup := make([]map[string]interface{}, len(subs))
		for i, sub := range subs {
			rollup[i] = map[string]interface{}{
				"job_id":      sub.ID,
				"batch_index": sub.BatchIndex,
				"status":      string(sub.Status),
			}
			if sub.Error != "" {
				rollup[i]["error"] = sub.Error
			}
		}
		response["sub_jobs"] = rollup
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleListSources handles the list_sources tool invocation
func (s *Server) handleListSources(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entries := make([]map[string]interface{}, 0, len(s.sources))
	for _, name := range s.sources {
		entry := map[string]interface{}{"name": name}

		state, err := s.jobs.GetPipelineState(ctx, name)
		switch {
		case errors.Is(err, types.ErrNotFound):
			entry["ingested"] = false
		case err != nil:
			return nil, newMCPError(ErrorCodeInternalError, "failed to load sync state", map[string]interface{}{
				"error": err.Error(),
			})
		default:
			entry["ingested"] = true
			entry["last_commit"] = state.LastCommit
			entry["total_chunks"] = state.TotalChunks
			entry["last_run"] = state.LastRun.Format("2006-01-02T15:04:05Z07:00")
		}
		entries = append(entries, entry)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"sources": entries,
	})), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts a string array parameter
func getStringSlice(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
