package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// searchCorpusTool returns the tool definition for search_corpus
func searchCorpusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_corpus",
		Description: "Semantic search across ingested document collections",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural language search query",
				},
				"sources": map[string]interface{}{
					"type":        "array",
					"description": "Source names to search, or [\"all\"] for every ingested source",
					"items": map[string]interface{}{
						"type": "string",
					},
					"default": []string{"all"},
				},
				"n_results": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
			},
			Required: []string{"query"},
		},
	}
}

// getJobStatusTool returns the tool definition for get_job_status
func getJobStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_job_status",
		Description: "Query the status and statistics of an ingestion job",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"job_id": map[string]interface{}{
					"type":        "string",
					"description": "Job id returned by an ingestion run",
				},
			},
			Required: []string{"job_id"},
		},
	}
}

// listSourcesTool returns the tool definition for list_sources
func listSourcesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_sources",
		Description: "List configured corpus sources and their sync state",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
