package main

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/models"
	"github.com/ternarybob/prospector/internal/services/pipeline"
)

// runService is the part of the pipeline manager the tools use
type runService interface {
	RunSync(ctx context.Context, req pipeline.Request, fn func(models.ProgressEvent)) (models.RunRecord, error)
	Get(ctx context.Context, id string) (models.RunRecord, error)
	List(ctx context.Context, limit int) ([]*models.RunRecord, error)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

// handleRunSearch implements the run_search tool
func handleRunSearch(runs runService, defaultTotal int, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("search_query")
		if err != nil || query == "" {
			return textResult("Error: search_query parameter is required"), nil
		}

		req := pipeline.Request{
			SearchQuery:  query,
			TotalResults: request.GetInt("total_results", defaultTotal),
			APIEndpoint:  request.GetString("api_endpoint", ""),
		}

		var events []models.ProgressEvent
		record, err := runs.RunSync(ctx, req, func(event models.ProgressEvent) {
			if event.Kind == models.EventWarning || event.Kind == models.EventError || event.Kind == models.EventSuccess {
				events = append(events, event)
			}
		})
		if err != nil && record.ID == "" {
			logger.Error().Err(err).Str("query", query).Msg("Run could not start")
			return textResult(fmt.Sprintf("Run error: %v", err)), nil
		}

		return textResult(formatRunResult(record, events)), nil
	}
}

// handleListRuns implements the list_runs tool
func handleListRuns(runs runService, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := request.GetInt("limit", 20)
		if limit > 100 {
			limit = 100
		}

		records, err := runs.List(ctx, limit)
		if err != nil {
			logger.Error().Err(err).Msg("List runs failed")
			return textResult(fmt.Sprintf("List error: %v", err)), nil
		}
		return textResult(formatRunList(records)), nil
	}
}

// handleGetRun implements the get_run tool
func handleGetRun(runs runService, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("run_id")
		if err != nil || id == "" {
			return textResult("Error: run_id parameter is required"), nil
		}

		record, err := runs.Get(ctx, id)
		if err != nil {
			logger.Warn().Err(err).Str("run_id", id).Msg("Get run failed")
			return textResult(fmt.Sprintf("Run not found: %v", err)), nil
		}
		return textResult(formatRun(record)), nil
	}
}
