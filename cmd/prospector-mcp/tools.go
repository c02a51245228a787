package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createRunSearchTool returns the run_search tool definition
func createRunSearchTool() mcp.Tool {
	return mcp.NewTool("run_search",
		mcp.WithDescription("Search the map directory, enrich every listing and export the results. Blocks until the run finishes."),
		mcp.WithString("search_query",
			mcp.Required(),
			mcp.Description("Search phrase, e.g. \"barber in Berlin\""),
		),
		mcp.WithNumber("total_results",
			mcp.Description("Maximum listings to collect (default from config)"),
		),
		mcp.WithString("api_endpoint",
			mcp.Description("Optional endpoint that receives the run payload"),
		),
	)
}

// createListRunsTool returns the list_runs tool definition
func createListRunsTool() mcp.Tool {
	return mcp.NewTool("list_runs",
		mcp.WithDescription("List recent runs, newest first"),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 20)"),
		),
	)
}

// createGetRunTool returns the get_run tool definition
func createGetRunTool() mcp.Tool {
	return mcp.NewTool("get_run",
		mcp.WithDescription("Retrieve one run record by ID"),
		mcp.WithString("run_id",
			mcp.Required(),
			mcp.Description("Run ID (format: run_{uuid})"),
		),
	)
}
