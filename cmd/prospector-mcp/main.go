package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/prospector/internal/app"
	"github.com/ternarybob/prospector/internal/common"
)

func main() {
	configPath := os.Getenv("PROSPECTOR_CONFIG")
	if configPath == "" {
		configPath = "prospector.toml"
	}

	var paths []string
	if _, err := os.Stat(configPath); err == nil {
		paths = append(paths, configPath)
	}

	config, err := common.LoadFromFiles(paths...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// stdout carries the MCP protocol
	config.Logging.Output = []string{"file"}
	config.Batch.Enabled = false
	logger := common.InitLogger(config)

	application, err := app.New(config, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	mcpServer := server.NewMCPServer(
		"prospector",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	mcpServer.AddTool(createRunSearchTool(), handleRunSearch(application.Manager, config.Pipeline.DefaultTotalResults, logger))
	mcpServer.AddTool(createListRunsTool(), handleListRuns(application.Manager, logger))
	mcpServer.AddTool(createGetRunTool(), handleGetRun(application.Manager, logger))

	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Error().Err(err).Msg("MCP server failed")
	}
}
