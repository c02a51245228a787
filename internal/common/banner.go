package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and the resolved runtime settings
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.PrintSimple("Prospector", GetVersion())

	logger.Info().
		Str("version", GetFullVersion()).
		Str("environment", config.Environment).
		Int("concurrency", config.Pipeline.Concurrency).
		Int("browser_sessions", config.Browser.Sessions).
		Str("output_dir", config.Output.Dir).
		Bool("delivery_configured", config.Delivery.Endpoint != "").
		Msg("Prospector starting")
}
