package config

import (
	"fmt"

	"pharmacy-repricing-service/internal/engine"
	"pharmacy-repricing-service/internal/matcher"
	"pharmacy-repricing-service/internal/parsers"
	"pharmacy-repricing-service/internal/writer"
	"pharmacy-repricing-service/pkg/audit"
	"pharmacy-repricing-service/pkg/logger"
)

// ConfigureLogging installs the global logger for the run. Verbose switches
// the level to debug.
func ConfigureLogging(verbose bool) error {
	config := logger.DefaultConfig()
	if verbose {
		config.Level = logger.DebugLevel
	}

	log, err := logger.NewLogger(config)
	if err != nil {
		return fmt.Errorf("invalid logger configuration: %w", err)
	}

	logger.SetGlobalLogger(log)
	return nil
}

// CreateLoaderConfig creates the default loader configuration with the
// header aliases seen across client extracts
func CreateLoaderConfig() (*parsers.LoaderConfig, error) {
	config := parsers.DefaultLoaderConfig()

	// Aliases beyond the defaults, collected from real extracts
	config.ColumnAliases["SRC_RECORD_ID"] = "SOURCERECORDID"
	config.ColumnAliases["Fill Date"] = "DATEFILLED"
	config.ColumnAliases["Member Id"] = "MemberID"
	config.ColumnAliases["Quantity"] = "QUANTITY"
	config.ColumnAliases["Day Supply"] = "DAYSUPPLY"

	return config, nil
}

// CreateMatcher creates the reversal matcher with the CLI matching window
func CreateMatcher(matchWindowDays int) (*matcher.Matcher, error) {
	config := matcher.DefaultConfig()

	// Apply CLI overrides
	if matchWindowDays > 0 {
		config.MatchWindowDays = matchWindowDays
	}

	return matcher.NewMatcher(config)
}

// CreateEngineConfig creates the matching engine configuration
func CreateEngineConfig(maxWorkers int) *engine.Config {
	config := engine.DefaultConfig()

	// Apply CLI overrides; zero keeps the automatic cap
	if maxWorkers > 0 {
		config.MaxWorkers = maxWorkers
	}

	return config
}

// CreateWriterConfig creates the writer configuration for the output directory
func CreateWriterConfig(outputDir string) *writer.Config {
	return writer.DefaultConfig(outputDir)
}

// CreateAuditLogger creates the audit logger. An empty path disables
// audit recording.
func CreateAuditLogger(path string) audit.Logger {
	if path == "" {
		return audit.NopLogger{}
	}
	return audit.NewCSVLogger(path)
}
