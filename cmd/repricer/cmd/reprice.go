package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pharmacy-repricing-service/cmd/repricer/config"
	"pharmacy-repricing-service/internal/engine"
	"pharmacy-repricing-service/internal/parsers"
	"pharmacy-repricing-service/internal/writer"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the reprice command
var (
	claimsFile       string
	repricingFile    string
	outputDir        string
	workers          int
	matchWindowDays  int
	opportunityLabel string
	auditLogFile     string
)

// repriceCmd represents the reprice command
var repriceCmd = &cobra.Command{
	Use:   "reprice",
	Short: "Merge claim extracts and tag reversal pairs",
	Long: `Reprice merges the primary claims extract with the repricing extract on
the source record id, detects reversal claims, pairs each reversal with the
original it cancels, and writes the tagged table as an Excel workbook, a
claim detail CSV, and a columnar snapshot. Reversals with no matching
original are listed in a side file instead of the tabular output.

This command requires:
- A claims extract (.csv or .xlsx)
- A repricing extract (.csv or .xlsx)

Examples:
  # Basic repricing run into the current directory
  repricer reprice --claims-file claims.xlsx --repricing-file repriced.csv

  # Custom output directory and parallelism
  repricer reprice --claims-file claims.csv --repricing-file repriced.csv \
    --output-dir out --workers 2

  # Wider reversal matching window with an audit trail
  repricer reprice --claims-file claims.csv --repricing-file repriced.csv \
    --match-window 45 --audit-log audit.csv`,

	PreRunE: validateRepriceFlags,
	RunE:    runReprice,
}

func init() {
	rootCmd.AddCommand(repriceCmd)

	// Required flags
	repriceCmd.Flags().StringVarP(&claimsFile, "claims-file", "c", "", "path to the claims extract (required)")
	repriceCmd.Flags().StringVarP(&repricingFile, "repricing-file", "r", "", "path to the repricing extract (required)")

	// Output flags
	repriceCmd.Flags().StringVarP(&outputDir, "output-dir", "o", ".", "directory for output artifacts")
	repriceCmd.Flags().StringVar(&opportunityLabel, "opportunity", "", "override the opportunity label used in artifact names")

	// Matching configuration flags
	repriceCmd.Flags().IntVarP(&workers, "workers", "w", 0, "maximum matching workers (0 = auto)")
	repriceCmd.Flags().IntVar(&matchWindowDays, "match-window", 30, "reversal matching window in days")

	// Audit flags
	repriceCmd.Flags().StringVar(&auditLogFile, "audit-log", "", "append run events to this CSV audit log")

	// Mark required flags
	repriceCmd.MarkFlagRequired("claims-file")
	repriceCmd.MarkFlagRequired("repricing-file")

	// Bind flags to viper
	viper.BindPFlag("claims-file", repriceCmd.Flags().Lookup("claims-file"))
	viper.BindPFlag("repricing-file", repriceCmd.Flags().Lookup("repricing-file"))
	viper.BindPFlag("output-dir", repriceCmd.Flags().Lookup("output-dir"))
	viper.BindPFlag("opportunity", repriceCmd.Flags().Lookup("opportunity"))
	viper.BindPFlag("workers", repriceCmd.Flags().Lookup("workers"))
	viper.BindPFlag("match-window", repriceCmd.Flags().Lookup("match-window"))
	viper.BindPFlag("audit-log", repriceCmd.Flags().Lookup("audit-log"))
}

func validateRepriceFlags(cmd *cobra.Command, args []string) error {
	// Get values from viper (allows override from config file)
	claimsFile = viper.GetString("claims-file")
	repricingFile = viper.GetString("repricing-file")
	outputDir = viper.GetString("output-dir")
	opportunityLabel = viper.GetString("opportunity")
	workers = viper.GetInt("workers")
	matchWindowDays = viper.GetInt("match-window")
	auditLogFile = viper.GetString("audit-log")

	// Validate required flags
	if claimsFile == "" {
		return fmt.Errorf("claims-file is required")
	}
	if repricingFile == "" {
		return fmt.Errorf("repricing-file is required")
	}

	// Validate file existence
	if err := validateFileExists(claimsFile, "claims extract"); err != nil {
		return err
	}
	if err := validateFileExists(repricingFile, "repricing extract"); err != nil {
		return err
	}

	// Validate extract formats
	for _, path := range []string{claimsFile, repricingFile} {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".csv", ".txt", ".xlsx", ".xlsm":
		default:
			return fmt.Errorf("unsupported extract format '%s'. Valid formats: .csv, .xlsx", filepath.Ext(path))
		}
	}

	// Validate matching parameters
	if workers < 0 {
		return fmt.Errorf("workers cannot be negative")
	}
	if matchWindowDays < 0 {
		return fmt.Errorf("match window cannot be negative")
	}

	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return fmt.Errorf("%s path cannot be empty", description)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s does not exist: %s", description, filePath)
	}
	if err != nil {
		return fmt.Errorf("error accessing %s: %w", description, err)
	}

	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file: %s", description, filePath)
	}

	// Check if file is readable
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("%s is not readable: %w", description, err)
	}
	file.Close()

	return nil
}

func runReprice(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if err := config.ConfigureLogging(viper.GetBool("verbose")); err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "Starting repricing run...\n")
		fmt.Fprintf(os.Stderr, "Claims file: %s\n", claimsFile)
		fmt.Fprintf(os.Stderr, "Repricing file: %s\n", repricingFile)
		fmt.Fprintf(os.Stderr, "Output directory: %s\n", outputDir)
	}

	// Create configurations
	loaderConfig, err := config.CreateLoaderConfig()
	if err != nil {
		return fmt.Errorf("failed to create loader config: %w", err)
	}

	loader, err := parsers.NewLoader(loaderConfig)
	if err != nil {
		return fmt.Errorf("failed to create loader: %w", err)
	}

	matcherService, err := config.CreateMatcher(matchWindowDays)
	if err != nil {
		return fmt.Errorf("failed to create matcher: %w", err)
	}

	matchingEngine, err := engine.NewEngine(config.CreateEngineConfig(workers), matcherService)
	if err != nil {
		return fmt.Errorf("failed to create matching engine: %w", err)
	}

	auditLogger := config.CreateAuditLogger(auditLogFile)

	outputWriter, err := writer.NewWriter(config.CreateWriterConfig(outputDir), auditLogger)
	if err != nil {
		return fmt.Errorf("failed to create writer: %w", err)
	}

	resolver := parsers.NewOpportunityResolver(loader, "")
	if opportunityLabel != "" {
		resolver.SetOverride(opportunityLabel)
	}

	pipeline, err := engine.NewPipeline(loader, resolver, matchingEngine, outputWriter, auditLogger)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	// Run the full repricing pass
	summary, err := pipeline.Execute(ctx, claimsFile, repricingFile)
	if err != nil {
		handler := NewCLIErrorHandler()
		os.Exit(handler.HandleError(err))
	}

	// Show completion message
	fmt.Fprintf(os.Stderr, "Repricing completed for opportunity %q.\n", summary.OpportunityLabel)
	fmt.Fprintf(os.Stderr, "Processed %d claim rows with %d workers in %v.\n",
		summary.InputRows, summary.Workers, summary.Elapsed)
	fmt.Fprintf(os.Stderr, "Tagged %d reversal pairs; %d reversals left unmatched.\n",
		summary.MatchedPairs, summary.UnmatchedReversals)
	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "Workbook: %s\n", summary.Artifacts.ExcelPath)
		fmt.Fprintf(os.Stderr, "Claim detail: %s\n", summary.Artifacts.CSVPath)
		if summary.Artifacts.ParquetPath != "" {
			fmt.Fprintf(os.Stderr, "Columnar snapshot: %s\n", summary.Artifacts.ParquetPath)
		}
		fmt.Fprintf(os.Stderr, "Unmatched reversals: %s\n", summary.Artifacts.UnmatchedPath)
	}

	return nil
}
