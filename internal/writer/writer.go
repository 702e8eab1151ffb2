// Package writer renders the tagged claim table into the delivery artifacts:
// a repricing workbook, a claim detail CSV, a best-effort columnar snapshot,
// and the unmatched reversal side file.
package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"pharmacy-repricing-service/internal/models"
	"pharmacy-repricing-service/pkg/audit"
	"pharmacy-repricing-service/pkg/errors"
	"pharmacy-repricing-service/pkg/logger"
)

// Default artifact file names.
const (
	DefaultExcelFileName     = "merged_file_with_OR.xlsx"
	DefaultParquetFileName   = "merged_file_with_OR.parquet"
	DefaultUnmatchedFileName = "unmatched_reversals.txt"
	csvFileNameSuffix        = " Claim Detail.csv"
)

// Config holds writer parameters.
type Config struct {
	OutputDir string

	ExcelFileName     string
	ParquetFileName   string
	UnmatchedFileName string
}

// DefaultConfig returns a writer configuration targeting the given directory
// with the standard artifact names.
func DefaultConfig(outputDir string) *Config {
	return &Config{
		OutputDir:         outputDir,
		ExcelFileName:     DefaultExcelFileName,
		ParquetFileName:   DefaultParquetFileName,
		UnmatchedFileName: DefaultUnmatchedFileName,
	}
}

// Validate checks the writer configuration.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "output_dir", nil, nil)
	}
	return nil
}

// Artifacts lists the paths produced by a write run. ParquetPath is empty
// when the columnar snapshot failed or was skipped.
type Artifacts struct {
	ExcelPath     string
	CSVPath       string
	ParquetPath   string
	UnmatchedPath string
}

// Writer renders output artifacts from a tagged claim table.
type Writer struct {
	config *Config
	audit  audit.Logger
	logger logger.Logger
}

// NewWriter creates a writer. A nil audit logger disables audit recording.
func NewWriter(config *Config, auditLogger audit.Logger) (*Writer, error) {
	if config == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "writer_config", nil, nil)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}

	return &Writer{
		config: config,
		audit:  auditLogger,
		logger: logger.GetGlobalLogger().WithComponent("writer"),
	}, nil
}

// WriteAll renders every artifact. Output rows keep table order with the
// untagged rows first and the matched pairs after them; unmatched reversals
// are excluded from the tabular artifacts and reported through the side
// file instead. The workbook and the CSV are mandatory; a columnar snapshot
// failure is logged and swallowed. The output directory is validated before
// the first artifact is touched.
func (w *Writer) WriteAll(table *models.ClaimTable, unmatchedIDs []int, label string) (*Artifacts, error) {
	if err := w.ensureOutputDir(); err != nil {
		return nil, err
	}

	header := append(append([]string{}, table.Columns...), models.LogicColumnName)
	rows := w.outputRows(table)

	artifacts := &Artifacts{
		ExcelPath:     filepath.Join(w.config.OutputDir, w.config.ExcelFileName),
		CSVPath:       filepath.Join(w.config.OutputDir, label+csvFileNameSuffix),
		UnmatchedPath: filepath.Join(w.config.OutputDir, w.config.UnmatchedFileName),
	}

	if err := w.writeExcel(artifacts.ExcelPath, header, rows); err != nil {
		w.recordArtifact(artifacts.ExcelPath, err)
		return nil, err
	}
	w.recordArtifact(artifacts.ExcelPath, nil)

	if err := w.writeCSV(artifacts.CSVPath, header, rows); err != nil {
		w.recordArtifact(artifacts.CSVPath, err)
		return nil, err
	}
	w.recordArtifact(artifacts.CSVPath, nil)

	parquetPath := filepath.Join(w.config.OutputDir, w.config.ParquetFileName)
	if err := w.writeParquet(parquetPath, header, rows); err != nil {
		w.logger.WithError(err).WithField("file_path", parquetPath).
			Warn("Columnar snapshot failed, continuing without it")
		w.recordArtifact(parquetPath, err)
	} else {
		artifacts.ParquetPath = parquetPath
		w.recordArtifact(parquetPath, nil)
	}

	if err := w.writeUnmatched(artifacts.UnmatchedPath, unmatchedIDs); err != nil {
		w.recordArtifact(artifacts.UnmatchedPath, err)
		return nil, err
	}
	w.recordArtifact(artifacts.UnmatchedPath, nil)

	w.logger.WithFields(logger.Fields{
		"output_dir":          w.config.OutputDir,
		"rows":                len(rows),
		"unmatched_reversals": len(unmatchedIDs),
	}).Info("Output artifacts written")

	return artifacts, nil
}

// outputRows flattens the table into deduplicated output rows: untagged rows
// in table order, then the matched pairs in table order. Unmatched reversals
// are dropped here; they surface only in the side file.
func (w *Writer) outputRows(table *models.ClaimTable) [][]string {
	seen := make(map[string]bool, table.Len())
	rows := make([][]string, 0, table.Len())

	appendRows := func(disposition string) {
		for _, record := range table.Rows {
			if record.Logic != disposition {
				continue
			}
			key := record.DedupeKey()
			if seen[key] {
				continue
			}
			seen[key] = true
			rows = append(rows, append(append([]string{}, record.Cells...), record.Logic))
		}
	}

	appendRows(models.LogicNone)
	appendRows(models.LogicMatchedPair)
	return rows
}

// writeUnmatched writes the unmatched reversal side file: the 1-based line
// numbers the reversals would occupy in a flat dump of the sorted merged
// table (RowID plus header offset), comma separated on a single line.
func (w *Writer) writeUnmatched(path string, unmatchedIDs []int) error {
	lines := make([]string, len(unmatchedIDs))
	for i, rowID := range unmatchedIDs {
		lines[i] = strconv.Itoa(rowID + 2)
	}

	content := strings.Join(lines, ",")
	if content != "" {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return errors.WriteError(errors.CodeArtifactFailed, "unmatched reversals", path, err)
	}
	return nil
}

func (w *Writer) ensureOutputDir() error {
	info, err := os.Stat(w.config.OutputDir)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(w.config.OutputDir, 0755); err != nil {
			return errors.WriteError(errors.CodeDirectoryError, "output directory", w.config.OutputDir, err)
		}
		return nil
	}
	if err != nil {
		return errors.WriteError(errors.CodeDirectoryError, "output directory", w.config.OutputDir, err)
	}
	if !info.IsDir() {
		return errors.WriteError(errors.CodeDirectoryError, "output directory", w.config.OutputDir,
			fmt.Errorf("%s exists and is not a directory", w.config.OutputDir))
	}
	return nil
}

// recordArtifact appends an audit event for one artifact. Audit failures are
// logged and never fail the run.
func (w *Writer) recordArtifact(path string, writeErr error) {
	status := audit.StatusSuccess
	message := fmt.Sprintf("wrote %s", filepath.Base(path))
	if writeErr != nil {
		status = audit.StatusFailure
		message = fmt.Sprintf("failed to write %s: %v", filepath.Base(path), writeErr)
	}

	if err := w.audit.Record(audit.NewEvent(audit.ScriptName, message, status)); err != nil {
		w.logger.WithError(err).Warn("Audit record failed")
	}
}
