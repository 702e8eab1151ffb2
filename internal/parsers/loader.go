// Package parsers implements the record loader for pharmacy claim extracts.
//
// The loader reads tabular claim extracts (.csv or .xlsx) into in-memory
// claim tables, merges the two input extracts on the source record id,
// validates the required column contract, and prepares the merged table for
// matching (typed field parsing, null backfill, deterministic sort, RowID
// assignment).
//
// Loading is idempotent: parsing the same file twice yields tables equal up
// to RowID assignment. Any parse failure surfaces as a load error carrying
// the original cause; the loader never retries.
package parsers

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"pharmacy-repricing-service/internal/models"
	"pharmacy-repricing-service/pkg/errors"
	"pharmacy-repricing-service/pkg/logger"

	"github.com/xuri/excelize/v2"
)

// LoaderConfig holds configuration for reading and preparing claim extracts.
type LoaderConfig struct {
	Schema    models.Schema
	Delimiter rune

	// ColumnAliases maps alternate header spellings onto canonical schema
	// names, applied after header trimming.
	ColumnAliases map[string]string
}

// DefaultLoaderConfig returns a configuration with the standard claim schema
// and the header aliases seen in real repricing extracts.
func DefaultLoaderConfig() *LoaderConfig {
	return &LoaderConfig{
		Schema:    models.DefaultSchema(),
		Delimiter: ',',
		ColumnAliases: map[string]string{
			"Source Record ID": "SOURCERECORDID",
			"Date Filled":      "DATEFILLED",
			"Member ID":        "MemberID",
			"Qty":              "QUANTITY",
		},
	}
}

// Validate checks the loader configuration.
func (c *LoaderConfig) Validate() error {
	if c.Delimiter == 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "delimiter", c.Delimiter, nil)
	}
	if err := c.Schema.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "schema", err.Error(), err)
	}
	return nil
}

// Loader reads claim extracts into claim tables.
type Loader struct {
	config *LoaderConfig
	logger logger.Logger
}

// NewLoader creates a loader with the given configuration.
func NewLoader(config *LoaderConfig) (*Loader, error) {
	if config == nil {
		config = DefaultLoaderConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Loader{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("loader"),
	}, nil
}

// LoadTable reads one claim extract into a raw claim table. Headers are
// trimmed and aliased; cell values are left untouched. Typed fields are not
// parsed until Prepare runs on the merged table.
func (l *Loader) LoadTable(path string) (*models.ClaimTable, error) {
	l.logger.WithField("file_path", path).Debug("Loading claim extract")

	rows, err := l.readRows(path)
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return nil, errors.ValidationError(errors.CodeEmptyTable, path, nil, nil)
	}

	header := l.normalizeHeader(rows[0])
	table := models.NewClaimTable(header)

	for _, cells := range rows[1:] {
		if isEmptyRow(cells) {
			continue
		}
		record := table.AddRow(cells)
		for i := range record.Cells {
			record.Cells[i] = strings.TrimSpace(record.Cells[i])
		}
	}

	l.logger.WithFields(logger.Fields{
		"file_path": path,
		"columns":   len(table.Columns),
		"rows":      table.Len(),
	}).Info("Loaded claim extract")

	return table, nil
}

// readRows dispatches by file extension to the CSV or spreadsheet reader.
func (l *Loader) readRows(path string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return l.readCSV(path)
	case ".xlsx", ".xlsm":
		return l.readXLSX(path)
	default:
		return nil, errors.LoadError(errors.CodeUnsupportedFormat, path, nil)
	}
}

func (l *Loader) readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, classifyOpenError(path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = l.config.Delimiter
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.LoadError(errors.CodeFileCorrupted, path, err)
		}
		rows = append(rows, record)
	}

	return rows, nil
}

func (l *Loader) readXLSX(path string) ([][]string, error) {
	file, err := excelize.OpenFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.LoadError(errors.CodeFileNotFound, path, err)
		}
		return nil, errors.LoadError(errors.CodeFileCorrupted, path, err)
	}
	defer file.Close()

	sheet := file.GetSheetName(0)
	if sheet == "" {
		return nil, errors.LoadError(errors.CodeFileCorrupted, path, nil)
	}

	rows, err := file.GetRows(sheet)
	if err != nil {
		return nil, errors.LoadError(errors.CodeFileCorrupted, path, err)
	}

	return rows, nil
}

// normalizeHeader trims header cells and applies configured aliases.
func (l *Loader) normalizeHeader(header []string) []string {
	normalized := make([]string, len(header))
	for i, col := range header {
		col = strings.TrimSpace(col)
		if canonical, ok := l.config.ColumnAliases[col]; ok {
			col = canonical
		}
		normalized[i] = col
	}
	return normalized
}

func classifyOpenError(path string, err error) *errors.RepricerError {
	if os.IsNotExist(err) {
		return errors.LoadError(errors.CodeFileNotFound, path, err)
	}
	if os.IsPermission(err) {
		return errors.LoadError(errors.CodeFilePermission, path, err)
	}
	return errors.LoadError(errors.CodeFileCorrupted, path, err)
}

func isEmptyRow(cells []string) bool {
	for _, cell := range cells {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
