// Package models defines the claim data model shared by the repricing
// pipeline.
//
// A ClaimTable is an ordered, column-oriented view of the merged claim
// extract: a fixed header plus one ClaimRecord per row. Records carry the
// raw passthrough cells exactly as loaded, alongside the typed fields the
// matcher needs (fill date, source record id, member, NDC, quantity) and the
// derived attributes the pipeline adds (Logic disposition, RowID).
package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Disposition values written to the Logic column by the matcher.
const (
	// LogicNone marks an ordinary claim untouched by reversal matching.
	LogicNone = ""
	// LogicMatchedPair marks both halves of a matched original/reversal pair.
	LogicMatchedPair = "OR"
	// LogicUnmatchedReversal marks a reversal with no pairable original.
	// Rows carrying it are excluded from the primary outputs and reported
	// through the unmatched side artifact.
	LogicUnmatchedReversal = "UR"
)

// LogicColumnName is the header used for the disposition column in outputs.
const LogicColumnName = "Logic"

// Schema names the claim columns the core depends on. It is configuration
// external to the core; the loader rejects any extract missing a required
// column.
type Schema struct {
	DateColumn         string
	SourceRecordColumn string
	QuantityColumn     string
	DaySupplyColumn    string
	NDCColumn          string
	MemberColumn       string
	DrugNameColumn     string
	PharmacyColumn     string
	AWPColumn          string
}

// DefaultSchema returns the standard claim extract column contract.
func DefaultSchema() Schema {
	return Schema{
		DateColumn:         "DATEFILLED",
		SourceRecordColumn: "SOURCERECORDID",
		QuantityColumn:     "QUANTITY",
		DaySupplyColumn:    "DAYSUPPLY",
		NDCColumn:          "NDC",
		MemberColumn:       "MemberID",
		DrugNameColumn:     "Drug Name",
		PharmacyColumn:     "Pharmacy Name",
		AWPColumn:          "Total AWP (Historical)",
	}
}

// RequiredColumns returns the columns every merged extract must provide.
func (s Schema) RequiredColumns() []string {
	return []string{
		s.DateColumn,
		s.SourceRecordColumn,
		s.QuantityColumn,
		s.DaySupplyColumn,
		s.NDCColumn,
		s.MemberColumn,
		s.DrugNameColumn,
		s.PharmacyColumn,
		s.AWPColumn,
	}
}

// Validate checks that no column name is empty or duplicated.
func (s Schema) Validate() error {
	seen := make(map[string]bool)
	for _, col := range s.RequiredColumns() {
		if strings.TrimSpace(col) == "" {
			return fmt.Errorf("schema column name cannot be empty")
		}
		if seen[col] {
			return fmt.Errorf("schema column %q appears more than once", col)
		}
		seen[col] = true
	}
	return nil
}

// ClaimRecord is one row of the merged claim table.
type ClaimRecord struct {
	// Cells holds the raw values for every table column, in column order.
	// Passthrough columns the core does not interpret live here untouched.
	Cells []string

	// Typed fields parsed from the schema columns during Prepare.
	DateFilled     time.Time
	SourceRecordID string
	MemberID       string
	NDC            string
	Quantity       decimal.Decimal

	// Logic is the disposition tag. Set exactly once by the matcher; the
	// writer only reads it.
	Logic string

	// RowID is the dense 0-based identifier assigned after the final sort.
	// It is internal plumbing for row-to-output-line mapping and is never
	// persisted.
	RowID int
}

// AbsQuantity returns the absolute dispensed quantity.
func (r *ClaimRecord) AbsQuantity() decimal.Decimal {
	return r.Quantity.Abs()
}

// DedupeKey returns a key identifying exact-duplicate rows: every cell plus
// the disposition must be equal.
func (r *ClaimRecord) DedupeKey() string {
	return strings.Join(r.Cells, "\x1f") + "\x1f" + r.Logic
}

// String returns a short description useful in logs and test failures.
func (r *ClaimRecord) String() string {
	return fmt.Sprintf("ClaimRecord{RowID: %d, Source: %s, Member: %s, NDC: %s, Qty: %s, Date: %s, Logic: %q}",
		r.RowID, r.SourceRecordID, r.MemberID, r.NDC, r.Quantity.String(),
		r.DateFilled.Format("2006-01-02"), r.Logic)
}

// ClaimTable is the in-memory merged claim extract.
type ClaimTable struct {
	Columns []string
	Rows    []*ClaimRecord

	colIndex map[string]int
}

// NewClaimTable creates an empty table with the given header.
func NewClaimTable(columns []string) *ClaimTable {
	t := &ClaimTable{Columns: make([]string, len(columns))}
	copy(t.Columns, columns)
	t.rebuildIndex()
	return t
}

func (t *ClaimTable) rebuildIndex() {
	t.colIndex = make(map[string]int, len(t.Columns))
	for i, col := range t.Columns {
		t.colIndex[col] = i
	}
}

// ColumnIndex returns the position of a column by name, or -1 if absent.
// Lookup falls back to case-insensitive comparison for resilience against
// extracts with inconsistent header casing.
func (t *ClaimTable) ColumnIndex(name string) int {
	if t.colIndex == nil {
		t.rebuildIndex()
	}
	if idx, ok := t.colIndex[name]; ok {
		return idx
	}
	lower := strings.ToLower(name)
	for i, col := range t.Columns {
		if strings.ToLower(col) == lower {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the table contains the named column.
func (t *ClaimTable) HasColumn(name string) bool {
	return t.ColumnIndex(name) != -1
}

// MissingColumns returns the schema's required columns absent from the table.
func (t *ClaimTable) MissingColumns(schema Schema) []string {
	var missing []string
	for _, col := range schema.RequiredColumns() {
		if !t.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	return missing
}

// AddRow appends a row, padding or truncating cells to the header width,
// and returns the new record.
func (t *ClaimTable) AddRow(cells []string) *ClaimRecord {
	row := make([]string, len(t.Columns))
	copy(row, cells)
	record := &ClaimRecord{Cells: row}
	t.Rows = append(t.Rows, record)
	return record
}

// Len returns the number of data rows.
func (t *ClaimTable) Len() int {
	return len(t.Rows)
}

// Value returns the named cell of a record, or "" when the column is absent.
func (t *ClaimTable) Value(record *ClaimRecord, column string) string {
	idx := t.ColumnIndex(column)
	if idx < 0 || idx >= len(record.Cells) {
		return ""
	}
	return record.Cells[idx]
}

// SetValue sets the named cell of a record. Unknown columns are ignored.
func (t *ClaimTable) SetValue(record *ClaimRecord, column, value string) {
	idx := t.ColumnIndex(column)
	if idx < 0 || idx >= len(record.Cells) {
		return
	}
	record.Cells[idx] = value
}

// SortForMatching orders rows ascending by (fill date, source record id).
// The sort is stable so equal keys keep file order. This ordering is the
// precondition for reversal detection and must be established exactly once,
// before partitioning.
func (t *ClaimTable) SortForMatching() {
	sort.SliceStable(t.Rows, func(i, j int) bool {
		a, b := t.Rows[i], t.Rows[j]
		if !a.DateFilled.Equal(b.DateFilled) {
			return a.DateFilled.Before(b.DateFilled)
		}
		return a.SourceRecordID < b.SourceRecordID
	})
}

// AssignRowIDs assigns dense 0-based RowIDs in current row order.
func (t *ClaimTable) AssignRowIDs() {
	for i, row := range t.Rows {
		row.RowID = i
	}
}

// Parsing helpers shared by the loader.

// claimDateFormats lists the date layouts accepted in claim extracts,
// most common first.
var claimDateFormats = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"01/02/2006 15:04:05",
	"2006/01/02",
	"01-02-2006",
}

// ParseClaimDate attempts to parse a fill date using the accepted layouts.
func ParseClaimDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	var lastErr error
	for _, format := range claimDateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

// ParseDecimalFromString parses a decimal value, tolerating currency symbols
// and thousand separators.
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}
