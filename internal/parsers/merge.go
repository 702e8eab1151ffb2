package parsers

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pharmacy-repricing-service/internal/models"
	"pharmacy-repricing-service/pkg/errors"
	"pharmacy-repricing-service/pkg/logger"
)

// Backfill values applied during Prepare when a cell is missing or
// unparseable. Backfilled rows still participate in matching.
const (
	BackfillDate           = "1900-01-01"
	BackfillSourceRecordID = "UNKNOWN"
	BackfillMemberID       = "0"
)

// MergeTables performs a full outer join of the two extracts on the source
// record id column. Rows sharing a key on both sides combine pairwise; a key
// present on several rows of both sides yields the cartesian product of those
// rows. Left-only and right-only rows are kept with the other side's cells
// empty. Non-key columns that appear in both tables are disambiguated with
// _x and _y suffixes.
func (l *Loader) MergeTables(left, right *models.ClaimTable) (*models.ClaimTable, error) {
	keyColumn := l.config.Schema.SourceRecordColumn

	leftKey := left.ColumnIndex(keyColumn)
	rightKey := right.ColumnIndex(keyColumn)
	if leftKey < 0 || rightKey < 0 {
		return nil, errors.ValidationError(errors.CodeMissingColumn, "", []string{keyColumn}, nil)
	}

	collisions := make(map[string]bool)
	rightNames := make(map[string]bool, len(right.Columns))
	for i, col := range right.Columns {
		if i == rightKey {
			continue
		}
		rightNames[col] = true
	}
	for i, col := range left.Columns {
		if i != leftKey && rightNames[col] {
			collisions[col] = true
		}
	}

	columns := make([]string, 0, len(left.Columns)+len(right.Columns)-1)
	for i, col := range left.Columns {
		if i != leftKey && collisions[col] {
			col = col + "_x"
		}
		columns = append(columns, col)
	}
	for i, col := range right.Columns {
		if i == rightKey {
			continue
		}
		if collisions[col] {
			col = col + "_y"
		}
		columns = append(columns, col)
	}

	merged := models.NewClaimTable(columns)

	rightByKey := make(map[string][]*models.ClaimRecord)
	rightOrder := make([]string, 0)
	for _, record := range right.Rows {
		key := strings.TrimSpace(record.Cells[rightKey])
		if _, seen := rightByKey[key]; !seen {
			rightOrder = append(rightOrder, key)
		}
		rightByKey[key] = append(rightByKey[key], record)
	}

	rightWidth := len(right.Columns) - 1
	matchedKeys := make(map[string]bool)

	for _, record := range left.Rows {
		key := strings.TrimSpace(record.Cells[leftKey])
		matches := rightByKey[key]
		if len(matches) == 0 {
			merged.AddRow(append(append([]string{}, record.Cells...), make([]string, rightWidth)...))
			continue
		}
		matchedKeys[key] = true
		for _, rightRecord := range matches {
			cells := append([]string{}, record.Cells...)
			for i, cell := range rightRecord.Cells {
				if i == rightKey {
					continue
				}
				cells = append(cells, cell)
			}
			merged.AddRow(cells)
		}
	}

	for _, key := range rightOrder {
		if matchedKeys[key] {
			continue
		}
		for _, rightRecord := range rightByKey[key] {
			cells := make([]string, len(left.Columns))
			cells[leftKey] = rightRecord.Cells[rightKey]
			for i, cell := range rightRecord.Cells {
				if i == rightKey {
					continue
				}
				cells = append(cells, cell)
			}
			merged.AddRow(cells)
		}
	}

	l.logger.WithFields(logger.Fields{
		"left_rows":   left.Len(),
		"right_rows":  right.Len(),
		"merged_rows": merged.Len(),
	}).Info("Merged claim extracts")

	return merged, nil
}

// Prepare validates the merged table against the required column contract,
// parses typed fields on every row, backfills missing values, sorts the table
// by fill date then source record id, and assigns dense RowIDs. It must run
// before partitioning; the matcher relies on the sorted order and on RowIDs.
func (l *Loader) Prepare(table *models.ClaimTable, path string) error {
	schema := l.config.Schema

	if missing := table.MissingColumns(schema); len(missing) > 0 {
		return errors.ValidationError(errors.CodeMissingColumn, path, missing, nil)
	}

	var badDates, badQuantities, badAmounts int

	for _, record := range table.Rows {
		raw := strings.TrimSpace(table.Value(record, schema.DateColumn))
		parsed, err := models.ParseClaimDate(raw)
		if err != nil || parsed.IsZero() {
			if raw != "" {
				badDates++
			}
			record.DateFilled = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)
			table.SetValue(record, schema.DateColumn, BackfillDate)
		} else {
			record.DateFilled = parsed
		}

		srid := strings.TrimSpace(table.Value(record, schema.SourceRecordColumn))
		if srid == "" {
			srid = BackfillSourceRecordID
			table.SetValue(record, schema.SourceRecordColumn, srid)
		}
		record.SourceRecordID = srid

		member := strings.TrimSpace(table.Value(record, schema.MemberColumn))
		if member == "" {
			member = BackfillMemberID
			table.SetValue(record, schema.MemberColumn, member)
		}
		record.MemberID = member

		record.NDC = strings.TrimSpace(table.Value(record, schema.NDCColumn))

		quantity := strings.TrimSpace(table.Value(record, schema.QuantityColumn))
		if quantity == "" {
			record.Quantity = decimal.Zero
		} else if parsed, err := models.ParseDecimalFromString(quantity); err != nil {
			badQuantities++
			record.Quantity = decimal.Zero
		} else {
			record.Quantity = parsed
		}

		awp := strings.TrimSpace(table.Value(record, schema.AWPColumn))
		if awp != "" {
			if parsed, err := models.ParseDecimalFromString(awp); err != nil {
				badAmounts++
				table.SetValue(record, schema.AWPColumn, "")
			} else {
				table.SetValue(record, schema.AWPColumn, parsed.Round(2).StringFixed(2))
			}
		}

		record.Logic = models.LogicNone
	}

	table.SortForMatching()
	table.AssignRowIDs()

	if badDates > 0 || badQuantities > 0 || badAmounts > 0 {
		l.logger.WithFields(logger.Fields{
			"unparseable_dates":      badDates,
			"unparseable_quantities": badQuantities,
			"unparseable_amounts":    badAmounts,
		}).Warn("Backfilled unparseable cells during preparation")
	}

	l.logger.WithFields(logger.Fields{
		"rows": table.Len(),
	}).Debug("Prepared merged table for matching")

	return nil
}
