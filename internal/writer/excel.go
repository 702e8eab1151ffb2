package writer

import (
	"github.com/xuri/excelize/v2"

	"pharmacy-repricing-service/pkg/errors"
	"pharmacy-repricing-service/pkg/logger"
)

const workbookSheet = "Sheet1"

// writeExcel renders the repricing workbook. This is the primary delivery
// artifact; any failure aborts the run.
func (w *Writer) writeExcel(path string, header []string, rows [][]string) error {
	file := excelize.NewFile()
	defer file.Close()

	if err := w.setSheetRow(file, 1, header); err != nil {
		return errors.WriteError(errors.CodeArtifactFailed, "repricing workbook", path, err)
	}
	for i, row := range rows {
		if err := w.setSheetRow(file, i+2, row); err != nil {
			return errors.WriteError(errors.CodeArtifactFailed, "repricing workbook", path, err)
		}
	}

	if err := file.SaveAs(path); err != nil {
		return errors.WriteError(errors.CodeArtifactFailed, "repricing workbook", path, err)
	}

	w.logger.WithFields(logger.Fields{
		"file_path": path,
		"rows":      len(rows),
	}).Debug("Wrote repricing workbook")

	return nil
}

func (w *Writer) setSheetRow(file *excelize.File, rowNum int, cells []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}

	values := make([]interface{}, len(cells))
	for i, c := range cells {
		values[i] = c
	}
	return file.SetSheetRow(workbookSheet, cell, &values)
}
