package writer

import (
	"encoding/csv"
	"os"

	"pharmacy-repricing-service/pkg/errors"
	"pharmacy-repricing-service/pkg/logger"
)

// writeCSV renders the claim detail CSV. Like the workbook, this artifact is
// mandatory.
func (w *Writer) writeCSV(path string, header []string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.WriteError(errors.CodeArtifactFailed, "claim detail CSV", path, err)
	}
	defer file.Close()

	csvWriter := csv.NewWriter(file)
	if err := csvWriter.Write(header); err != nil {
		return errors.WriteError(errors.CodeArtifactFailed, "claim detail CSV", path, err)
	}
	for _, row := range rows {
		if err := csvWriter.Write(row); err != nil {
			return errors.WriteError(errors.CodeArtifactFailed, "claim detail CSV", path, err)
		}
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return errors.WriteError(errors.CodeArtifactFailed, "claim detail CSV", path, err)
	}

	w.logger.WithFields(logger.Fields{
		"file_path": path,
		"rows":      len(rows),
	}).Debug("Wrote claim detail CSV")

	return nil
}
