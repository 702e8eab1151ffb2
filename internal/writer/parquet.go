package writer

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	parquetwriter "github.com/xitongsys/parquet-go/writer"

	"pharmacy-repricing-service/pkg/errors"
	"pharmacy-repricing-service/pkg/logger"
)

var parquetNameChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

// writeParquet renders the columnar snapshot for downstream analytics.
// Columns arrive from arbitrary extract headers, so the schema is built at
// runtime with every column as a UTF8 string. The caller treats failures as
// non-fatal.
func (w *Writer) writeParquet(path string, header []string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.WriteError(errors.CodeArtifactFailed, "columnar snapshot", path, err)
	}

	fw := writerfile.NewWriterFile(file)

	schema := make([]string, len(header))
	for i, col := range header {
		schema[i] = fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8", parquetColumnName(col, i))
	}

	pw, err := parquetwriter.NewCSVWriter(schema, fw, 1)
	if err != nil {
		file.Close()
		return errors.WriteError(errors.CodeArtifactFailed, "columnar snapshot", path, err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		cells := make([]*string, len(header))
		for i := range header {
			value := ""
			if i < len(row) {
				value = row[i]
			}
			cells[i] = &value
		}
		if err := pw.WriteString(cells); err != nil {
			pw.WriteStop()
			file.Close()
			return errors.WriteError(errors.CodeArtifactFailed, "columnar snapshot", path, err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		file.Close()
		return errors.WriteError(errors.CodeArtifactFailed, "columnar snapshot", path, err)
	}
	if err := file.Close(); err != nil {
		return errors.WriteError(errors.CodeArtifactFailed, "columnar snapshot", path, err)
	}

	w.logger.WithFields(logger.Fields{
		"file_path": path,
		"rows":      len(rows),
	}).Debug("Wrote columnar snapshot")

	return nil
}

// parquetColumnName maps an extract header onto a safe parquet field name.
// The positional suffix keeps sanitized duplicates distinct.
func parquetColumnName(col string, index int) string {
	name := parquetNameChars.ReplaceAllString(strings.TrimSpace(col), "_")
	name = strings.Trim(name, "_")
	if name == "" {
		name = "column"
	}
	return fmt.Sprintf("%s_%d", strings.ToLower(name), index)
}
