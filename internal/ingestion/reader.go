package ingestion

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// utf8BOM is the byte-order mark some producers prepend to their drops.
// Stripped from the first header cell so column resolution sees clean names.
const utf8BOM = "\uFEFF"

// ErrMissingHeader is returned when a file is empty or has no header row.
var ErrMissingHeader = errors.New("file has no header row")

// ReadBatch reads one CSV drop into an IngestionBatch.
//
// The observed producers disagree on column counts, quoting, and padding, so
// the reader is deliberately forgiving:
//   - a UTF-8 BOM on the first header cell is stripped
//   - leading whitespace in cells is trimmed (csv.Reader.TrimLeadingSpace)
//   - rows may have any field count (FieldsPerRecord = -1); short rows are
//     padded to the header width, long rows keep their extra cells (the
//     column mapping only indexes resolved columns)
//   - rows whose cells are all empty after trimming are skipped, but still
//     advance the row ordinal so provenance matches the source file
//
// Structural CSV errors (unterminated quotes and the like) fail the whole
// file; the caller retains it for a later attempt.
func ReadBatch(path string) (*IngestionBatch, error) {
	file, err := os.Open(path) // #nosec G304 - paths come from the watched input directory
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	defer func() {
		_ = file.Close()
	}()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s", ErrMissingHeader, path)
		}

		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}

	batch := &IngestionBatch{
		Path:   path,
		Header: header,
		ReadAt: time.Now(),
	}

	rowNumber := 1 // header row

	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", rowNumber+1, err)
		}

		rowNumber++

		if isEmptyRow(fields) {
			continue
		}

		if len(fields) < len(header) {
			padded := make([]string, len(header))
			copy(padded, fields)
			fields = padded
		}

		batch.Rows = append(batch.Rows, Row{Number: rowNumber, Fields: fields})
	}

	return batch, nil
}

// isEmptyRow reports whether every cell of the row is empty after trimming.
func isEmptyRow(fields []string) bool {
	for _, field := range fields {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}

	return true
}
