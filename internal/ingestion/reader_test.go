package ingestion

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// writeDropFile writes a CSV drop into a temp directory and returns its path.
func writeDropFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write drop file: %v", err)
	}

	return path
}

// ==============================================================================
// Unit Tests: CSV Reading
// ==============================================================================

func TestReadBatch_WellFormedFile(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	path := writeDropFile(t, "clients.csv",
		"id,name,country,city,date\n"+
			"c-1,Alice,US,NY,03/14/2025\n"+
			"c-2,Bob,FR,Paris,03/15/2025\n")

	batch, err := ReadBatch(path)
	if err != nil {
		t.Fatalf("ReadBatch() failed: %v", err)
	}

	if batch.Path != path {
		t.Errorf("Path = %q, expected %q", batch.Path, path)
	}

	if len(batch.Header) != 5 {
		t.Errorf("Header length = %d, expected 5", len(batch.Header))
	}

	if batch.RowsRead() != 2 {
		t.Fatalf("RowsRead() = %d, expected 2", batch.RowsRead())
	}

	if batch.Rows[0].Number != 2 || batch.Rows[1].Number != 3 {
		t.Errorf("row ordinals = %d, %d, expected 2, 3",
			batch.Rows[0].Number, batch.Rows[1].Number)
	}

	if batch.Rows[0].Fields[1] != "Alice" {
		t.Errorf("Rows[0].Fields[1] = %q, expected Alice", batch.Rows[0].Fields[1])
	}

	if batch.ReadAt.IsZero() {
		t.Error("ReadAt not stamped")
	}
}

func TestReadBatch_StripsByteOrderMark(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	path := writeDropFile(t, "bom.csv",
		"\xef\xbb\xbfname,country,city,date\n"+
			"Alice,US,NY,03/14/2025\n")

	batch, err := ReadBatch(path)
	if err != nil {
		t.Fatalf("ReadBatch() failed: %v", err)
	}

	if batch.Header[0] != "name" {
		t.Errorf("Header[0] = %q, expected BOM stripped to name", batch.Header[0])
	}
}

func TestReadBatch_SkipsEmptyRowsButKeepsOrdinals(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	path := writeDropFile(t, "gaps.csv",
		"name,country,city,date\n"+
			"Alice,US,NY,03/14/2025\n"+
			",,,\n"+
			"Bob,FR,Paris,03/15/2025\n")

	batch, err := ReadBatch(path)
	if err != nil {
		t.Fatalf("ReadBatch() failed: %v", err)
	}

	if batch.RowsRead() != 2 {
		t.Fatalf("RowsRead() = %d, expected 2 (empty row skipped)", batch.RowsRead())
	}

	// The skipped empty row still advances the ordinal.
	if batch.Rows[0].Number != 2 || batch.Rows[1].Number != 4 {
		t.Errorf("row ordinals = %d, %d, expected 2, 4",
			batch.Rows[0].Number, batch.Rows[1].Number)
	}
}

func TestReadBatch_PadsShortRows(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	path := writeDropFile(t, "short.csv",
		"name,country,city,date\n"+
			"Alice,US\n")

	batch, err := ReadBatch(path)
	if err != nil {
		t.Fatalf("ReadBatch() failed: %v", err)
	}

	if batch.RowsRead() != 1 {
		t.Fatalf("RowsRead() = %d, expected 1", batch.RowsRead())
	}

	fields := batch.Rows[0].Fields
	if len(fields) != 4 {
		t.Fatalf("padded row length = %d, expected header width 4", len(fields))
	}

	if fields[0] != "Alice" || fields[1] != "US" || fields[2] != "" || fields[3] != "" {
		t.Errorf("padded fields = %v, expected [Alice US  ]", fields)
	}
}

func TestReadBatch_KeepsLongRows(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	path := writeDropFile(t, "long.csv",
		"name,country,city,date\n"+
			"Alice,US,NY,03/14/2025,extra,cells\n")

	batch, err := ReadBatch(path)
	if err != nil {
		t.Fatalf("ReadBatch() failed: %v", err)
	}

	if len(batch.Rows[0].Fields) != 6 {
		t.Errorf("long row length = %d, expected 6", len(batch.Rows[0].Fields))
	}
}

func TestReadBatch_TrimsLeadingWhitespace(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	path := writeDropFile(t, "spaced.csv",
		"name, country, city, date\n"+
			"Alice,  US,  NY,  03/14/2025\n")

	batch, err := ReadBatch(path)
	if err != nil {
		t.Fatalf("ReadBatch() failed: %v", err)
	}

	if batch.Header[1] != "country" {
		t.Errorf("Header[1] = %q, expected leading space trimmed", batch.Header[1])
	}

	if batch.Rows[0].Fields[1] != "US" {
		t.Errorf("Fields[1] = %q, expected leading space trimmed", batch.Rows[0].Fields[1])
	}
}

func TestReadBatch_QuotedFieldsWithCommas(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	path := writeDropFile(t, "quoted.csv",
		"name,country,city,date\n"+
			"\"Alice, Jr.\",US,NY,03/14/2025\n")

	batch, err := ReadBatch(path)
	if err != nil {
		t.Fatalf("ReadBatch() failed: %v", err)
	}

	if batch.Rows[0].Fields[0] != "Alice, Jr." {
		t.Errorf("Fields[0] = %q, expected quoted comma preserved", batch.Rows[0].Fields[0])
	}
}

func TestReadBatch_HeaderOnlyFile(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	path := writeDropFile(t, "header_only.csv", "name,country,city,date\n")

	batch, err := ReadBatch(path)
	if err != nil {
		t.Fatalf("ReadBatch() failed for header-only file: %v", err)
	}

	if batch.RowsRead() != 0 {
		t.Errorf("RowsRead() = %d, expected 0", batch.RowsRead())
	}
}

func TestReadBatch_EmptyFile(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	path := writeDropFile(t, "empty.csv", "")

	_, err := ReadBatch(path)
	if !errors.Is(err, ErrMissingHeader) {
		t.Errorf("ReadBatch() error = %v, expected ErrMissingHeader", err)
	}
}

func TestReadBatch_FileDoesNotExist(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	_, err := ReadBatch(filepath.Join(t.TempDir(), "missing.csv"))
	if err == nil {
		t.Error("ReadBatch() succeeded for missing file")
	}
}

func TestReadBatch_MalformedQuoting(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	// An unterminated quote is a structural error and fails the whole file.
	path := writeDropFile(t, "broken.csv",
		"name,country,city,date\n"+
			"\"Alice,US,NY,03/14/2025\n")

	_, err := ReadBatch(path)
	if err == nil {
		t.Error("ReadBatch() succeeded for unterminated quote")
	}
}
