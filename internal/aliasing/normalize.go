package aliasing

import (
	"strings"
)

// byteOrderMark is the UTF-8 BOM some producers prepend to the first header cell.
const byteOrderMark = "\uFEFF"

// NormalizeColumnName normalizes a raw source column name before alias
// resolution.
//
// Normalization rules:
//  1. Strip a leading UTF-8 byte order mark (Excel exports often carry one
//     on the first column)
//  2. Trim leading and trailing whitespace
//  3. Lowercase
//
// Examples:
//   - NormalizeColumnName("Client_Name") → "client_name"
//   - NormalizeColumnName("  COUNTRY ") → "country"
//   - NormalizeColumnName("\uFEFFid") → "id"
//
// Returns: Normalized column name string.
func NormalizeColumnName(name string) string {
	name = strings.TrimPrefix(name, byteOrderMark)
	name = strings.TrimSpace(name)

	return strings.ToLower(name)
}

// NormalizeHeader normalizes every column name in a header row.
// The result preserves column order; duplicates are kept as-is (resolution
// claims each source column at most once).
func NormalizeHeader(header []string) []string {
	normalized := make([]string, len(header))
	for i, name := range header {
		normalized[i] = NormalizeColumnName(name)
	}

	return normalized
}
