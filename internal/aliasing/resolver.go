package aliasing

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Canonical field names for the client record schema.
const (
	FieldID      = "id"
	FieldName    = "name"
	FieldCountry = "country"
	FieldCity    = "city"
	FieldDate    = "date"
)

// requiredFields lists the canonical fields a file must resolve, in the
// order the substring fallback evaluates them. FieldID is optional and
// participates in exact matching only: a substring guess for an identity
// column would silently rekey records.
var requiredFields = []string{FieldName, FieldCountry, FieldCity, FieldDate}

// builtinAliases maps normalized source column names to canonical fields.
// These cover the producer variants observed in real drops; operators extend
// the set via the column_aliases section of .geopulse.yaml.
var builtinAliases = map[string]string{
	"client_name":   FieldName,
	"customer_name": FieldName,
	"full_name":     FieldName,
	"nation":        FieldCountry,
	"country_name":  FieldCountry,
	"location":      FieldCity,
	"city_name":     FieldCity,
	"timestamp":     FieldDate,
	"created_date":  FieldDate,
	"entry_date":    FieldDate,
}

// ErrSchemaUnresolved is returned when a required canonical field has no
// source column after alias and fallback resolution.
var ErrSchemaUnresolved = errors.New("required columns could not be resolved")

type (
	// ColumnMapping maps canonical fields to source column indexes for one
	// file's header. Immutable after construction.
	ColumnMapping struct {
		indexes map[string]int
		columns []string
	}

	// Resolver resolves raw header rows to canonical column mappings.
	// Immutable after construction, so safe to share across goroutines.
	//
	// Resolution is two-phase:
	//  1. Exact: a normalized column equal to a canonical field name, or
	//     listed in the alias table, maps that field.
	//  2. Substring fallback: a still-unmapped required field maps the first
	//     unclaimed column that contains the field name or is contained by
	//     it.
	//
	// In both phases the first match in column order wins, and each source
	// column maps at most one canonical field.
	Resolver struct {
		aliases map[string]string
	}

	// SchemaError reports an unresolvable header: the required fields that
	// stayed unmapped and the normalized columns that were available.
	SchemaError struct {
		Missing []string
		Columns []string
	}
)

// Error implements the error interface for SchemaError.
func (e *SchemaError) Error() string {
	return fmt.Sprintf("%v: missing %s, available columns %s",
		ErrSchemaUnresolved,
		strings.Join(e.Missing, ", "),
		strings.Join(e.Columns, ", "))
}

// Unwrap returns ErrSchemaUnresolved, enabling errors.Is checks.
func (e *SchemaError) Unwrap() error {
	return ErrSchemaUnresolved
}

// NewResolver creates a resolver from the built-in alias table merged with
// config-supplied aliases.
//
// Config aliases override built-ins for the same source column. Entries whose
// target is not a canonical field are skipped with a warning.
//
// A nil config yields a resolver with only the built-in table.
func NewResolver(cfg *Config) *Resolver {
	aliases := make(map[string]string, len(builtinAliases))
	for alias, field := range builtinAliases {
		aliases[alias] = field
	}

	if cfg == nil {
		return &Resolver{aliases: aliases}
	}

	for alias, field := range cfg.ColumnAliases {
		normalizedAlias := NormalizeColumnName(alias)
		normalizedField := NormalizeColumnName(field)

		if normalizedAlias == "" {
			slog.Warn("Skipping alias with empty source column")

			continue
		}

		if !isCanonicalField(normalizedField) {
			slog.Warn("Skipping alias with unknown canonical field",
				slog.String("alias", normalizedAlias),
				slog.String("field", normalizedField))

			continue
		}

		aliases[normalizedAlias] = normalizedField

		slog.Debug("Registered column alias",
			slog.String("alias", normalizedAlias),
			slog.String("field", normalizedField))
	}

	return &Resolver{aliases: aliases}
}

// GetAliasCount returns the number of registered aliases, built-ins included.
func (r *Resolver) GetAliasCount() int {
	if r == nil {
		return 0
	}

	return len(r.aliases)
}

// Resolve maps a raw header row to canonical fields.
//
// Returns a ColumnMapping on success. Returns a *SchemaError (wrapping
// ErrSchemaUnresolved) when any required field stays unmapped; no partial
// mapping is ever returned.
func (r *Resolver) Resolve(header []string) (*ColumnMapping, error) {
	normalized := NormalizeHeader(header)

	indexes := make(map[string]int, len(requiredFields)+1)
	claimed := make(map[int]bool, len(normalized))

	// Phase 1: exact canonical names and alias table, first match in column
	// order wins.
	for i, column := range normalized {
		field, ok := r.resolveExact(column)
		if !ok {
			continue
		}

		if _, mapped := indexes[field]; mapped {
			continue
		}

		indexes[field] = i
		claimed[i] = true
	}

	// Phase 2: substring fallback for required fields still unmapped.
	for _, field := range requiredFields {
		if _, mapped := indexes[field]; mapped {
			continue
		}

		for i, column := range normalized {
			if claimed[i] || column == "" {
				continue
			}

			if strings.Contains(column, field) || strings.Contains(field, column) {
				indexes[field] = i
				claimed[i] = true

				slog.Debug("Resolved column by substring fallback",
					slog.String("field", field),
					slog.String("column", column))

				break
			}
		}
	}

	missing := make([]string, 0, len(requiredFields))

	for _, field := range requiredFields {
		if _, mapped := indexes[field]; !mapped {
			missing = append(missing, field)
		}
	}

	if len(missing) > 0 {
		return nil, &SchemaError{Missing: missing, Columns: normalized}
	}

	return &ColumnMapping{indexes: indexes, columns: normalized}, nil
}

// resolveExact returns the canonical field for a normalized column, checking
// the canonical names themselves before the alias table.
func (r *Resolver) resolveExact(column string) (string, bool) {
	if isCanonicalField(column) {
		return column, true
	}

	field, ok := r.aliases[column]

	return field, ok
}

// isCanonicalField reports whether name is one of the canonical field names.
func isCanonicalField(name string) bool {
	switch name {
	case FieldID, FieldName, FieldCountry, FieldCity, FieldDate:
		return true
	default:
		return false
	}
}

// Index returns the source column index for a canonical field.
func (m *ColumnMapping) Index(field string) (int, bool) {
	idx, ok := m.indexes[field]

	return idx, ok
}

// Has reports whether a canonical field resolved to a source column.
func (m *ColumnMapping) Has(field string) bool {
	_, ok := m.indexes[field]

	return ok
}

// Columns returns the normalized source columns the mapping was built from.
func (m *ColumnMapping) Columns() []string {
	return m.columns
}

// Value extracts the mapped field value from a data row, trimmed. Returns
// empty string when the field is unmapped or the row is short.
func (m *ColumnMapping) Value(row []string, field string) string {
	idx, ok := m.indexes[field]
	if !ok || idx >= len(row) {
		return ""
	}

	return strings.TrimSpace(row[idx])
}
