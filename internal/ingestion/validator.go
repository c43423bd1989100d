package ingestion

import (
	"errors"
	"fmt"

	"github.com/geopulse-io/geopulse/internal/aliasing"
	"github.com/geopulse-io/geopulse/internal/canonicalization"
)

// Row validation sentinel errors (static sentinel errors for errors.Is() checks).
var (
	// ErrMissingIdentityKey indicates a record without an identity key.
	// The allocator guarantees one, so this only guards direct construction.
	ErrMissingIdentityKey = errors.New("identity key cannot be empty")

	// ErrMissingName indicates the name field is empty after trimming.
	ErrMissingName = errors.New("name cannot be empty")

	// ErrMissingCountry indicates the country field is empty after trimming.
	ErrMissingCountry = errors.New("country cannot be empty")

	// ErrMissingCity indicates the city field is empty after trimming.
	ErrMissingCity = errors.New("city cannot be empty")

	// ErrMissingEventDate indicates a record with a zero event date.
	// The resolver guarantees one, so this only guards direct construction.
	ErrMissingEventDate = errors.New("event date cannot be zero")
)

// Validator builds validated ClientRecords from raw batch rows.
//
// A row fails validation when name, country, or city is empty after trimming;
// failing rows are dropped by the caller with a debug log and never abort the
// batch. Dates never fail: the resolver defaults unparseable values and flags
// them so the caller can log the warning.
type Validator struct {
	dates *DateResolver
}

// NewValidator creates a Validator using the given date resolver, or a
// default wall-clock resolver when dates is nil.
func NewValidator(dates *DateResolver) *Validator {
	if dates == nil {
		dates = NewDateResolver(nil)
	}

	return &Validator{dates: dates}
}

// ValidateRow validates one raw row and builds its ClientRecord.
//
// Field values are extracted through the resolved column mapping (trimmed by
// the mapping itself). Identity keys are allocated only after the row passes
// validation, so dropped rows never consume a synthetic sequence number.
//
// The caller fills in SourceFile; SourceRow comes from the row itself.
//
// Returns the matching sentinel error, wrapped with the row ordinal, for the
// first missing required field.
func (v *Validator) ValidateRow(
	mapping *aliasing.ColumnMapping,
	row Row,
	keys *canonicalization.KeyAllocator,
) (*ClientRecord, error) {
	name := mapping.Value(row.Fields, aliasing.FieldName)
	if name == "" {
		return nil, fmt.Errorf("%w: row %d", ErrMissingName, row.Number)
	}

	country := mapping.Value(row.Fields, aliasing.FieldCountry)
	if country == "" {
		return nil, fmt.Errorf("%w: row %d", ErrMissingCountry, row.Number)
	}

	city := mapping.Value(row.Fields, aliasing.FieldCity)
	if city == "" {
		return nil, fmt.Errorf("%w: row %d", ErrMissingCity, row.Number)
	}

	eventDate, defaulted := v.dates.Resolve(mapping.Value(row.Fields, aliasing.FieldDate))

	return &ClientRecord{
		IdentityKey:   keys.Allocate(mapping.Value(row.Fields, aliasing.FieldID)),
		Name:          name,
		Country:       country,
		City:          city,
		EventDate:     eventDate,
		DateDefaulted: defaulted,
		SourceRow:     row.Number,
	}, nil
}
