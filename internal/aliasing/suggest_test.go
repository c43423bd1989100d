package aliasing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuggestAliases_SingleMatch(t *testing.T) {
	suggestions := SuggestAliases([]string{"country"}, []string{"country_code", "town"})

	require.Len(t, suggestions, 1)
	assert.Equal(t, "country_code", suggestions[0].Column)
	assert.Equal(t, "country", suggestions[0].Field)
	assert.Equal(t, 7, suggestions[0].Overlap)
}

func TestSuggestAliases_SortedByOverlapDescending(t *testing.T) {
	suggestions := SuggestAliases(
		[]string{"country", "city"},
		[]string{"city_code", "country_iso"},
	)

	require.Len(t, suggestions, 2)
	assert.Equal(t, "country_iso", suggestions[0].Column)
	assert.Equal(t, 7, suggestions[0].Overlap)
	assert.Equal(t, "city_code", suggestions[1].Column)
	assert.Equal(t, 4, suggestions[1].Overlap)
}

func TestSuggestAliases_TieBreaksByColumnOrder(t *testing.T) {
	suggestions := SuggestAliases([]string{"date"}, []string{"date_a", "date_b"})

	require.Len(t, suggestions, 2)
	assert.Equal(t, "date_a", suggestions[0].Column)
	assert.Equal(t, "date_b", suggestions[1].Column)
}

func TestSuggestAliases_BelowMinimumOverlap(t *testing.T) {
	// "na" shares only two characters with "name": too short to suggest.
	suggestions := SuggestAliases([]string{"name"}, []string{"na", "x"})

	assert.Empty(t, suggestions)
}

func TestSuggestAliases_SkipsEmptyColumns(t *testing.T) {
	suggestions := SuggestAliases([]string{"city"}, []string{"", "city_name"})

	require.Len(t, suggestions, 1)
	assert.Equal(t, "city_name", suggestions[0].Column)
}

func TestSuggestAliases_NoMissingFields(t *testing.T) {
	assert.Nil(t, SuggestAliases(nil, []string{"name"}))
	assert.Nil(t, SuggestAliases([]string{}, []string{"name"}))
}

func TestSuggestAliases_NoColumns(t *testing.T) {
	assert.Nil(t, SuggestAliases([]string{"name"}, nil))
}

func TestLongestCommonSubstring(t *testing.T) {
	tests := []struct {
		name     string
		a        string
		b        string
		expected int
	}{
		{"identical", "country", "country", 7},
		{"prefix overlap", "country_code", "country", 7},
		{"contained", "city", "city_of_residence", 4},
		{"single char", "town", "date", 1},
		{"disjoint", "abc", "xyz", 0},
		{"empty left", "", "name", 0},
		{"empty right", "name", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, longestCommonSubstring(tt.a, tt.b))
		})
	}
}
