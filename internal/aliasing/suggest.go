package aliasing

import (
	"sort"
)

// minOverlap is the shortest common substring considered a plausible alias.
// Two-character overlaps ("on" in "nation"/"location") are noise.
const minOverlap = 3

// SuggestedAlias represents an alias suggestion derived from a rejected
// header. These entries can be added to .geopulse.yaml to resolve recurring
// schema rejections.
type SuggestedAlias struct {
	// Column is the normalized source column the suggestion maps.
	Column string

	// Field is the canonical field the column likely represents.
	Field string

	// Overlap is the length of the longest common substring between the
	// column and the field; higher means a stronger suggestion.
	Overlap int
}

// SuggestAliases analyzes a rejected header and suggests alias entries for
// the fields that failed to resolve.
//
// Algorithm:
//  1. For each missing field, score every unclaimed column by longest common
//     substring length
//  2. Keep scores of at least minOverlap (shorter overlaps are coincidence)
//  3. Sort by overlap descending, ties by column order (strongest first)
//
// Example:
//
//	SuggestAliases([]string{"country"}, []string{"country_code", "town"})
//	// → [{Column: "country_code", Field: "country", Overlap: 7}]
func SuggestAliases(missing []string, columns []string) []SuggestedAlias {
	if len(missing) == 0 || len(columns) == 0 {
		return nil
	}

	order := make(map[string]int, len(columns))
	for i, column := range columns {
		if _, seen := order[column]; !seen {
			order[column] = i
		}
	}

	suggestions := make([]SuggestedAlias, 0, len(missing))

	for _, field := range missing {
		for _, column := range columns {
			if column == "" {
				continue
			}

			overlap := longestCommonSubstring(column, field)
			if overlap < minOverlap {
				continue
			}

			suggestions = append(suggestions, SuggestedAlias{
				Column:  column,
				Field:   field,
				Overlap: overlap,
			})
		}
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].Overlap != suggestions[j].Overlap {
			return suggestions[i].Overlap > suggestions[j].Overlap
		}

		return order[suggestions[i].Column] < order[suggestions[j].Column]
	})

	return suggestions
}

// longestCommonSubstring returns the length of the longest contiguous
// substring shared by a and b.
func longestCommonSubstring(a, b string) int {
	if a == "" || b == "" {
		return 0
	}

	// prev[j] holds the match length ending at a[i-1], b[j-1].
	prev := make([]int, len(b)+1)
	best := 0

	for i := 1; i <= len(a); i++ {
		current := make([]int, len(b)+1)

		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				current[j] = prev[j-1] + 1
				if current[j] > best {
					best = current[j]
				}
			}
		}

		prev = current
	}

	return best
}
