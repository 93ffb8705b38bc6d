// Package derived caches per-partition embedding output and
// selection-keyed 2D projection results, invalidated by source mtimes.
package derived

import (
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/permutans/arxiv-atlas/atlas/partition"
)

// Selection is a user-chosen set of subjects crossed with a set of
// year-months. Constructed per request, never persisted.
type Selection struct {
	Categories []string
	YearMonths []partition.YearMonth
}

// Keys returns the cross product of categories × year-months.
func (s Selection) Keys() []partition.Key {
	keys := make([]partition.Key, 0, len(s.Categories)*len(s.YearMonths))
	for _, category := range s.Categories {
		for _, ym := range s.YearMonths {
			keys = append(keys, partition.New(category, ym.Year, ym.Month))
		}
	}
	return keys
}

// Fingerprint is a stable hash over the selection's canonical form: both
// axes are sorted first, so set-equal selections map to the same value.
// 12 hex characters: this is a cache key, not a security boundary.
func (s Selection) Fingerprint() string {
	categories := append([]string(nil), s.Categories...)
	sort.Strings(categories)

	yearMonths := append([]partition.YearMonth(nil), s.YearMonths...)
	sort.Slice(yearMonths, func(i, j int) bool {
		if yearMonths[i].Year != yearMonths[j].Year {
			return yearMonths[i].Year < yearMonths[j].Year
		}
		return yearMonths[i].Month < yearMonths[j].Month
	})

	h := xxhash.New()
	for _, c := range categories {
		_, _ = h.WriteString(c)
		_, _ = h.WriteString(",")
	}
	_, _ = h.WriteString("|")
	for _, ym := range yearMonths {
		_, _ = h.WriteString(ym.Year)
		_, _ = h.WriteString("-")
		_, _ = h.WriteString(ym.Month)
		_, _ = h.WriteString(",")
	}
	return fmt.Sprintf("%016x", h.Sum64())[:12]
}
