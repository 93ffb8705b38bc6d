// Package estimate answers "how much data would this selection involve"
// without fetching it. Counts are exact when a partition is cached locally
// and size-estimated from remote byte sizes otherwise.
package estimate

import (
	"context"

	"github.com/permutans/arxiv-atlas/atlas/hub"
	"github.com/permutans/arxiv-atlas/atlas/partition"
)

// Counter is the local-cache surface the estimator reads exact counts from.
type Counter interface {
	IsCached(key partition.Key) bool
	CachedCount(key partition.Key) int
}

// Sizer is the remote-catalog surface used for size-based approximation.
type Sizer interface {
	FileInfo(ctx context.Context, key partition.Key) (hub.RemoteFileInfo, bool)
}

// Estimator resolves selections into exact/approximate paper counts and
// processing-time forecasts.
type Estimator struct {
	cache Counter
	hub   Sizer
	calib Calibration
}

// New creates an estimator. Zero-valued calibration fields fall back to
// the defaults.
func New(cache Counter, catalog Sizer, calib Calibration) *Estimator {
	return &Estimator{cache: cache, hub: catalog, calib: calib.withDefaults()}
}

// Count resolves one partition. exact is true when the count was read from
// a locally cached file; otherwise it is estimated from the remote byte
// size via the calibrated bytes-per-paper constant, or 0 when no remote
// size is available either.
func (e *Estimator) Count(ctx context.Context, key partition.Key) (count int, exact bool) {
	if e.cache.IsCached(key) {
		return e.cache.CachedCount(key), true
	}
	info, ok := e.hub.FileInfo(ctx, key)
	if !ok {
		return 0, false
	}
	return int(info.SizeBytes / e.calib.BytesPerPaper), false
}

// CategoryCounts breaks one category's totals down by resolution kind.
type CategoryCounts struct {
	Cached    int `json:"cached"`
	Estimated int `json:"estimated"`
	Total     int `json:"total"`
}

// MonthCounts breaks one month's totals down by resolution kind.
type MonthCounts struct {
	Cached    int `json:"cached"`
	Estimated int `json:"estimated"`
}

// SelectionCounts aggregates a (categories × months) selection. Adding a
// category or month can only increase or hold every total.
type SelectionCounts struct {
	ByCategory     map[string]CategoryCounts `json:"by_category"`
	ByMonth        map[string]MonthCounts    `json:"by_month"`
	Total          int                       `json:"total"`
	TotalCached    int                       `json:"total_cached"`
	TotalEstimated int                       `json:"total_estimated"`
	CachedPairs    int                       `json:"cached_count"`
	EstimatedPairs int                       `json:"estimated_count"`
}

// CountsForSelection resolves every (category × month) pair and
// accumulates the aggregate that backs UI cost feedback.
func (e *Estimator) CountsForSelection(ctx context.Context, categories []string, year string, months []string) SelectionCounts {
	agg := SelectionCounts{
		ByCategory: make(map[string]CategoryCounts, len(categories)),
		ByMonth:    make(map[string]MonthCounts, len(months)),
	}

	for _, category := range categories {
		catCounts := CategoryCounts{}
		for _, month := range months {
			key := partition.New(category, year, month)
			count, exact := e.Count(ctx, key)

			monthCounts := agg.ByMonth[month]
			if exact {
				catCounts.Cached += count
				monthCounts.Cached += count
				agg.TotalCached += count
				agg.CachedPairs++
			} else {
				catCounts.Estimated += count
				monthCounts.Estimated += count
				agg.TotalEstimated += count
				agg.EstimatedPairs++
			}
			catCounts.Total += count
			agg.ByMonth[month] = monthCounts
			agg.Total += count
		}
		agg.ByCategory[category] = catCounts
	}
	return agg
}

// ProcessingTime forecasts the embedding and projection stages for a paper
// count, per hardware profile.
func (e *Estimator) ProcessingTime(papers int) Forecast {
	return e.calib.ProcessingTime(papers)
}
