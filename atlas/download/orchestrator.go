// Package download decides whether partitions need (re)fetching and moves
// fetched files into canonical cache storage.
package download

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	internal "github.com/permutans/arxiv-atlas/atlas"
	"github.com/permutans/arxiv-atlas/atlas/cache"
	"github.com/permutans/arxiv-atlas/atlas/papers"
	"github.com/permutans/arxiv-atlas/atlas/partition"
)

// Catalog is the remote surface the orchestrator drives.
type Catalog interface {
	ListSubjects(ctx context.Context) []string
	DownloadPartition(ctx context.Context, key partition.Key) (string, bool)
}

// Orchestrator drives the catalog client and the local cache manager.
type Orchestrator struct {
	hub        Catalog
	cache      *cache.Manager
	clock      func() time.Time
	refresh    bool
	maxWorkers int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the wall clock (tests).
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) { o.clock = clock }
}

// WithRefreshCurrentMonth controls whether the current calendar month is
// re-fetched on every request regardless of cache state.
func WithRefreshCurrentMonth(refresh bool) Option {
	return func(o *Orchestrator) { o.refresh = refresh }
}

// WithMaxWorkers bounds the month-aggregate fan-out.
func WithMaxWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxWorkers = n
		}
	}
}

// New creates an orchestrator over a catalog client and cache manager.
func New(hub Catalog, cm *cache.Manager, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		hub:        hub,
		cache:      cm,
		clock:      time.Now,
		refresh:    true,
		maxWorkers: 4,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// isCurrentMonth reports whether the key refers to the wall-clock month.
// This is the one place "now" affects cache validity: the upstream dataset
// for the current month is assumed to still be receiving new records.
func (o *Orchestrator) isCurrentMonth(year, month string) bool {
	curYear, curMonth := partition.CurrentYearMonth(o.clock())
	return year == curYear && month == curMonth
}

// DownloadAndCache fetches one partition unless it is already cached. A
// cached partition for the current month is re-fetched when the refresh
// policy is on. On fetch failure any prior cache entry is left untouched
// and ok is false.
func (o *Orchestrator) DownloadAndCache(ctx context.Context, key partition.Key, force bool) (string, bool) {
	mustRefresh := o.refresh && o.isCurrentMonth(key.Year, key.Month)
	if !force && !mustRefresh && o.cache.IsCached(key) {
		return o.cache.LocalPath(key), true
	}

	tempPath, ok := o.hub.DownloadPartition(ctx, key)
	if !ok {
		return "", false
	}
	defer os.Remove(tempPath)

	dest, err := o.cache.Store(key, tempPath)
	if err != nil {
		slog.Warn("Storing downloaded partition failed", "partition", key.String(), "error", err)
		return "", false
	}
	return dest, true
}

// DownloadMonth aggregates across all subjects for a month: each subject
// is fetched concurrently, the resulting rows are deduplicated by arxiv id
// and written as the combined per-month file. Partial failures are
// tolerated; the download fails outright only when every subject fails.
func (o *Orchestrator) DownloadMonth(ctx context.Context, year, month string, force bool, progress internal.Progress) (string, bool) {
	mustRefresh := o.refresh && o.isCurrentMonth(year, month)
	if !force && !mustRefresh && o.cache.IsMonthCached(year, month) {
		count := o.cache.MonthCount(year, month)
		slog.Info("Month already cached", "year", year, "month", month, "papers", count)
		return o.cache.MonthFile(year, month), true
	}

	subjects := o.hub.ListSubjects(ctx)
	if len(subjects) == 0 {
		slog.Warn("No subjects available upstream", "year", year, "month", month)
		return "", false
	}

	var (
		mu   sync.Mutex
		rows []papers.Paper
		done int
	)

	p := pool.New().WithMaxGoroutines(o.maxWorkers).WithContext(ctx)
	for _, subject := range subjects {
		p.Go(func(ctx context.Context) error {
			key := partition.New(subject, year, month)
			tempPath, ok := o.hub.DownloadPartition(ctx, key)

			var subjectRows []papers.Paper
			if ok {
				var err error
				subjectRows, err = papers.ReadFile(tempPath)
				_ = os.Remove(tempPath)
				if err != nil {
					slog.Warn("Downloaded partition unreadable, skipping",
						"partition", key.String(), "error", err)
					subjectRows = nil
				}
			}

			mu.Lock()
			rows = append(rows, subjectRows...)
			done++
			current := done
			mu.Unlock()

			if progress != nil {
				progress(current, len(subjects),
					fmt.Sprintf("%s: %d papers", subject, len(subjectRows)))
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		slog.Warn("Month download interrupted", "year", year, "month", month, "error", err)
		return "", false
	}

	if len(rows) == 0 {
		slog.Warn("No data found for month", "year", year, "month", month)
		return "", false
	}

	combined := papers.Dedupe(rows)
	dest, err := o.cache.StoreMonth(year, month, combined)
	if err != nil {
		slog.Warn("Storing month file failed", "year", year, "month", month, "error", err)
		return "", false
	}
	slog.Info("Saved month file", "year", year, "month", month, "papers", len(combined))
	return dest, true
}

// LoadMonth loads a month's rows, downloading the aggregate if necessary.
func (o *Orchestrator) LoadMonth(ctx context.Context, year, month string) ([]papers.Paper, bool) {
	if !o.cache.IsMonthCached(year, month) {
		if _, ok := o.DownloadMonth(ctx, year, month, false, nil); !ok {
			return nil, false
		}
	}
	rows, err := papers.ReadFile(o.cache.MonthFile(year, month))
	if err != nil {
		slog.Warn("Month file unreadable", "year", year, "month", month, "error", err)
		return nil, false
	}
	return rows, true
}
