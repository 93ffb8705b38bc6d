package download

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permutans/arxiv-atlas/atlas/cache"
	"github.com/permutans/arxiv-atlas/atlas/papers"
	"github.com/permutans/arxiv-atlas/atlas/partition"
)

// fakeCatalog serves canned partition contents and records every download.
type fakeCatalog struct {
	mu        sync.Mutex
	subjects  []string
	rows      map[string][]papers.Paper
	downloads []string
	tmpDir    string
}

func (f *fakeCatalog) ListSubjects(ctx context.Context) []string { return f.subjects }

func (f *fakeCatalog) DownloadPartition(ctx context.Context, key partition.Key) (string, bool) {
	f.mu.Lock()
	f.downloads = append(f.downloads, key.String())
	rows, ok := f.rows[key.String()]
	f.mu.Unlock()
	if !ok {
		return "", false
	}
	path := filepath.Join(f.tmpDir, key.SafeSubject()+"_"+key.Year+key.Month+".jsonl")
	if err := papers.WriteFile(path, rows); err != nil {
		return "", false
	}
	return path, true
}

func (f *fakeCatalog) downloadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.downloads)
}

func fixedClock(year int, month time.Month) func() time.Time {
	return func() time.Time {
		return time.Date(year, month, 15, 12, 0, 0, 0, time.UTC)
	}
}

func newFixture(t *testing.T, catalog *fakeCatalog, opts ...Option) (*Orchestrator, *cache.Manager) {
	t.Helper()
	root := t.TempDir()
	catalog.tmpDir = t.TempDir()
	cm := cache.NewManager(filepath.Join(root, "data"), filepath.Join(root, "cache"))
	return New(catalog, cm, opts...), cm
}

func TestDownloadAndCacheFetchesOnce(t *testing.T) {
	key := partition.New("cs.AI", "2024", "03")
	catalog := &fakeCatalog{rows: map[string][]papers.Paper{
		key.String(): {{ArxivID: "2403.00001", Title: "A"}},
	}}
	o, cm := newFixture(t, catalog, WithClock(fixedClock(2026, time.August)))

	path, ok := o.DownloadAndCache(context.Background(), key, false)
	require.True(t, ok)
	assert.Equal(t, cm.LocalPath(key), path)
	assert.Equal(t, 1, catalog.downloadCount())

	// Past month, already cached: no second fetch
	_, ok = o.DownloadAndCache(context.Background(), key, false)
	require.True(t, ok)
	assert.Equal(t, 1, catalog.downloadCount())
}

func TestDownloadAndCacheForceRefetches(t *testing.T) {
	key := partition.New("cs.AI", "2024", "03")
	catalog := &fakeCatalog{rows: map[string][]papers.Paper{
		key.String(): {{ArxivID: "2403.00001"}},
	}}
	o, _ := newFixture(t, catalog, WithClock(fixedClock(2026, time.August)))

	ctx := context.Background()
	_, ok := o.DownloadAndCache(ctx, key, false)
	require.True(t, ok)
	_, ok = o.DownloadAndCache(ctx, key, true)
	require.True(t, ok)
	assert.Equal(t, 2, catalog.downloadCount())
}

func TestCurrentMonthAlwaysRefetched(t *testing.T) {
	key := partition.New("cs.AI", "2026", "08")
	catalog := &fakeCatalog{rows: map[string][]papers.Paper{
		key.String(): {{ArxivID: "2608.00001"}},
	}}
	o, _ := newFixture(t, catalog, WithClock(fixedClock(2026, time.August)))

	ctx := context.Background()
	_, ok := o.DownloadAndCache(ctx, key, false)
	require.True(t, ok)
	_, ok = o.DownloadAndCache(ctx, key, false)
	require.True(t, ok)
	assert.Equal(t, 2, catalog.downloadCount())
}

func TestCurrentMonthRefreshCanBeDisabled(t *testing.T) {
	key := partition.New("cs.AI", "2026", "08")
	catalog := &fakeCatalog{rows: map[string][]papers.Paper{
		key.String(): {{ArxivID: "2608.00001"}},
	}}
	o, _ := newFixture(t, catalog,
		WithClock(fixedClock(2026, time.August)),
		WithRefreshCurrentMonth(false))

	ctx := context.Background()
	_, ok := o.DownloadAndCache(ctx, key, false)
	require.True(t, ok)
	_, ok = o.DownloadAndCache(ctx, key, false)
	require.True(t, ok)
	assert.Equal(t, 1, catalog.downloadCount())
}

func TestFailedFetchLeavesCacheUntouched(t *testing.T) {
	key := partition.New("cs.AI", "2024", "03")
	catalog := &fakeCatalog{rows: map[string][]papers.Paper{
		key.String(): {{ArxivID: "2403.00001"}},
	}}
	o, cm := newFixture(t, catalog, WithClock(fixedClock(2026, time.August)))

	ctx := context.Background()
	_, ok := o.DownloadAndCache(ctx, key, false)
	require.True(t, ok)

	// Upstream loses the partition; a forced refetch fails but the cached
	// copy survives.
	catalog.rows = map[string][]papers.Paper{}
	_, ok = o.DownloadAndCache(ctx, key, true)
	assert.False(t, ok)
	assert.True(t, cm.IsCached(key))
	assert.Equal(t, 1, cm.CachedCount(key))
}

func TestDownloadMonthAggregatesAndDeduplicates(t *testing.T) {
	catalog := &fakeCatalog{
		subjects: []string{"cs.AI", "cs.LG", "stat.ML"},
		rows: map[string][]papers.Paper{
			"cs.AI/2024/03": {
				{ArxivID: "2403.00001", Title: "A"},
				{ArxivID: "2403.00002", Title: "B"},
			},
			"cs.LG/2024/03": {
				{ArxivID: "2403.00002", Title: "B"}, // cross-listed
				{ArxivID: "2403.00003", Title: "C"},
			},
			// stat.ML is absent upstream: partial failure tolerated
		},
	}
	o, cm := newFixture(t, catalog, WithClock(fixedClock(2026, time.August)))

	var progressCalls int
	progress := func(current, total int, message string) {
		progressCalls++
		assert.Equal(t, 3, total)
	}

	path, ok := o.DownloadMonth(context.Background(), "2024", "03", false, progress)
	require.True(t, ok)
	assert.Equal(t, cm.MonthFile("2024", "03"), path)
	assert.Equal(t, 3, progressCalls)
	assert.Equal(t, 3, cm.MonthCount("2024", "03"))
}

func TestDownloadMonthFailsWhenEverySubjectFails(t *testing.T) {
	catalog := &fakeCatalog{subjects: []string{"cs.AI", "cs.LG"}}
	o, cm := newFixture(t, catalog, WithClock(fixedClock(2026, time.August)))

	_, ok := o.DownloadMonth(context.Background(), "2024", "03", false, nil)
	assert.False(t, ok)
	assert.False(t, cm.IsMonthCached("2024", "03"))
}

func TestDownloadMonthCachedSkip(t *testing.T) {
	catalog := &fakeCatalog{
		subjects: []string{"cs.AI"},
		rows: map[string][]papers.Paper{
			"cs.AI/2024/03": {{ArxivID: "2403.00001"}},
		},
	}
	o, _ := newFixture(t, catalog, WithClock(fixedClock(2026, time.August)))

	ctx := context.Background()
	_, ok := o.DownloadMonth(ctx, "2024", "03", false, nil)
	require.True(t, ok)
	before := catalog.downloadCount()

	_, ok = o.DownloadMonth(ctx, "2024", "03", false, nil)
	require.True(t, ok)
	assert.Equal(t, before, catalog.downloadCount())
}

func TestLoadMonthDownloadsOnDemand(t *testing.T) {
	catalog := &fakeCatalog{
		subjects: []string{"cs.AI"},
		rows: map[string][]papers.Paper{
			"cs.AI/2024/03": {{ArxivID: "2403.00001", Title: "A"}},
		},
	}
	o, _ := newFixture(t, catalog, WithClock(fixedClock(2026, time.August)))

	rows, ok := o.LoadMonth(context.Background(), "2024", "03")
	require.True(t, ok)
	require.Len(t, rows, 1)
	assert.Equal(t, "2403.00001", rows[0].ArxivID)
}
