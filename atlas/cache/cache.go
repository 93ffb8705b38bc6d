// Package cache manages the persisted layout of downloaded partitions and
// aggregated per-month files.
//
// Counts feed UI estimates, so a corrupt or truncated cache file is
// treated identically to an absent one: logged and counted as zero, never
// surfaced as an error.
package cache

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/permutans/arxiv-atlas/atlas/papers"
	"github.com/permutans/arxiv-atlas/atlas/partition"
)

// Manager owns the raw partition cache under dataDir and singleton
// reference files under cacheDir. Construct one long-lived instance at
// startup and pass it to request handlers.
type Manager struct {
	dataDir  string
	cacheDir string
	locks    *PathLocks
}

// NewManager creates a cache manager rooted at the given directories.
func NewManager(dataDir, cacheDir string) *Manager {
	return &Manager{
		dataDir:  dataDir,
		cacheDir: cacheDir,
		locks:    NewPathLocks(),
	}
}

// DataDir returns the raw partition cache root.
func (m *Manager) DataDir() string { return m.dataDir }

// LocalPath returns the canonical path for one partition.
func (m *Manager) LocalPath(key partition.Key) string {
	return key.LocalPath(m.dataDir)
}

// MonthFile returns the canonical path for a combined per-month file.
func (m *Manager) MonthFile(year, month string) string {
	return partition.MonthFile(m.dataDir, year, month)
}

// IsCached reports whether a partition file exists locally.
func (m *Manager) IsCached(key partition.Key) bool {
	_, err := os.Stat(m.LocalPath(key))
	return err == nil
}

// IsMonthCached reports whether a combined month file exists locally.
func (m *Manager) IsMonthCached(year, month string) bool {
	_, err := os.Stat(m.MonthFile(year, month))
	return err == nil
}

// CachedCount returns the row count of a cached partition, or 0 if the
// file is absent or unreadable.
func (m *Manager) CachedCount(key partition.Key) int {
	path := m.LocalPath(key)
	if _, err := os.Stat(path); err != nil {
		return 0
	}
	count, err := papers.CountFile(path)
	if err != nil {
		slog.Warn("Cached partition unreadable, counting as zero",
			"partition", key.String(), "error", err)
		return 0
	}
	return count
}

// MonthCount returns the row count of a combined month file, or 0 if the
// file is absent or unreadable.
func (m *Manager) MonthCount(year, month string) int {
	path := m.MonthFile(year, month)
	if _, err := os.Stat(path); err != nil {
		return 0
	}
	count, err := papers.CountFile(path)
	if err != nil {
		slog.Warn("Cached month file unreadable, counting as zero",
			"year", year, "month", month, "error", err)
		return 0
	}
	return count
}

// Store validates a downloaded file and places it at the canonical
// partition path, creating parent directories. The destination is either
// fully absent or fully written; a per-path lock serializes concurrent
// writers targeting the same partition.
func (m *Manager) Store(key partition.Key, sourcePath string) (string, error) {
	rows, err := papers.ReadFile(sourcePath)
	if err != nil {
		return "", fmt.Errorf("validate downloaded partition %s: %w", key.String(), err)
	}

	dest := m.LocalPath(key)
	release := m.locks.Acquire(dest)
	defer release()

	if err := papers.WriteFile(dest, rows); err != nil {
		return "", fmt.Errorf("store partition %s: %w", key.String(), err)
	}
	return dest, nil
}

// StoreMonth writes a combined per-month file under the per-path lock.
func (m *Manager) StoreMonth(year, month string, rows []papers.Paper) (string, error) {
	dest := m.MonthFile(year, month)
	release := m.locks.Acquire(dest)
	defer release()

	if err := papers.WriteFile(dest, rows); err != nil {
		return "", fmt.Errorf("store month %s-%s: %w", year, month, err)
	}
	return dest, nil
}

// LoadPartition reads a cached partition. ok is false when the partition
// is absent or unreadable.
func (m *Manager) LoadPartition(key partition.Key) ([]papers.Paper, bool) {
	path := m.LocalPath(key)
	if _, err := os.Stat(path); err != nil {
		return nil, false
	}
	rows, err := papers.ReadFile(path)
	if err != nil {
		slog.Warn("Cached partition unreadable", "partition", key.String(), "error", err)
		return nil, false
	}
	return rows, true
}

// ListCachedSubjects lists subjects cached for a given year/month.
func (m *Manager) ListCachedSubjects(year, month string) []string {
	folder := filepath.Join(m.dataDir, year, month)
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil
	}

	var subjects []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), partition.Ext) {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), partition.Ext)
		subjects = append(subjects, partition.SubjectFromSafe(stem))
	}
	sort.Strings(subjects)
	return subjects
}

// ListCachedYears lists all years with any cached data, from year folders
// and combined month file names.
func (m *Manager) ListCachedYears() []string {
	entries, err := os.ReadDir(m.dataDir)
	if err != nil {
		return nil
	}

	years := make(map[string]struct{})
	for _, e := range entries {
		if e.IsDir() && len(e.Name()) == 4 && isDigits(e.Name()) {
			years[e.Name()] = struct{}{}
		}
		if year, _, ok := parseMonthFileName(e.Name()); ok {
			years[year] = struct{}{}
		}
	}
	return sortedKeys(years)
}

// ListCachedMonths lists months with any cached data for a year.
func (m *Manager) ListCachedMonths(year string) []string {
	months := make(map[string]struct{})

	if entries, err := os.ReadDir(filepath.Join(m.dataDir, year)); err == nil {
		for _, e := range entries {
			if e.IsDir() && len(e.Name()) == 2 {
				months[e.Name()] = struct{}{}
			}
		}
	}

	if entries, err := os.ReadDir(m.dataDir); err == nil {
		for _, e := range entries {
			if y, month, ok := parseMonthFileName(e.Name()); ok && y == year {
				months[month] = struct{}{}
			}
		}
	}
	return sortedKeys(months)
}

// MonthSummary aggregates one cached month.
type MonthSummary struct {
	Subjects int `json:"subjects"`
	Papers   int `json:"papers"`
}

// YearSummary aggregates one cached year.
type YearSummary struct {
	Months map[string]MonthSummary `json:"months"`
	Total  int                     `json:"total"`
}

// Summary aggregates the whole cache.
type Summary struct {
	Years       map[string]YearSummary `json:"years"`
	TotalPapers int                    `json:"total_papers"`
	TotalFiles  int                    `json:"total_files"`
}

// GetSummary walks the cache root and aggregates read counts per
// (year, month, subject). O(files) with one metadata read per cached
// file: intended for operator/debug endpoints, not hot paths.
func (m *Manager) GetSummary() Summary {
	summary := Summary{Years: make(map[string]YearSummary)}

	for _, year := range m.ListCachedYears() {
		yearData := YearSummary{Months: make(map[string]MonthSummary)}

		for _, month := range m.ListCachedMonths(year) {
			subjects := m.ListCachedSubjects(year, month)
			monthTotal := 0
			for _, subject := range subjects {
				monthTotal += m.CachedCount(partition.New(subject, year, month))
				summary.TotalFiles++
			}
			yearData.Months[month] = MonthSummary{Subjects: len(subjects), Papers: monthTotal}
			yearData.Total += monthTotal
		}

		summary.Years[year] = yearData
		summary.TotalPapers += yearData.Total
	}
	return summary
}

// parseMonthFileName matches arxiv_<year>_<month>.jsonl aggregate files.
func parseMonthFileName(name string) (year, month string, ok bool) {
	if !strings.HasPrefix(name, "arxiv_") || !strings.HasSuffix(name, partition.Ext) {
		return "", "", false
	}
	stem := strings.TrimSuffix(name, partition.Ext)
	parts := strings.Split(stem, "_")
	if len(parts) != 3 || len(parts[1]) != 4 || len(parts[2]) != 2 {
		return "", "", false
	}
	if !isDigits(parts[1]) || !isDigits(parts[2]) {
		return "", "", false
	}
	return parts[1], parts[2], true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
