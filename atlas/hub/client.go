// Package hub talks to the remote dataset repository service. The catalog
// is browsed through a tree-listing call per path prefix; partition files
// are fetched whole by exact path.
//
// Browsing policy: absence of evidence is evidence of absence. Every
// listing that encounters a remote error returns an empty result, never an
// error, because the caller always has a valid fallback (treat as zero
// available). Failures are logged for operator visibility.
package hub

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	internal "github.com/permutans/arxiv-atlas/atlas"
	"github.com/permutans/arxiv-atlas/atlas/partition"
)

// RemoteFileInfo describes one remote partition file without downloading
// its contents.
type RemoteFileInfo struct {
	SizeBytes int64
	Path      string
}

// treeEntry is one folder/file entry of the repository tree API.
type treeEntry struct {
	Type string `json:"type"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Client lists and fetches partitions from the dataset repository.
//
// Listing and file-info results are memoized for the lifetime of the
// process: the remote catalog changes rarely relative to request volume,
// and staleness is an accepted tradeoff for this component. Only
// successful responses are memoized; transient failures are retried on the
// next call rather than pinned as empty.
type Client struct {
	endpoint string
	repoID   string
	tmpDir   string
	http     *http.Client
	log      zerolog.Logger
	breaker  *gobreaker.CircuitBreaker[[]treeEntry]

	mu       sync.RWMutex
	subjects []string
	years    map[string][]string
	months   map[string][]string
	fileInfo map[string]*RemoteFileInfo
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client (tests, timeouts).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTempDir overrides where downloaded partition files land.
func WithTempDir(dir string) Option {
	return func(c *Client) { c.tmpDir = dir }
}

// NewClient constructs a catalog client for one dataset repository.
func NewClient(endpoint, repoID string, opts ...Option) *Client {
	c := &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		repoID:   repoID,
		tmpDir:   filepath.Join(os.TempDir(), internal.DefaultAppName),
		http:     &http.Client{Timeout: 60 * time.Second},
		log:      internal.GetLogger().With().Str("component", "hub").Logger(),
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]treeEntry](gobreaker.Settings{
		Name:    "hub-catalog",
		Timeout: 30 * time.Second,
	})
	for _, opt := range opts {
		opt(c)
	}
	c.resetMemo()
	return c
}

func (c *Client) resetMemo() {
	c.subjects = nil
	c.years = make(map[string][]string)
	c.months = make(map[string][]string)
	c.fileInfo = make(map[string]*RemoteFileInfo)
}

// ClearCache drops all memoized listing results. Intended for tests and
// forced refresh.
func (c *Client) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetMemo()
}

// ListSubjects lists subject codes from the dataset's data/ directory.
func (c *Client) ListSubjects(ctx context.Context) []string {
	c.mu.RLock()
	if c.subjects != nil {
		cached := c.subjects
		c.mu.RUnlock()
		return cached
	}
	c.mu.RUnlock()

	entries, err := c.listTree(ctx, "data")
	if err != nil {
		c.log.Warn().Err(err).Msg("listing subjects failed, treating as none available")
		return nil
	}
	subjects := folderNames(entries)

	c.mu.Lock()
	c.subjects = subjects
	c.mu.Unlock()
	return subjects
}

// ListYears lists years available upstream, probing the first subject.
func (c *Client) ListYears(ctx context.Context) []string {
	subjects := c.ListSubjects(ctx)
	if len(subjects) == 0 {
		return nil
	}
	return c.ListYearsForSubject(ctx, subjects[0])
}

// ListYearsForSubject lists available years for a subject.
func (c *Client) ListYearsForSubject(ctx context.Context, subject string) []string {
	c.mu.RLock()
	if cached, ok := c.years[subject]; ok {
		c.mu.RUnlock()
		return cached
	}
	c.mu.RUnlock()

	entries, err := c.listTree(ctx, path.Join("data", subject))
	if err != nil {
		c.log.Warn().Err(err).Str("subject", subject).Msg("listing years failed, treating as none available")
		return nil
	}
	years := folderNames(entries)

	c.mu.Lock()
	c.years[subject] = years
	c.mu.Unlock()
	return years
}

// ListMonthsForSubjectYear lists available months for a subject/year.
func (c *Client) ListMonthsForSubjectYear(ctx context.Context, subject, year string) []string {
	memoKey := subject + "/" + year

	c.mu.RLock()
	if cached, ok := c.months[memoKey]; ok {
		c.mu.RUnlock()
		return cached
	}
	c.mu.RUnlock()

	entries, err := c.listTree(ctx, path.Join("data", subject, year))
	if err != nil {
		c.log.Warn().Err(err).Str("subject", subject).Str("year", year).
			Msg("listing months failed, treating as none available")
		return nil
	}
	months := folderNames(entries)

	c.mu.Lock()
	c.months[memoKey] = months
	c.mu.Unlock()
	return months
}

// FileInfo reports the byte size of a partition file without downloading
// it. The second return is false when the partition does not exist
// upstream or the catalog could not be reached.
func (c *Client) FileInfo(ctx context.Context, key partition.Key) (RemoteFileInfo, bool) {
	memoKey := key.String()

	c.mu.RLock()
	if cached, ok := c.fileInfo[memoKey]; ok {
		c.mu.RUnlock()
		if cached == nil {
			return RemoteFileInfo{}, false
		}
		return *cached, true
	}
	c.mu.RUnlock()

	entries, err := c.listTree(ctx, path.Join("data", key.Subject, key.Year, key.Month))
	if err != nil {
		c.log.Warn().Err(err).Str("partition", key.String()).
			Msg("file info lookup failed, treating as absent")
		return RemoteFileInfo{}, false
	}

	var info *RemoteFileInfo
	for _, e := range entries {
		if e.Type == "file" && strings.HasSuffix(e.Path, partition.Ext) {
			info = &RemoteFileInfo{SizeBytes: e.Size, Path: e.Path}
			break
		}
	}

	c.mu.Lock()
	c.fileInfo[memoKey] = info
	c.mu.Unlock()

	if info == nil {
		return RemoteFileInfo{}, false
	}
	return *info, true
}

// DownloadPartition fetches one partition file whole, writing it to a
// uniquely named file under the client's temp directory. Returns the local
// path, or ok=false on any failure.
func (c *Client) DownloadPartition(ctx context.Context, key partition.Key) (string, bool) {
	url := fmt.Sprintf("%s/datasets/%s/resolve/main/%s", c.endpoint, c.repoID, key.RemotePath())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.log.Error().Err(err).Str("partition", key.String()).Msg("building download request failed")
		return "", false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("partition", key.String()).Msg("download failed")
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.log.Warn().Int("status", resp.StatusCode).Str("partition", key.String()).Msg("download failed")
		return "", false
	}

	if err := os.MkdirAll(c.tmpDir, 0o755); err != nil {
		c.log.Error().Err(err).Str("dir", c.tmpDir).Msg("creating download dir failed")
		return "", false
	}
	dest := filepath.Join(c.tmpDir, uuid.NewString()+partition.Ext)
	f, err := os.Create(dest)
	if err != nil {
		c.log.Error().Err(err).Str("path", dest).Msg("creating download file failed")
		return "", false
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(dest)
		c.log.Warn().Err(err).Str("partition", key.String()).Msg("download interrupted")
		return "", false
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(dest)
		c.log.Error().Err(err).Str("path", dest).Msg("closing download file failed")
		return "", false
	}
	return dest, true
}

// listTree performs one tree-listing call through the circuit breaker. An
// open breaker short-circuits to an error, which callers read as absence.
func (c *Client) listTree(ctx context.Context, pathInRepo string) ([]treeEntry, error) {
	return c.breaker.Execute(func() ([]treeEntry, error) {
		url := fmt.Sprintf("%s/api/datasets/%s/tree/main/%s", c.endpoint, c.repoID, pathInRepo)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("build tree request: %w", err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("tree request %s: %w", pathInRepo, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("tree request %s: status %d", pathInRepo, resp.StatusCode)
		}
		var entries []treeEntry
		if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
			return nil, fmt.Errorf("decode tree response %s: %w", pathInRepo, err)
		}
		return entries, nil
	})
}

// folderNames extracts sorted leaf names of directory entries. Always
// non-nil so a successful empty listing memoizes distinctly from failure.
func folderNames(entries []treeEntry) []string {
	names := []string{}
	for _, e := range entries {
		if e.Type != "directory" {
			continue
		}
		names = append(names, path.Base(e.Path))
	}
	sort.Strings(names)
	return names
}
