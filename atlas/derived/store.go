package derived

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/permutans/arxiv-atlas/atlas/cache"
	"github.com/permutans/arxiv-atlas/atlas/embedding"
	"github.com/permutans/arxiv-atlas/atlas/papers"
	"github.com/permutans/arxiv-atlas/atlas/partition"
	"github.com/permutans/arxiv-atlas/atlas/projection"

	internal "github.com/permutans/arxiv-atlas/atlas"
)

const projectionsSubdir = "projections"

// Store owns the embedding partition cache and the projection result
// cache. Embedding output is keyed by partition plus model id; projection
// results are keyed by selection fingerprint and treated as a derived view
// whose staleness is defined purely by its inputs' timestamps.
type Store struct {
	embedDir   string
	cacheDir   string
	modelID    string
	provider   embedding.Provider
	projector  projection.Projector
	batchSize  int
	textBudget int
	locks      *cache.PathLocks
}

// Option configures a Store.
type Option func(*Store)

// WithBatchSize sets how many papers are embedded per provider call.
func WithBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithTextBudget caps the embed-text length in characters.
func WithTextBudget(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.textBudget = n
		}
	}
}

// NewStore creates a derived-result store.
func NewStore(embedDir, cacheDir, modelID string, provider embedding.Provider, projector projection.Projector, opts ...Option) *Store {
	s := &Store{
		embedDir:   embedDir,
		cacheDir:   cacheDir,
		modelID:    modelID,
		provider:   provider,
		projector:  projector,
		batchSize:  100,
		textBudget: 512,
		locks:      cache.NewPathLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EmbeddingPath returns the canonical path of one embedding partition.
func (s *Store) EmbeddingPath(key partition.Key) string {
	return key.EmbeddingPath(s.embedDir, s.modelID)
}

// IsEmbedded reports whether a partition's embedding output is cached.
func (s *Store) IsEmbedded(key partition.Key) bool {
	_, err := os.Stat(s.EmbeddingPath(key))
	return err == nil
}

// EmbedPartition runs the rows through the embedding provider in batches
// and caches the enriched partition. A cached partition short-circuits;
// a corrupt cached file is treated as missing and recomputed. Returns the
// number of rows embedded.
func (s *Store) EmbedPartition(ctx context.Context, key partition.Key, rows []papers.Paper, progress internal.Progress) (int, error) {
	path := s.EmbeddingPath(key)
	if _, err := os.Stat(path); err == nil {
		count, err := papers.CountFile(path)
		if err == nil {
			if progress != nil {
				progress(count, count, fmt.Sprintf("Loaded cached %s", key.String()))
			}
			return count, nil
		}
		slog.Warn("Cached embedding partition unreadable, recomputing",
			"partition", key.String(), "error", err)
	}

	if len(rows) == 0 {
		return 0, nil
	}

	total := len(rows)
	embedded := make([]papers.Paper, 0, total)
	for start := 0; start < total; start += s.batchSize {
		end := min(start+s.batchSize, total)
		batch := rows[start:end]

		if progress != nil {
			progress(start, total, fmt.Sprintf("Embedding %s (%d/%d)", key.String(), start, total))
		}

		texts := make([]string, len(batch))
		for i, p := range batch {
			texts[i] = p.EmbedText(s.textBudget)
		}
		vecs, err := s.provider.Embed(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("embed partition %s rows %d..%d: %w", key.String(), start, end, err)
		}
		for i, p := range batch {
			p.Embedding = vecs[i]
			embedded = append(embedded, p)
		}
	}

	release := s.locks.Acquire(path)
	defer release()
	if err := papers.WriteFile(path, embedded); err != nil {
		return 0, fmt.Errorf("cache embedding partition %s: %w", key.String(), err)
	}

	if progress != nil {
		progress(total, total, fmt.Sprintf("Completed %s", key.String()))
	}
	return total, nil
}

func (s *Store) projectionPath(sel Selection) string {
	return filepath.Join(s.cacheDir, projectionsSubdir, sel.Fingerprint()+partition.Ext)
}

// IsProjectionCached reports whether a valid cached projection exists for
// the selection. The entry is valid only if every embedding partition the
// selection implies still exists and none has a last-modified time
// strictly newer than the entry's own.
func (s *Store) IsProjectionCached(sel Selection) bool {
	entry, err := os.Stat(s.projectionPath(sel))
	if err != nil {
		return false
	}
	for _, key := range sel.Keys() {
		src, err := os.Stat(s.EmbeddingPath(key))
		if err != nil {
			return false
		}
		if src.ModTime().After(entry.ModTime()) {
			return false
		}
	}
	return true
}

// LoadProjection returns the cached projection rows for a selection, or
// ok=false when absent or stale.
func (s *Store) LoadProjection(sel Selection) ([]papers.Paper, bool) {
	if !s.IsProjectionCached(sel) {
		return nil, false
	}
	rows, err := papers.ReadFile(s.projectionPath(sel))
	if err != nil {
		slog.Warn("Projection cache unreadable", "fingerprint", sel.Fingerprint(), "error", err)
		return nil, false
	}
	return rows, true
}

// SaveProjection persists projection rows for a selection, silently
// superseding any prior entry for the same fingerprint.
func (s *Store) SaveProjection(rows []papers.Paper, sel Selection) error {
	path := s.projectionPath(sel)
	release := s.locks.Acquire(path)
	defer release()
	if err := papers.WriteFile(path, rows); err != nil {
		return fmt.Errorf("save projection %s: %w", sel.Fingerprint(), err)
	}
	return nil
}

// CombinePartitions loads every existing embedding partition implied by
// the selection, concatenates and deduplicates by arxiv id. No embedded
// partitions at all is a request-validity error.
func (s *Store) CombinePartitions(sel Selection) ([]papers.Paper, error) {
	var rows []papers.Paper
	for _, key := range sel.Keys() {
		path := s.EmbeddingPath(key)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		partRows, err := papers.ReadFile(path)
		if err != nil {
			slog.Warn("Embedding partition unreadable, skipping",
				"partition", key.String(), "error", err)
			continue
		}
		rows = append(rows, partRows...)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no embedded partitions found for selection %s", sel.Fingerprint())
	}
	return papers.Dedupe(rows), nil
}

// Project combines the selection's embedding partitions, runs the
// projection collaborator, attaches the 2D coordinates and caches the
// result. A valid cached projection is returned as-is.
func (s *Store) Project(ctx context.Context, sel Selection, progress internal.Progress) ([]papers.Paper, error) {
	if rows, ok := s.LoadProjection(sel); ok {
		if progress != nil {
			progress(1, 1, "Loaded cached projection")
		}
		return rows, nil
	}

	rows, err := s.CombinePartitions(sel)
	if err != nil {
		return nil, err
	}

	if progress != nil {
		progress(0, 1, fmt.Sprintf("Projecting %d papers", len(rows)))
	}
	vecs := make([][]float32, len(rows))
	for i, p := range rows {
		vecs[i] = p.Embedding
	}
	coords, err := s.projector.Project(ctx, vecs)
	if err != nil {
		return nil, fmt.Errorf("project selection %s: %w", sel.Fingerprint(), err)
	}
	for i := range rows {
		rows[i].X = coords[i][0]
		rows[i].Y = coords[i][1]
	}

	if err := s.SaveProjection(rows, sel); err != nil {
		return nil, err
	}
	if progress != nil {
		progress(1, 1, "Projection complete")
	}
	return rows, nil
}
