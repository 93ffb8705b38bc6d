package derived

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/permutans/arxiv-atlas/atlas/embedding"
	"github.com/permutans/arxiv-atlas/atlas/papers"
	"github.com/permutans/arxiv-atlas/atlas/partition"
	"github.com/permutans/arxiv-atlas/atlas/projection"
)

func ym(year, month string) partition.YearMonth {
	return partition.YearMonth{Year: year, Month: month}
}

func TestFingerprintIsOrderInvariant(t *testing.T) {
	a := Selection{
		Categories: []string{"cs.AI", "cs.LG"},
		YearMonths: []partition.YearMonth{ym("2024", "01"), ym("2024", "03")},
	}
	b := Selection{
		Categories: []string{"cs.LG", "cs.AI"},
		YearMonths: []partition.YearMonth{ym("2024", "03"), ym("2024", "01")},
	}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Len(t, a.Fingerprint(), 12)
}

func TestFingerprintDistinguishesSelections(t *testing.T) {
	a := Selection{Categories: []string{"cs.AI"}, YearMonths: []partition.YearMonth{ym("2024", "01")}}
	b := Selection{Categories: []string{"cs.LG"}, YearMonths: []partition.YearMonth{ym("2024", "01")}}
	c := Selection{Categories: []string{"cs.AI"}, YearMonths: []partition.YearMonth{ym("2024", "02")}}

	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestSelectionKeysCrossProduct(t *testing.T) {
	sel := Selection{
		Categories: []string{"cs.AI", "cs.LG"},
		YearMonths: []partition.YearMonth{ym("2024", "01"), ym("2024", "02"), ym("2024", "03")},
	}
	assert.Len(t, sel.Keys(), 6)
}

// StoreTestSuite runs the derived-result store end to end with the hash
// embedding provider and the PCA projector.
type StoreTestSuite struct {
	suite.Suite
	store *Store
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func (s *StoreTestSuite) SetupTest() {
	root := s.T().TempDir()
	s.store = NewStore(
		filepath.Join(root, "embeddings"),
		filepath.Join(root, "cache"),
		"model-x",
		embedding.NewHashProvider(16),
		projection.NewPCA(),
		WithBatchSize(2),
	)
}

func samplePapers(prefix string, n int) []papers.Paper {
	rows := make([]papers.Paper, n)
	for i := range rows {
		rows[i] = papers.Paper{
			ArxivID:  fmt.Sprintf("%s.%05d", prefix, i),
			Title:    fmt.Sprintf("Paper %s %d", prefix, i),
			Abstract: fmt.Sprintf("Abstract text number %d about %s", i, prefix),
		}
	}
	return rows
}

func (s *StoreTestSuite) TestEmbedPartitionCachesResult() {
	key := partition.New("cs.AI", "2024", "03")
	rows := samplePapers("2403", 5)

	require.False(s.T(), s.store.IsEmbedded(key))

	count, err := s.store.EmbedPartition(context.Background(), key, rows, nil)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 5, count)
	assert.True(s.T(), s.store.IsEmbedded(key))

	cached, err := papers.ReadFile(s.store.EmbeddingPath(key))
	require.NoError(s.T(), err)
	require.Len(s.T(), cached, 5)
	assert.Len(s.T(), cached[0].Embedding, 16)

	// Second call short-circuits on the cached file even with no rows
	count, err = s.store.EmbedPartition(context.Background(), key, nil, nil)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 5, count)
}

func (s *StoreTestSuite) TestEmbedPartitionRecomputesCorruptCache() {
	key := partition.New("cs.AI", "2024", "03")
	path := s.store.EmbeddingPath(key)
	require.NoError(s.T(), os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(s.T(), os.WriteFile(path, []byte("garbage\n"), 0o644))

	count, err := s.store.EmbedPartition(context.Background(), key, samplePapers("2403", 3), nil)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 3, count)

	cached, err := papers.ReadFile(path)
	require.NoError(s.T(), err)
	assert.Len(s.T(), cached, 3)
}

func (s *StoreTestSuite) TestEmbedPartitionReportsProgress() {
	key := partition.New("cs.AI", "2024", "03")
	var calls int
	progress := func(current, total int, message string) {
		calls++
		assert.Equal(s.T(), 5, total)
	}

	_, err := s.store.EmbedPartition(context.Background(), key, samplePapers("2403", 5), progress)
	require.NoError(s.T(), err)
	// 3 batches of 2 plus the completion call
	assert.Equal(s.T(), 4, calls)
}

func (s *StoreTestSuite) embedSelection(sel Selection) {
	for i, key := range sel.Keys() {
		rows := samplePapers(fmt.Sprintf("%s%d", key.SafeSubject(), i), 4)
		_, err := s.store.EmbedPartition(context.Background(), key, rows, nil)
		require.NoError(s.T(), err)
	}
}

func (s *StoreTestSuite) TestCombinePartitionsSkipsMissing() {
	sel := Selection{
		Categories: []string{"cs.AI", "cs.LG"},
		YearMonths: []partition.YearMonth{ym("2024", "03")},
	}
	_, err := s.store.EmbedPartition(context.Background(),
		partition.New("cs.AI", "2024", "03"), samplePapers("a", 4), nil)
	require.NoError(s.T(), err)
	// cs.LG never embedded

	rows, err := s.store.CombinePartitions(sel)
	require.NoError(s.T(), err)
	assert.Len(s.T(), rows, 4)
}

func (s *StoreTestSuite) TestCombinePartitionsDeduplicates() {
	sel := Selection{
		Categories: []string{"cs.AI", "cs.LG"},
		YearMonths: []partition.YearMonth{ym("2024", "03")},
	}
	shared := samplePapers("x", 3)
	_, err := s.store.EmbedPartition(context.Background(), partition.New("cs.AI", "2024", "03"), shared, nil)
	require.NoError(s.T(), err)
	_, err = s.store.EmbedPartition(context.Background(), partition.New("cs.LG", "2024", "03"), shared, nil)
	require.NoError(s.T(), err)

	rows, err := s.store.CombinePartitions(sel)
	require.NoError(s.T(), err)
	assert.Len(s.T(), rows, 3)
}

func (s *StoreTestSuite) TestCombinePartitionsEmptySelectionErrors() {
	sel := Selection{Categories: []string{"cs.AI"}, YearMonths: []partition.YearMonth{ym("2024", "03")}}
	_, err := s.store.CombinePartitions(sel)
	assert.Error(s.T(), err)
}

func (s *StoreTestSuite) TestProjectEndToEndAndCacheHit() {
	sel := Selection{
		Categories: []string{"cs.AI", "cs.LG"},
		YearMonths: []partition.YearMonth{ym("2024", "03")},
	}
	s.embedSelection(sel)

	require.False(s.T(), s.store.IsProjectionCached(sel))

	rows, err := s.store.Project(context.Background(), sel, nil)
	require.NoError(s.T(), err)
	require.Len(s.T(), rows, 8)
	assert.True(s.T(), s.store.IsProjectionCached(sel))

	var nonZero bool
	for _, p := range rows {
		if p.X != 0 || p.Y != 0 {
			nonZero = true
		}
	}
	assert.True(s.T(), nonZero, "projection must attach coordinates")

	again, err := s.store.Project(context.Background(), sel, nil)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), rows, again)
}

func (s *StoreTestSuite) TestProjectionInvalidatedByNewerSource() {
	sel := Selection{
		Categories: []string{"cs.AI"},
		YearMonths: []partition.YearMonth{ym("2024", "03")},
	}
	s.embedSelection(sel)

	_, err := s.store.Project(context.Background(), sel, nil)
	require.NoError(s.T(), err)
	require.True(s.T(), s.store.IsProjectionCached(sel))

	// Touch the embedding partition to strictly after the cache entry
	src := s.store.EmbeddingPath(partition.New("cs.AI", "2024", "03"))
	future := time.Now().Add(time.Hour)
	require.NoError(s.T(), os.Chtimes(src, future, future))

	assert.False(s.T(), s.store.IsProjectionCached(sel))
	_, ok := s.store.LoadProjection(sel)
	assert.False(s.T(), ok)
}

func (s *StoreTestSuite) TestProjectionInvalidatedByMissingSource() {
	sel := Selection{
		Categories: []string{"cs.AI", "cs.LG"},
		YearMonths: []partition.YearMonth{ym("2024", "03")},
	}
	s.embedSelection(sel)

	_, err := s.store.Project(context.Background(), sel, nil)
	require.NoError(s.T(), err)

	require.NoError(s.T(), os.Remove(s.store.EmbeddingPath(partition.New("cs.LG", "2024", "03"))))
	assert.False(s.T(), s.store.IsProjectionCached(sel))
}
