package projection

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectValidation(t *testing.T) {
	p := NewPCA()
	ctx := context.Background()

	_, err := p.Project(ctx, nil)
	assert.Error(t, err)

	_, err = p.Project(ctx, [][]float32{{1, 2, 3}})
	assert.Error(t, err, "single row cannot span two components")

	_, err = p.Project(ctx, [][]float32{{1}, {2}, {3}})
	assert.Error(t, err, "one input dimension cannot span two components")

	_, err = p.Project(ctx, [][]float32{{1, 2}, {1, 2, 3}})
	assert.Error(t, err, "ragged rows must be rejected")
}

func TestProjectIsDeterministic(t *testing.T) {
	p := NewPCA()
	ctx := context.Background()
	vecs := [][]float32{
		{1, 0, 0, 0.5},
		{0, 1, 0, 0.1},
		{0, 0, 1, 0.9},
		{1, 1, 0, 0.3},
		{0.2, 0.8, 0.4, 0.6},
	}

	first, err := p.Project(ctx, vecs)
	require.NoError(t, err)
	require.Len(t, first, len(vecs))

	second, err := p.Project(ctx, vecs)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestProjectPreservesDominantAxis(t *testing.T) {
	// Variance is concentrated in the first input dimension, so the first
	// output component must order points the same way that dimension does.
	p := NewPCA()
	vecs := [][]float32{
		{-10, 0.1, 0},
		{0, -0.1, 0.1},
		{10, 0, -0.1},
	}

	coords, err := p.Project(context.Background(), vecs)
	require.NoError(t, err)
	assert.Less(t, coords[0][0], coords[1][0])
	assert.Less(t, coords[1][0], coords[2][0])
}

func TestProjectOutputIsCentered(t *testing.T) {
	p := NewPCA()
	vecs := [][]float32{
		{3, 1, 4}, {1, 5, 9}, {2, 6, 5}, {3, 5, 8},
	}

	coords, err := p.Project(context.Background(), vecs)
	require.NoError(t, err)

	var sumX, sumY float64
	for _, c := range coords {
		sumX += c[0]
		sumY += c[1]
	}
	assert.InDelta(t, 0, sumX, 1e-9)
	assert.InDelta(t, 0, sumY, 1e-9)
	for _, c := range coords {
		assert.False(t, math.IsNaN(c[0]) || math.IsNaN(c[1]))
	}
}

func TestProjectHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPCA().Project(ctx, [][]float32{{1, 2}, {3, 4}})
	assert.ErrorIs(t, err, context.Canceled)
}
