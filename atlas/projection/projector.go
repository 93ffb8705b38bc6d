// Package projection is the seam to the dimensionality-reduction
// collaborator: embedding matrix in, 2D coordinates out, deterministic
// given fixed hyperparameters.
package projection

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Projector reduces an embedding matrix to 2D coordinates.
type Projector interface {
	Project(ctx context.Context, vecs [][]float32) ([][2]float64, error)
}

// PCAProjector is the in-process implementation: a centered SVD projection
// onto the first two principal components. Fully deterministic, including
// the sign convention, so cached results reproduce bit-for-bit.
type PCAProjector struct{}

func NewPCA() *PCAProjector { return &PCAProjector{} }

// Project returns one (x, y) pair per input row. Fewer rows than output
// dimensions is a request-validity error and is surfaced, not degraded.
func (p *PCAProjector) Project(ctx context.Context, vecs [][]float32) ([][2]float64, error) {
	n := len(vecs)
	if n < 2 {
		return nil, fmt.Errorf("projection needs at least 2 rows, got %d", n)
	}
	dims := len(vecs[0])
	if dims < 2 {
		return nil, fmt.Errorf("projection needs at least 2 input dimensions, got %d", dims)
	}
	for i, v := range vecs {
		if len(v) != dims {
			return nil, fmt.Errorf("row %d has %d dimensions, expected %d", i, len(v), dims)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Center columns
	data := mat.NewDense(n, dims, nil)
	means := make([]float64, dims)
	for _, v := range vecs {
		for j, x := range v {
			means[j] += float64(x)
		}
	}
	for j := range means {
		means[j] /= float64(n)
	}
	for i, v := range vecs {
		for j, x := range v {
			data.Set(i, j, float64(x)-means[j])
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(data, mat.SVDThin); !ok {
		return nil, fmt.Errorf("svd factorization failed for %dx%d matrix", n, dims)
	}
	var v mat.Dense
	svd.VTo(&v)

	// Fix component signs so the largest-magnitude loading is positive;
	// SVD sign ambiguity would otherwise flip cached layouts between runs.
	basis := mat.NewDense(dims, 2, nil)
	for c := 0; c < 2; c++ {
		maxAbs, sign := 0.0, 1.0
		for r := 0; r < dims; r++ {
			if a := math.Abs(v.At(r, c)); a > maxAbs {
				maxAbs = a
				if v.At(r, c) < 0 {
					sign = -1.0
				} else {
					sign = 1.0
				}
			}
		}
		for r := 0; r < dims; r++ {
			basis.Set(r, c, sign*v.At(r, c))
		}
	}

	var coords mat.Dense
	coords.Mul(data, basis)

	out := make([][2]float64, n)
	for i := range out {
		out[i] = [2]float64{coords.At(i, 0), coords.At(i, 1)}
	}
	return out, nil
}
