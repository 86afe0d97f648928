package hrp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfolio/quantfolio/internal/domain"
	"github.com/quantfolio/quantfolio/internal/stats"
)

func momentsFor(t *testing.T, series map[string][]float64) *stats.Moments {
	t.Helper()
	m, err := domain.NewReturnMatrix(series)
	require.NoError(t, err)
	moments, err := stats.Compute(m)
	require.NoError(t, err)
	return moments
}

func TestAllocate_TwoAssetsEqualVariance(t *testing.T) {
	// Equal variance, zero correlation: inverse-variance bisection splits
	// exactly in half.
	moments := momentsFor(t, map[string][]float64{
		"AAA": {0.01, -0.01, 0.01, -0.01},
		"BBB": {0.01, 0.01, -0.01, -0.01},
	})

	result, err := New().Allocate(context.Background(), moments)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, result.Weights["AAA"], 1e-12)
	assert.InDelta(t, 0.5, result.Weights["BBB"], 1e-12)
	require.Len(t, result.ClusterTree, 1)
	assert.Equal(t, 0, result.ClusterTree[0].Left)
	assert.Equal(t, 1, result.ClusterTree[0].Right)
}

func TestAllocate_CorrelatedPairMergesFirst(t *testing.T) {
	// AAA and BBB move nearly in lockstep; CCC is on its own. The first
	// merge has the smallest correlation distance, so it joins 0 and 1.
	moments := momentsFor(t, map[string][]float64{
		"AAA": {0.010, -0.010, 0.020, -0.020, 0.015},
		"BBB": {0.012, -0.008, 0.018, -0.022, 0.014},
		"CCC": {0.005, 0.010, -0.020, 0.010, -0.005},
	})

	result, err := New().Allocate(context.Background(), moments)
	require.NoError(t, err)

	require.Len(t, result.ClusterTree, 2)
	first := result.ClusterTree[0]
	assert.Equal(t, 0, first.Left)
	assert.Equal(t, 1, first.Right)
	assert.Less(t, first.Distance, result.ClusterTree[1].Distance)

	// Quasi-diagonalization keeps the correlated pair adjacent.
	require.Len(t, result.LeafOrder, 3)
	posAAA, posBBB := -1, -1
	for i, sym := range result.LeafOrder {
		switch sym {
		case "AAA":
			posAAA = i
		case "BBB":
			posBBB = i
		}
	}
	diff := posAAA - posBBB
	if diff < 0 {
		diff = -diff
	}
	assert.Equal(t, 1, diff)
}

func TestAllocate_WeightsOnSimplex(t *testing.T) {
	moments := momentsFor(t, map[string][]float64{
		"AAA": {0.012, -0.008, 0.015, -0.011, 0.004},
		"BBB": {0.021, 0.017, -0.019, -0.016, 0.003},
		"CCC": {-0.005, 0.009, 0.002, -0.012, 0.007},
		"DDD": {0.002, -0.014, 0.006, 0.011, -0.009},
	})

	result, err := New().Allocate(context.Background(), moments)
	require.NoError(t, err)

	sum := 0.0
	for sym, w := range result.Weights {
		require.GreaterOrEqual(t, w, 0.0, "asset %s", sym)
		sum += w
	}
	assert.InDelta(t, 1.0, sum, domain.WeightSumTolerance)
	assert.Len(t, result.ClusterTree, 3)
	assert.Greater(t, result.PortfolioVolatility, 0.0)
}

func TestAllocate_Deterministic(t *testing.T) {
	series := map[string][]float64{
		"AAA": {0.012, -0.008, 0.015, -0.011, 0.004},
		"BBB": {0.021, 0.017, -0.019, -0.016, 0.003},
		"CCC": {-0.005, 0.009, 0.002, -0.012, 0.007},
	}

	r1, err := New().Allocate(context.Background(), momentsFor(t, series))
	require.NoError(t, err)
	r2, err := New().Allocate(context.Background(), momentsFor(t, series))
	require.NoError(t, err)

	assert.Equal(t, r1.ClusterTree, r2.ClusterTree)
	assert.Equal(t, r1.LeafOrder, r2.LeafOrder)
	for sym := range r1.Weights {
		assert.Equal(t, r1.Weights[sym], r2.Weights[sym], "asset %s", sym)
	}
}

func TestAllocate_IdenticalAssetsTieBreak(t *testing.T) {
	// Three identical series: all pairwise distances are zero, so the tie
	// break picks the lowest index pair (0, 1) first.
	series := []float64{0.01, -0.02, 0.015, -0.005}
	moments := momentsFor(t, map[string][]float64{
		"AAA": append([]float64(nil), series...),
		"BBB": append([]float64(nil), series...),
		"CCC": append([]float64(nil), series...),
	})

	result, err := New().Allocate(context.Background(), moments)
	require.NoError(t, err)

	require.Len(t, result.ClusterTree, 2)
	assert.Equal(t, 0, result.ClusterTree[0].Left)
	assert.Equal(t, 1, result.ClusterTree[0].Right)
	// Second merge joins the pair cluster (id 3) with the remaining leaf.
	assert.Equal(t, 2, result.ClusterTree[1].Left)
	assert.Equal(t, 3, result.ClusterTree[1].Right)

	sum := 0.0
	for _, w := range result.Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, domain.WeightSumTolerance)
}

func TestAllocate_ContextCancelled(t *testing.T) {
	moments := momentsFor(t, map[string][]float64{
		"AAA": {0.01, -0.01},
		"BBB": {0.02, -0.02},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Allocate(ctx, moments)
	require.Error(t, err)
	assert.Equal(t, domain.CodeAborted, domain.CodeOf(err))
}
