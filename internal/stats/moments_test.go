package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfolio/quantfolio/internal/domain"
)

func mustMatrix(t *testing.T, series map[string][]float64) *domain.ReturnMatrix {
	t.Helper()
	m, err := domain.NewReturnMatrix(series)
	require.NoError(t, err)
	return m
}

func TestCompute_SampleCovariance(t *testing.T) {
	m := mustMatrix(t, map[string][]float64{
		"AAA": {0.01, 0.02, 0.03},
		"BBB": {0.03, 0.02, 0.01},
	})

	moments, err := Compute(m)
	require.NoError(t, err)

	assert.Equal(t, []string{"AAA", "BBB"}, moments.Symbols)
	assert.InDelta(t, 0.02, moments.Mean[0], 1e-12)
	assert.InDelta(t, 0.02, moments.Mean[1], 1e-12)

	// Sample covariance uses the n−1 denominator.
	assert.InDelta(t, 1e-4, moments.Cov[0][0], 1e-15)
	assert.InDelta(t, 1e-4, moments.Cov[1][1], 1e-15)
	assert.InDelta(t, -1e-4, moments.Cov[0][1], 1e-15)
	assert.Equal(t, moments.Cov[0][1], moments.Cov[1][0])
}

func TestCompute_CorrelationClamped(t *testing.T) {
	// Perfectly anti-correlated series.
	m := mustMatrix(t, map[string][]float64{
		"AAA": {0.01, 0.02, 0.03},
		"BBB": {0.03, 0.02, 0.01},
	})
	moments, err := Compute(m)
	require.NoError(t, err)

	assert.Equal(t, 1.0, moments.Corr[0][0])
	assert.InDelta(t, -1.0, moments.Corr[0][1], 1e-12)
	assert.GreaterOrEqual(t, moments.Corr[0][1], -1.0)
}

func TestCompute_ZeroVarianceAsset(t *testing.T) {
	m := mustMatrix(t, map[string][]float64{
		"FLAT": {0.01, 0.01, 0.01},
		"MOVE": {0.01, 0.02, 0.03},
	})
	moments, err := Compute(m)
	require.NoError(t, err)

	// Zero variance yields zero correlation rather than NaN.
	assert.Equal(t, 0.0, moments.Corr[0][1])
	assert.Equal(t, 1.0, moments.Corr[0][0])
}

func TestCheckConditioning_WellConditioned(t *testing.T) {
	m := mustMatrix(t, map[string][]float64{
		"AAA": {0.01, -0.01, 0.02, -0.02},
		"BBB": {0.02, 0.01, -0.01, -0.02},
	})
	moments, err := Compute(m)
	require.NoError(t, err)

	l, err := moments.CheckConditioning()
	require.NoError(t, err)
	require.Len(t, l, 2)
}

func TestCheckConditioning_DuplicatedAsset(t *testing.T) {
	series := []float64{0.01, -0.02, 0.015, -0.005}
	m := mustMatrix(t, map[string][]float64{
		"AAA": series,
		"BBB": append([]float64(nil), series...),
	})
	moments, err := Compute(m)
	require.NoError(t, err)

	_, err = moments.CheckConditioning()
	require.Error(t, err)
	assert.Equal(t, domain.CodeIllConditioned, domain.CodeOf(err))
}

func TestPortfolioVolatilityAndReturn(t *testing.T) {
	moments := &Moments{
		Symbols: []string{"AAA", "BBB"},
		Mean:    []float64{0.01, 0.02},
		Cov:     [][]float64{{0.04, 0}, {0, 0.09}},
	}
	w := []float64{0.5, 0.5}

	// sqrt(0.25*0.04 + 0.25*0.09) = sqrt(0.0325)
	assert.InDelta(t, 0.18027756377319946, moments.PortfolioVolatility(w), 1e-12)
	assert.InDelta(t, 0.015, moments.PortfolioReturn(w), 1e-12)
}

func TestWeightSliceRoundTrip(t *testing.T) {
	moments := &Moments{Symbols: []string{"AAA", "BBB", "CCC"}}
	wv := domain.WeightVector{"AAA": 0.2, "BBB": 0.3, "CCC": 0.5}

	slice := moments.WeightSlice(wv)
	assert.Equal(t, []float64{0.2, 0.3, 0.5}, slice)
	assert.Equal(t, wv, moments.WeightMap(slice))
}
