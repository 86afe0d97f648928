package montecarlo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfolio/quantfolio/internal/domain"
	"github.com/quantfolio/quantfolio/internal/stats"
)

func fixture(t *testing.T) (*domain.ReturnMatrix, *stats.Moments, domain.WeightVector) {
	t.Helper()
	matrix, err := domain.NewReturnMatrix(map[string][]float64{
		"AAA": {0.012, -0.008, 0.015, -0.011, 0.004, 0.009},
		"BBB": {0.021, 0.017, -0.019, -0.016, 0.003, -0.007},
	})
	require.NoError(t, err)
	moments, err := stats.Compute(matrix)
	require.NoError(t, err)
	return matrix, moments, domain.WeightVector{"AAA": 0.6, "BBB": 0.4}
}

func baseParams(seed int64) domain.SimulationParams {
	return domain.SimulationParams{
		InitialInvestment: 10000,
		NumSimulations:    50,
		NumPeriods:        30,
		Seed:              seed,
		SamplingMode:      domain.SamplingParametric,
	}
}

func TestSimulate_TrajectoryShape(t *testing.T) {
	matrix, moments, weights := fixture(t)

	result, err := New(Config{Workers: 2}).Simulate(context.Background(), matrix, moments, weights, baseParams(42))
	require.NoError(t, err)

	require.Len(t, result.Trajectories, 50)
	for i, tr := range result.Trajectories {
		require.Len(t, tr, 31, "trajectory %d", i)
		assert.Equal(t, 10000.0, tr[0], "trajectory %d", i)
	}
	assert.Equal(t, int64(42), result.Parameters.Seed)
	assert.Equal(t, domain.SamplingParametric, result.Parameters.SamplingMode)
	assert.False(t, result.Truncated)
}

func TestSimulate_DeterministicForSeed(t *testing.T) {
	matrix, moments, weights := fixture(t)

	r1, err := New(Config{Workers: 1}).Simulate(context.Background(), matrix, moments, weights, baseParams(42))
	require.NoError(t, err)
	r2, err := New(Config{Workers: 4}).Simulate(context.Background(), matrix, moments, weights, baseParams(42))
	require.NoError(t, err)

	// Bit-identical regardless of worker count or scheduling.
	assert.Equal(t, r1.Trajectories, r2.Trajectories)
	assert.Equal(t, r1.Statistics, r2.Statistics)
}

func TestSimulate_DifferentSeedsDiffer(t *testing.T) {
	matrix, moments, weights := fixture(t)

	r1, err := New(Config{}).Simulate(context.Background(), matrix, moments, weights, baseParams(42))
	require.NoError(t, err)
	r2, err := New(Config{}).Simulate(context.Background(), matrix, moments, weights, baseParams(43))
	require.NoError(t, err)

	assert.NotEqual(t, r1.Trajectories, r2.Trajectories)
}

func TestSimulate_EmpiricalMode(t *testing.T) {
	// All observed returns are positive, so empirical resampling can only
	// produce strictly increasing trajectories.
	matrix, err := domain.NewReturnMatrix(map[string][]float64{
		"AAA": {0.01, 0.02, 0.015},
		"BBB": {0.005, 0.01, 0.02},
	})
	require.NoError(t, err)
	moments, err := stats.Compute(matrix)
	require.NoError(t, err)

	params := baseParams(7)
	params.SamplingMode = domain.SamplingEmpirical
	params.NumSimulations = 20
	params.NumPeriods = 10

	result, err := New(Config{}).Simulate(context.Background(), matrix, moments, domain.WeightVector{"AAA": 0.5, "BBB": 0.5}, params)
	require.NoError(t, err)

	for _, tr := range result.Trajectories {
		for i := 1; i < len(tr); i++ {
			require.Greater(t, tr[i], tr[i-1])
		}
	}
}

func TestSimulate_StatisticsConsistent(t *testing.T) {
	matrix, moments, weights := fixture(t)

	result, err := New(Config{Percentiles: []float64{5, 50, 95}}).Simulate(context.Background(), matrix, moments, weights, baseParams(42))
	require.NoError(t, err)

	st := result.Statistics
	assert.LessOrEqual(t, st.MinFinalValue, st.MedianFinalValue)
	assert.LessOrEqual(t, st.MedianFinalValue, st.MaxFinalValue)
	assert.LessOrEqual(t, st.MinFinalValue, st.MeanFinalValue)
	assert.LessOrEqual(t, st.MeanFinalValue, st.MaxFinalValue)
	assert.GreaterOrEqual(t, st.StandardDeviation, 0.0)

	require.Len(t, st.Percentiles, 3)
	assert.LessOrEqual(t, st.Percentiles["5"], st.Percentiles["50"])
	assert.LessOrEqual(t, st.Percentiles["50"], st.Percentiles["95"])
}

func TestSimulate_ValidatesParams(t *testing.T) {
	matrix, moments, weights := fixture(t)

	cases := []struct {
		name   string
		mutate func(*domain.SimulationParams)
	}{
		{"zero investment", func(p *domain.SimulationParams) { p.InitialInvestment = 0 }},
		{"negative simulations", func(p *domain.SimulationParams) { p.NumSimulations = -1 }},
		{"zero periods", func(p *domain.SimulationParams) { p.NumPeriods = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := baseParams(1)
			tc.mutate(&params)
			_, err := New(Config{}).Simulate(context.Background(), matrix, moments, weights, params)
			require.Error(t, err)
			assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
		})
	}
}

func TestSimulate_RejectsUnknownSamplingMode(t *testing.T) {
	matrix, moments, weights := fixture(t)

	params := baseParams(1)
	params.SamplingMode = "quantum"
	_, err := New(Config{}).Simulate(context.Background(), matrix, moments, weights, params)
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
}

func TestSimulate_RejectsMismatchedWeights(t *testing.T) {
	matrix, moments, _ := fixture(t)

	_, err := New(Config{}).Simulate(context.Background(), matrix, moments, domain.WeightVector{"AAA": 1.0}, baseParams(1))
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
}

func TestSimulate_SingularCovarianceParametric(t *testing.T) {
	series := []float64{0.01, -0.02, 0.015, -0.005}
	matrix, err := domain.NewReturnMatrix(map[string][]float64{
		"AAA": series,
		"BBB": append([]float64(nil), series...),
	})
	require.NoError(t, err)
	moments, err := stats.Compute(matrix)
	require.NoError(t, err)

	_, err = New(Config{}).Simulate(context.Background(), matrix, moments, domain.WeightVector{"AAA": 0.5, "BBB": 0.5}, baseParams(1))
	require.Error(t, err)
	assert.Equal(t, domain.CodeIllConditioned, domain.CodeOf(err))
}

func TestSimulate_ContextCancelled(t *testing.T) {
	matrix, moments, weights := fixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	params := baseParams(1)
	params.NumSimulations = 1000
	_, err := New(Config{}).Simulate(ctx, matrix, moments, weights, params)
	require.Error(t, err)
	assert.Equal(t, domain.CodeAborted, domain.CodeOf(err))
}

func TestSubSeed_IndependentStreams(t *testing.T) {
	seen := map[int64]bool{}
	for i := 0; i < 100; i++ {
		s := subSeed(42, i)
		assert.False(t, seen[s], "duplicate sub-seed at index %d", i)
		seen[s] = true
	}
	// Different master seeds diverge at every index.
	assert.NotEqual(t, subSeed(42, 0), subSeed(43, 0))
}
