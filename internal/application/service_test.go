package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfolio/quantfolio/internal/config"
	"github.com/quantfolio/quantfolio/internal/domain"
	"github.com/quantfolio/quantfolio/internal/persistence"
)

func newTestService(t *testing.T, mutate func(*config.Config)) *Service {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	mem := persistence.NewMemoryStore()
	return New(cfg, mem, mem.Results())
}

func createTestPortfolio(t *testing.T, svc *Service, assets domain.WeightVector) *domain.Portfolio {
	t.Helper()
	p, err := svc.CreatePortfolio(context.Background(), &domain.Portfolio{
		Name:   "test portfolio",
		Assets: assets,
	})
	require.NoError(t, err)
	return p
}

var twoAssetReturns = map[string][]float64{
	"AAA": {0.01, -0.01, 0.01, -0.01},
	"BBB": {0.02, 0.02, -0.02, -0.02},
}

func TestRunRiskParity_EndToEnd(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)
	p := createTestPortfolio(t, svc, domain.WeightVector{"AAA": 0.5, "BBB": 0.5})

	result, err := svc.RunRiskParity(ctx, OptimizationRequest{
		PortfolioID: p.ID,
		Returns:     twoAssetReturns,
	})
	require.NoError(t, err)

	assert.Equal(t, p.ID, result.PortfolioID)
	assert.True(t, result.Converged)

	sum := 0.0
	for _, w := range result.Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, domain.WeightSumTolerance)

	// The result lands in the store under its id.
	stored, err := svc.Results().Get(ctx, result.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.KindRiskParity, stored.Kind)
}

func TestRunRiskParity_PortfolioNotFound(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.RunRiskParity(context.Background(), OptimizationRequest{
		PortfolioID: "ghost",
		Returns:     twoAssetReturns,
	})
	require.Error(t, err)
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
}

func TestRunRiskParity_MissingReturnsForAsset(t *testing.T) {
	svc := newTestService(t, nil)
	p := createTestPortfolio(t, svc, domain.WeightVector{"AAA": 0.5, "CCC": 0.5})

	_, err := svc.RunRiskParity(context.Background(), OptimizationRequest{
		PortfolioID: p.ID,
		Returns:     twoAssetReturns,
	})
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
	assert.Contains(t, err.Error(), "CCC")
}

func TestRunRiskParity_IllConditionedRejected(t *testing.T) {
	svc := newTestService(t, nil)
	p := createTestPortfolio(t, svc, domain.WeightVector{"AAA": 0.5, "BBB": 0.5})

	// Duplicated series make the covariance singular.
	series := []float64{0.01, -0.02, 0.015, -0.005}
	dup := map[string][]float64{
		"AAA": series,
		"BBB": append([]float64(nil), series...),
	}

	_, err := svc.RunRiskParity(context.Background(), OptimizationRequest{PortfolioID: p.ID, Returns: dup})
	require.Error(t, err)
	assert.Equal(t, domain.CodeIllConditioned, domain.CodeOf(err))
}

func TestRunHRP_AcceptsIllConditionedInput(t *testing.T) {
	// HRP is the fallback path: the same input risk parity refuses must
	// still produce an allocation here.
	ctx := context.Background()
	svc := newTestService(t, nil)
	p := createTestPortfolio(t, svc, domain.WeightVector{"AAA": 0.5, "BBB": 0.5})

	series := []float64{0.01, -0.02, 0.015, -0.005}
	dup := map[string][]float64{
		"AAA": series,
		"BBB": append([]float64(nil), series...),
	}

	result, err := svc.RunHRP(ctx, OptimizationRequest{PortfolioID: p.ID, Returns: dup})
	require.NoError(t, err)

	sum := 0.0
	for _, w := range result.Weights {
		require.GreaterOrEqual(t, w, 0.0)
		sum += w
	}
	assert.InDelta(t, 1.0, sum, domain.WeightSumTolerance)
	assert.Len(t, result.ClusterTree, 1)

	stored, err := svc.Results().Get(ctx, result.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.KindHRP, stored.Kind)
}

func TestRunFrontier_UsesConfiguredDefaultPoints(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, func(c *config.Config) {
		c.Compute.Frontier.NumPortfolios = 7
	})
	p := createTestPortfolio(t, svc, domain.WeightVector{"AAA": 0.5, "BBB": 0.5})

	returns := map[string][]float64{
		"AAA": {0.011, -0.009, 0.021, -0.019},
		"BBB": {0.022, 0.022, -0.018, -0.018},
	}

	result, err := svc.RunFrontier(ctx, FrontierRequest{PortfolioID: p.ID, Returns: returns})
	require.NoError(t, err)
	assert.Equal(t, 7, result.RequestedPoints)

	explicit, err := svc.RunFrontier(ctx, FrontierRequest{PortfolioID: p.ID, Returns: returns, NumPortfolios: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, explicit.RequestedPoints)
}

func TestRunSimulation_SeedRecordedAndReproducible(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)
	p := createTestPortfolio(t, svc, domain.WeightVector{"AAA": 0.5, "BBB": 0.5})

	seed := int64(42)
	req := SimulationRequest{
		PortfolioID:       p.ID,
		Returns:           twoAssetReturns,
		InitialInvestment: 10000,
		NumSimulations:    20,
		NumPeriods:        10,
		Seed:              &seed,
	}

	r1, err := svc.RunSimulation(ctx, req)
	require.NoError(t, err)
	r2, err := svc.RunSimulation(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, int64(42), r1.Parameters.Seed)
	assert.Equal(t, domain.SamplingParametric, r1.Parameters.SamplingMode)
	assert.Equal(t, r1.Trajectories, r2.Trajectories)
}

func TestRunSimulation_DefaultsSeedWhenAbsent(t *testing.T) {
	svc := newTestService(t, nil)
	p := createTestPortfolio(t, svc, domain.WeightVector{"AAA": 0.5, "BBB": 0.5})

	result, err := svc.RunSimulation(context.Background(), SimulationRequest{
		PortfolioID:       p.ID,
		Returns:           twoAssetReturns,
		InitialInvestment: 10000,
		NumSimulations:    5,
		NumPeriods:        5,
	})
	require.NoError(t, err)
	assert.NotZero(t, result.Parameters.Seed)
}

func TestRunSimulationThenAnalysis(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)
	p := createTestPortfolio(t, svc, domain.WeightVector{"AAA": 0.5, "BBB": 0.5})

	seed := int64(7)
	sim, err := svc.RunSimulation(ctx, SimulationRequest{
		PortfolioID:       p.ID,
		Returns:           twoAssetReturns,
		InitialInvestment: 10000,
		NumSimulations:    50,
		NumPeriods:        20,
		Seed:              &seed,
	})
	require.NoError(t, err)

	analysis, err := svc.RunAnalysis(ctx, AnalysisRequest{SimulationID: sim.ID})
	require.NoError(t, err)

	assert.Equal(t, sim.ID, analysis.SimulationID)
	assert.InDelta(t, 1.0, analysis.ProbabilityOfLoss+analysis.ProbabilityOfGain, 1e-12)
	assert.Contains(t, analysis.ValueAtRisk, "95")
	assert.Contains(t, analysis.ValueAtRisk, "99")
	assert.GreaterOrEqual(t, analysis.ValueAtRisk["99"], analysis.ValueAtRisk["95"])

	stored, err := svc.Results().Get(ctx, analysis.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.KindAnalysis, stored.Kind)
}

func TestRunAnalysis_MissingSimulation(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.RunAnalysis(context.Background(), AnalysisRequest{SimulationID: "ghost"})
	require.Error(t, err)
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
}

func TestRunAnalysis_RejectsNonSimulationResult(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)
	p := createTestPortfolio(t, svc, domain.WeightVector{"AAA": 0.5, "BBB": 0.5})

	rp, err := svc.RunRiskParity(ctx, OptimizationRequest{PortfolioID: p.ID, Returns: twoAssetReturns})
	require.NoError(t, err)

	_, err = svc.RunAnalysis(ctx, AnalysisRequest{SimulationID: rp.ID})
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
}

func TestRunSimulation_TruncatesStoredTrajectories(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, func(c *config.Config) {
		c.Storage.MaxStoredTrajectories = 5
	})
	p := createTestPortfolio(t, svc, domain.WeightVector{"AAA": 0.5, "BBB": 0.5})

	seed := int64(1)
	sim, err := svc.RunSimulation(ctx, SimulationRequest{
		PortfolioID:       p.ID,
		Returns:           twoAssetReturns,
		InitialInvestment: 1000,
		NumSimulations:    10,
		NumPeriods:        5,
		Seed:              &seed,
	})
	require.NoError(t, err)

	// The caller still gets the full set.
	assert.Len(t, sim.Trajectories, 10)
	assert.False(t, sim.Truncated)

	// The stored copy dropped them.
	stored, err := svc.Results().Get(ctx, sim.ID)
	require.NoError(t, err)
	var back domain.SimulationResult
	require.NoError(t, stored.Decode(&back))
	assert.Empty(t, back.Trajectories)
	assert.True(t, back.Truncated)

	// A truncated simulation cannot be analyzed after the fact.
	_, err = svc.RunAnalysis(ctx, AnalysisRequest{SimulationID: sim.ID})
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
}

func TestCreatePortfolio_Validation(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.CreatePortfolio(context.Background(), &domain.Portfolio{
		Name:   "",
		Assets: domain.WeightVector{"AAA": 1.0},
	})
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
}

func TestUpdatePortfolio_PreservesCreatedAt(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)
	p := createTestPortfolio(t, svc, domain.WeightVector{"AAA": 0.5, "BBB": 0.5})

	updated, err := svc.UpdatePortfolio(ctx, &domain.Portfolio{
		ID:     p.ID,
		Name:   "renamed",
		Assets: domain.WeightVector{"AAA": 0.3, "BBB": 0.7},
	})
	require.NoError(t, err)
	assert.Equal(t, p.CreatedAt, updated.CreatedAt)
	assert.False(t, updated.UpdatedAt.Before(p.UpdatedAt))
	assert.Equal(t, "renamed", updated.Name)
}

func TestRequestValidation(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.RunRiskParity(ctx, OptimizationRequest{})
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))

	_, err = svc.RunFrontier(ctx, FrontierRequest{PortfolioID: "p", Returns: twoAssetReturns, NumPortfolios: -1})
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))

	_, err = svc.RunAnalysis(ctx, AnalysisRequest{})
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
}
