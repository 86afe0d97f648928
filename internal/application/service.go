// Package application orchestrates the computation components: it resolves
// the portfolio collaborator, estimates moments once per request, runs the
// requested computation, and hands the result to the persistence sink.
package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/quantfolio/quantfolio/internal/config"
	"github.com/quantfolio/quantfolio/internal/domain"
	"github.com/quantfolio/quantfolio/internal/montecarlo"
	"github.com/quantfolio/quantfolio/internal/optimize/frontier"
	"github.com/quantfolio/quantfolio/internal/optimize/hrp"
	"github.com/quantfolio/quantfolio/internal/optimize/riskparity"
	"github.com/quantfolio/quantfolio/internal/persistence"
	"github.com/quantfolio/quantfolio/internal/stats"
)

// Service wires the computation core to its collaborators. Every invocation
// is stateless and pure given its inputs (and seed), so one Service instance
// serves concurrent requests without coordination.
type Service struct {
	portfolios persistence.PortfolioStore
	results    persistence.ResultStore

	riskParity *riskparity.Optimizer
	hrpAlloc   *hrp.Allocator
	engine     *montecarlo.Engine

	frontierDefaults      config.FrontierConfig
	confidenceLevels      []float64
	maxStoredTrajectories int
}

// New builds a Service from configuration and storage collaborators.
func New(cfg *config.Config, portfolios persistence.PortfolioStore, results persistence.ResultStore) *Service {
	return &Service{
		portfolios: portfolios,
		results:    results,
		riskParity: riskparity.New(riskparity.Config{
			MaxIterations: cfg.Compute.RiskParity.MaxIterations,
			Tolerance:     cfg.Compute.RiskParity.Tolerance,
		}),
		hrpAlloc: hrp.New(),
		engine: montecarlo.New(montecarlo.Config{
			Workers:     cfg.Compute.MonteCarlo.Workers,
			Percentiles: cfg.Compute.MonteCarlo.Percentiles,
		}),
		frontierDefaults:      cfg.Compute.Frontier,
		confidenceLevels:      cfg.Compute.MonteCarlo.ConfidenceLevels,
		maxStoredTrajectories: cfg.Storage.MaxStoredTrajectories,
	}
}

// Portfolios exposes the portfolio registry for the CRUD surface.
func (s *Service) Portfolios() persistence.PortfolioStore { return s.portfolios }

// Results exposes the result sink, mainly for tests.
func (s *Service) Results() persistence.ResultStore { return s.results }

// prepare resolves the portfolio, validates the return series against its
// asset set, and estimates moments. computations that don't need the
// portfolio weights still validate against its asset universe, matching the
// request contract.
func (s *Service) prepare(ctx context.Context, portfolioID string, returns map[string][]float64) (*domain.Portfolio, *domain.ReturnMatrix, *stats.Moments, error) {
	p, err := s.portfolios.Get(ctx, portfolioID)
	if err != nil {
		return nil, nil, nil, err
	}

	var missing []string
	for sym := range p.Assets {
		if _, ok := returns[sym]; !ok {
			missing = append(missing, "returns data missing for asset: "+sym)
		}
	}
	if len(missing) > 0 {
		return nil, nil, nil, domain.NewValidationError("missing returns data", missing...)
	}

	// Restrict the matrix to the portfolio's asset universe.
	series := make(map[string][]float64, len(p.Assets))
	for sym := range p.Assets {
		series[sym] = returns[sym]
	}
	matrix, err := domain.NewReturnMatrix(series)
	if err != nil {
		return nil, nil, nil, err
	}
	moments, err := stats.Compute(matrix)
	if err != nil {
		return nil, nil, nil, err
	}
	return p, matrix, moments, nil
}

// RunRiskParity executes an equal-risk-contribution optimization and stores
// the result.
func (s *Service) RunRiskParity(ctx context.Context, req OptimizationRequest) (*domain.RiskParityResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	p, _, moments, err := s.prepare(ctx, req.PortfolioID, req.Returns)
	if err != nil {
		return nil, err
	}
	// Risk parity leans on marginal risk from Σ; refuse unstable inputs
	// rather than returning weights that look precise and aren't.
	if _, err := moments.CheckConditioning(); err != nil {
		return nil, err
	}

	result, err := s.riskParity.Optimize(ctx, moments)
	if err != nil {
		return nil, err
	}
	result.PortfolioID = p.ID

	if err := s.results.Put(ctx, domain.KindRiskParity, result.ID, result); err != nil {
		return nil, err
	}
	log.Info().Str("portfolio_id", p.ID).Str("result_id", result.ID).Bool("converged", result.Converged).Msg("risk parity stored")
	return result, nil
}

// RunHRP executes a hierarchical risk parity allocation and stores the
// result. No conditioning guard: HRP is the designated fallback for
// ill-conditioned covariance.
func (s *Service) RunHRP(ctx context.Context, req OptimizationRequest) (*domain.HRPResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	p, _, moments, err := s.prepare(ctx, req.PortfolioID, req.Returns)
	if err != nil {
		return nil, err
	}

	result, err := s.hrpAlloc.Allocate(ctx, moments)
	if err != nil {
		return nil, err
	}
	result.PortfolioID = p.ID

	if err := s.results.Put(ctx, domain.KindHRP, result.ID, result); err != nil {
		return nil, err
	}
	log.Info().Str("portfolio_id", p.ID).Str("result_id", result.ID).Msg("hrp allocation stored")
	return result, nil
}

// RunFrontier executes an efficient frontier sweep and stores the result.
func (s *Service) RunFrontier(ctx context.Context, req FrontierRequest) (*domain.FrontierResult, error) {
	opt := OptimizationRequest{PortfolioID: req.PortfolioID, Returns: req.Returns}
	if err := opt.validate(); err != nil {
		return nil, err
	}
	if req.NumPortfolios < 0 {
		return nil, domain.NewValidationError("numPortfolios must be positive")
	}
	p, _, moments, err := s.prepare(ctx, req.PortfolioID, req.Returns)
	if err != nil {
		return nil, err
	}
	if _, err := moments.CheckConditioning(); err != nil {
		return nil, err
	}

	cfg := frontier.Config{NumPortfolios: req.NumPortfolios, RiskFreeRate: req.RiskFreeRate}
	if cfg.NumPortfolios == 0 {
		cfg.NumPortfolios = s.frontierDefaults.NumPortfolios
	}
	if cfg.RiskFreeRate == 0 {
		cfg.RiskFreeRate = s.frontierDefaults.RiskFreeRate
	}

	result, err := frontier.New(cfg).Generate(ctx, moments)
	if err != nil {
		return nil, err
	}
	result.PortfolioID = p.ID

	if err := s.results.Put(ctx, domain.KindFrontier, result.ID, result); err != nil {
		return nil, err
	}
	log.Info().Str("portfolio_id", p.ID).Str("result_id", result.ID).Int("feasible", result.FeasiblePoints).Msg("efficient frontier stored")
	return result, nil
}

// RunSimulation executes a Monte Carlo simulation with the portfolio's own
// weights and stores the result. Trajectory payloads above the configured cap
// are dropped from the stored copy; the returned result always carries them.
func (s *Service) RunSimulation(ctx context.Context, req SimulationRequest) (*domain.SimulationResult, error) {
	opt := OptimizationRequest{PortfolioID: req.PortfolioID, Returns: req.Returns}
	if err := opt.validate(); err != nil {
		return nil, err
	}
	p, matrix, moments, err := s.prepare(ctx, req.PortfolioID, req.Returns)
	if err != nil {
		return nil, err
	}

	params := domain.SimulationParams{
		InitialInvestment: req.InitialInvestment,
		NumSimulations:    req.NumSimulations,
		NumPeriods:        req.NumPeriods,
		SamplingMode:      req.SamplingMode,
	}
	if params.SamplingMode == "" {
		params.SamplingMode = domain.SamplingParametric
	}
	if req.Seed != nil {
		params.Seed = *req.Seed
	} else {
		params.Seed = time.Now().UnixNano()
	}

	result, err := s.engine.Simulate(ctx, matrix, moments, p.Assets, params)
	if err != nil {
		return nil, err
	}
	result.PortfolioID = p.ID

	stored := result
	if len(result.Trajectories) > s.maxStoredTrajectories {
		cp := *result
		cp.Trajectories = nil
		cp.Truncated = true
		stored = &cp
	}
	if err := s.results.Put(ctx, domain.KindSimulation, result.ID, stored); err != nil {
		return nil, err
	}
	log.Info().
		Str("portfolio_id", p.ID).
		Str("result_id", result.ID).
		Int64("seed", params.Seed).
		Bool("truncated", stored.Truncated).
		Msg("monte carlo simulation stored")
	return result, nil
}

// RunAnalysis loads a stored simulation and reduces it to risk statistics.
func (s *Service) RunAnalysis(ctx context.Context, req AnalysisRequest) (*domain.AnalysisResult, error) {
	if req.SimulationID == "" {
		return nil, domain.NewValidationError("invalid analysis request", "simulation ID is required")
	}

	stored, err := s.results.Get(ctx, req.SimulationID)
	if err != nil {
		return nil, err
	}
	if stored.Kind != domain.KindSimulation {
		return nil, domain.NewValidationError("result " + req.SimulationID + " is not a simulation")
	}
	var sim domain.SimulationResult
	if err := stored.Decode(&sim); err != nil {
		return nil, err
	}
	if sim.Truncated {
		return nil, domain.NewValidationError("simulation trajectories were truncated before storage; rerun the simulation to analyze it")
	}

	levels := req.ConfidenceLevels
	if len(levels) == 0 {
		levels = s.confidenceLevels
	}
	result, err := montecarlo.Analyze(&sim, levels)
	if err != nil {
		return nil, err
	}

	if err := s.results.Put(ctx, domain.KindAnalysis, result.ID, result); err != nil {
		return nil, err
	}
	log.Info().Str("simulation_id", sim.ID).Str("result_id", result.ID).Msg("monte carlo analysis stored")
	return result, nil
}

// CreatePortfolio validates and persists a new portfolio.
func (s *Service) CreatePortfolio(ctx context.Context, p *domain.Portfolio) (*domain.Portfolio, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.portfolios.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdatePortfolio validates and replaces an existing portfolio.
func (s *Service) UpdatePortfolio(ctx context.Context, p *domain.Portfolio) (*domain.Portfolio, error) {
	existing, err := s.portfolios.Get(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.portfolios.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
