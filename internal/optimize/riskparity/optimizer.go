// Package riskparity finds the weight vector whose per-asset risk
// contributions are equal, via constrained coordinate descent over the
// simplex. No matrix inversion is performed, but the solver assumes a
// well-conditioned covariance so duplicated assets should be caught upstream.
package riskparity

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/quantfolio/quantfolio/internal/domain"
	"github.com/quantfolio/quantfolio/internal/optimize/simplex"
	"github.com/quantfolio/quantfolio/internal/stats"
)

// Config defines the solver parameters.
type Config struct {
	MaxIterations  int     `json:"max_iterations" yaml:"max_iterations"`   // Full coordinate cycles (default: 1000)
	Tolerance      float64 `json:"tolerance" yaml:"tolerance"`             // Objective improvement floor (default: 1e-10)
	InitialStep    float64 `json:"initial_step" yaml:"initial_step"`       // Starting coordinate step (default: 0.05)
	BacktrackRatio float64 `json:"backtrack_ratio" yaml:"backtrack_ratio"` // Step shrink factor (default: 0.5)
	MinStep        float64 `json:"min_step" yaml:"min_step"`               // Smallest step before stopping (default: 1e-9)
}

// DefaultConfig returns the default solver configuration.
func DefaultConfig() Config {
	return Config{
		MaxIterations:  1000,
		Tolerance:      1e-10,
		InitialStep:    0.05,
		BacktrackRatio: 0.5,
		MinStep:        1e-9,
	}
}

// Optimizer runs equal-risk-contribution optimization over one Moments set.
type Optimizer struct {
	cfg Config
}

// New creates an Optimizer, filling zero config fields with defaults.
func New(cfg Config) *Optimizer {
	def := DefaultConfig()
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = def.Tolerance
	}
	if cfg.InitialStep <= 0 {
		cfg.InitialStep = def.InitialStep
	}
	if cfg.BacktrackRatio <= 0 || cfg.BacktrackRatio >= 1 {
		cfg.BacktrackRatio = def.BacktrackRatio
	}
	if cfg.MinStep <= 0 {
		cfg.MinStep = def.MinStep
	}
	return &Optimizer{cfg: cfg}
}

// Optimize minimizes Σ_i (RC_i − σp/n)² subject to w ≥ 0, Σw = 1, starting
// from equal weights. On hitting the iteration cap it returns the best
// iterate found with Converged=false rather than failing; the caller decides
// whether approximate output is acceptable.
func (o *Optimizer) Optimize(ctx context.Context, m *stats.Moments) (*domain.RiskParityResult, error) {
	n := len(m.Symbols)
	if n == 0 {
		return nil, domain.NewValidationError("no assets to optimize")
	}

	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0 / float64(n)
	}

	best := append([]float64(nil), w...)
	bestObj := objective(w, m.Cov)
	step := o.cfg.InitialStep

	iterations := 0
	converged := false

	for iterations < o.cfg.MaxIterations {
		if err := ctx.Err(); err != nil {
			return nil, domain.NewAbortedError(err)
		}
		iterations++

		improved := false
		for i := 0; i < n; i++ {
			for _, dir := range []float64{1.0, -1.0} {
				cand := append([]float64(nil), best...)
				cand[i] += dir * step
				cand = simplex.Project(cand)

				obj := objective(cand, m.Cov)
				if obj < bestObj {
					improvement := bestObj - obj
					best = cand
					bestObj = obj
					improved = true
					if improvement < o.cfg.Tolerance {
						converged = true
					}
					break
				}
			}
		}

		if converged {
			break
		}
		if improved {
			continue
		}

		// No coordinate improved: shrink the step and retry, declaring
		// convergence once the step is effectively zero.
		step *= o.cfg.BacktrackRatio
		if step < o.cfg.MinStep {
			converged = true
			break
		}
	}

	vol := m.PortfolioVolatility(best)
	rc := riskContributions(best, m.Cov, vol)

	result := &domain.RiskParityResult{
		ID:                  uuid.NewString(),
		Weights:             m.WeightMap(best),
		PortfolioVolatility: vol,
		RiskContribution:    make(map[string]float64, n),
		Converged:           converged,
		Iterations:          iterations,
		Objective:           bestObj,
		CreatedAt:           time.Now().UTC(),
	}
	for i, sym := range m.Symbols {
		result.RiskContribution[sym] = rc[i]
	}

	log.Debug().
		Int("iterations", iterations).
		Bool("converged", converged).
		Float64("objective", bestObj).
		Float64("volatility", vol).
		Msg("risk parity optimization complete")

	return result, nil
}

// objective is the dispersion of risk contributions around the equal-share
// target σp/n.
func objective(w []float64, cov [][]float64) float64 {
	vol := math.Sqrt(math.Max(0, stats.QuadForm(w, cov)))
	if vol == 0 {
		return 0
	}
	rc := riskContributions(w, cov, vol)
	target := vol / float64(len(w))
	sum := 0.0
	for _, c := range rc {
		d := c - target
		sum += d * d
	}
	return sum
}

// riskContributions computes RC_i = w_i·(Σw)_i / σp.
func riskContributions(w []float64, cov [][]float64, vol float64) []float64 {
	marginal := stats.MatVec(cov, w)
	rc := make([]float64, len(w))
	if vol == 0 {
		return rc
	}
	for i := range rc {
		rc[i] = w[i] * marginal[i] / vol
	}
	return rc
}
