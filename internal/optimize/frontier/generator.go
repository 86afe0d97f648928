// Package frontier sweeps the feasible mean-variance frontier between the
// global-minimum-variance portfolio and the maximum-return asset, solving a
// long-only quadratic program per target return with projected gradient
// descent.
package frontier

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

const (
	// DefaultNumPortfolios is the frontier point count when the request
	// leaves it unset.
	DefaultNumPortfolios = 20

	gradientIterations   = 3000
	projectionSweeps     = 12
	finalPolishSweeps    = 500
	initialLearningRate  = 0.05
	learningRateDecay    = 0.5
	decayEvery           = 1000
	targetTolerance      = 1e-6
	negativityTolerance  = 1e-9
)

// Config defines the sweep parameters.
type Config struct {
	NumPortfolios int     `json:"num_portfolios" yaml:"num_portfolios"`
	RiskFreeRate  float64 `json:"risk_free_rate" yaml:"risk_free_rate"`
}

// Generator runs efficient frontier sweeps over one Moments set.
type Generator struct {
	cfg Config
}

// New creates a Generator, defaulting the point count when unset.
func New(cfg Config) *Generator {
	if cfg.NumPortfolios <= 0 {
		cfg.NumPortfolios = DefaultNumPortfolios
	}
	return &Generator{cfg: cfg}
}

// Generate produces up to cfg.NumPortfolios frontier points sorted by
// ascending target return, plus the minimum-volatility and maximum-Sharpe
// selections. Targets the long-only constraint makes infeasible are skipped;
// FeasiblePoints reports how many survived.
func (g *Generator) Generate(ctx context.Context, m *stats.Moments) (*domain.FrontierResult, error) {
	n := len(m.Symbols)
	if n == 0 {
		return nil, domain.NewValidationError("no assets to optimize")
	}

	gmv := g.minimumVariance(m)
	minReturn := m.PortfolioReturn(gmv)
	maxReturn := m.Mean[0]
	for _, mu := range m.Mean[1:] {
		if mu > maxReturn {
			maxReturn = mu
		}
	}

	k := g.cfg.NumPortfolios
	points := make([]domain.FrontierPoint, 0, k)

	for i := 0; i < k; i++ {
		if err := ctx.Err(); err != nil {
			return nil, domain.NewAbortedError(err)
		}

		target := minReturn
		if k > 1 {
			target = minReturn + (maxReturn-minReturn)*float64(i)/float64(k-1)
		}

		w, ok := g.solveForTarget(m, target)
		if !ok {
			// Infeasible under w >= 0: skip the point, not the request.
			continue
		}

		ret := m.PortfolioReturn(w)
		vol := m.PortfolioVolatility(w)
		points = append(points, domain.FrontierPoint{
			Weights:        m.WeightMap(w),
			ExpectedReturn: ret,
			Volatility:     vol,
			SharpeRatio:    sharpe(ret, vol, g.cfg.RiskFreeRate),
		})
	}

	if len(points) == 0 {
		return nil, domain.NewInfeasibleTargetError(minReturn)
	}

	minVol := points[0]
	maxSharpe := points[0]
	for _, p := range points[1:] {
		if p.Volatility < minVol.Volatility {
			minVol = p
		}
		if p.SharpeRatio > maxSharpe.SharpeRatio {
			maxSharpe = p
		}
	}

	result := &domain.FrontierResult{
		ID:                     uuid.NewString(),
		Portfolios:             points,
		MinVolatilityPortfolio: minVol,
		MaxSharpePortfolio:     maxSharpe,
		RequestedPoints:        k,
		FeasiblePoints:         len(points),
		RiskFreeRate:           g.cfg.RiskFreeRate,
		CreatedAt:              time.Now().UTC(),
	}

	log.Debug().
		Int("requested", k).
		Int("feasible", len(points)).
		Float64("min_volatility", minVol.Volatility).
		Float64("max_sharpe", maxSharpe.SharpeRatio).
		Msg("efficient frontier sweep complete")

	return result, nil
}

// minimumVariance finds the global-minimum-variance portfolio by projected
// gradient descent on wᵀΣw over the simplex.
func (g *Generator) minimumVariance(m *stats.Moments) []float64 {
	n := len(m.Symbols)
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0 / float64(n)
	}

	lr := initialLearningRate
	for iter := 0; iter < gradientIterations; iter++ {
		grad := stats.MatVec(m.Cov, w)
		for i := range w {
			w[i] -= lr * 2 * grad[i]
		}
		w = simplex.Project(w)
		if (iter+1)%decayEvery == 0 {
			lr *= learningRateDecay
		}
	}
	return w
}

// solveForTarget minimizes wᵀΣw subject to Σw = 1, wᵀμ = target, w ≥ 0 via
// gradient steps interleaved with alternating projection onto the affine
// constraint pair and the non-negative orthant. Returns ok=false when the
// target cannot be met without short sales.
func (g *Generator) solveForTarget(m *stats.Moments, target float64) ([]float64, bool) {
	n := len(m.Symbols)
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0 / float64(n)
	}

	lr := initialLearningRate
	for iter := 0; iter < gradientIterations; iter++ {
		grad := stats.MatVec(m.Cov, w)
		for i := range w {
			w[i] -= lr * 2 * grad[i]
		}
		w = projectConstraints(w, m.Mean, target, projectionSweeps)
		if (iter+1)%decayEvery == 0 {
			lr *= learningRateDecay
		}
	}

	// Polish: alternate projections until the iterate satisfies both the
	// affine constraints and non-negativity, or is declared infeasible.
	w = projectConstraints(w, m.Mean, target, finalPolishSweeps)

	ret := stats.Dot(w, m.Mean)
	if math.Abs(ret-target) > targetTolerance {
		return nil, false
	}
	for i := range w {
		if w[i] < -negativityTolerance {
			return nil, false
		}
		if w[i] < 0 {
			w[i] = 0
		}
	}
	return w, true
}

// projectConstraints alternates between the closed-form projection onto
// {Σw = 1, wᵀμ = target} and clamping to w ≥ 0.
func projectConstraints(w, mean []float64, target float64, sweeps int) []float64 {
	n := len(w)
	out := append([]float64(nil), w...)

	sumMu := 0.0
	sumMuSq := 0.0
	for _, mu := range mean {
		sumMu += mu
		sumMuSq += mu * mu
	}

	for s := 0; s < sweeps; s++ {
		// Solve for multipliers a, b in w' = w + a·1 + b·μ hitting both
		// equality constraints.
		sumW := 0.0
		retW := 0.0
		for i, wi := range out {
			sumW += wi
			retW += wi * mean[i]
		}

		det := float64(n)*sumMuSq - sumMu*sumMu
		if math.Abs(det) < 1e-15 {
			// Degenerate means (all equal): only the sum constraint binds.
			for i := range out {
				out[i] += (1.0 - sumW) / float64(n)
			}
		} else {
			r1 := 1.0 - sumW
			r2 := target - retW
			a := (r1*sumMuSq - r2*sumMu) / det
			b := (r2*float64(n) - r1*sumMu) / det
			for i := range out {
				out[i] += a + b*mean[i]
			}
		}

		clamped := false
		for i := range out {
			if out[i] < 0 {
				out[i] = 0
				clamped = true
			}
		}
		if !clamped {
			break
		}
	}
	return out
}

func sharpe(ret, vol, riskFree float64) float64 {
	if vol == 0 {
		return 0
	}
	return (ret - riskFree) / vol
}
