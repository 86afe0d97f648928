// Package montecarlo simulates portfolio value trajectories from correlated
// per-period return draws and reduces them to distributional risk statistics.
// Trajectories are embarrassingly parallel; each one uses its own sub-seeded
// generator so runs are bit-identical for a given seed.
package montecarlo

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/quantfolio/quantfolio/internal/domain"
	"github.com/quantfolio/quantfolio/internal/stats"
)

// DefaultPercentiles is the percentile table reported when the caller does
// not supply one.
var DefaultPercentiles = []float64{5, 25, 50, 75, 95}

// Config defines engine-level knobs independent of any single simulation.
type Config struct {
	Workers     int       `json:"workers" yaml:"workers"`         // 0 = GOMAXPROCS
	Percentiles []float64 `json:"percentiles" yaml:"percentiles"` // Defaults to DefaultPercentiles
}

// Engine runs Monte Carlo simulations.
type Engine struct {
	workers     int
	percentiles []float64
}

// New creates an Engine, bounding workers by available cores.
func New(cfg Config) *Engine {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	percentiles := cfg.Percentiles
	if len(percentiles) == 0 {
		percentiles = DefaultPercentiles
	}
	return &Engine{workers: workers, percentiles: percentiles}
}

// Simulate draws params.NumSimulations trajectories of params.NumPeriods
// periods. The portfolio value updates as V_t = V_{t-1}·(1 + wᵀr_t) with
// constant weights. Sampling is either parametric (multivariate normal via
// the Cholesky factor of Σ) or empirical (i.i.d. resampling of observed
// return rows); the mode is recorded in the result parameters.
func (e *Engine) Simulate(ctx context.Context, matrix *domain.ReturnMatrix, m *stats.Moments, weights domain.WeightVector, params domain.SimulationParams) (*domain.SimulationResult, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	if err := weights.Validate(m.Symbols); err != nil {
		return nil, err
	}

	w := m.WeightSlice(weights)

	var sample sampler
	switch params.SamplingMode {
	case domain.SamplingParametric:
		chol, err := stats.Cholesky(m.Cov)
		if err != nil {
			return nil, domain.NewIllConditionedError("cannot factorize covariance for parametric sampling: " + err.Error())
		}
		sample = parametricSampler(m.Mean, chol, w)
	case domain.SamplingEmpirical:
		sample = empiricalSampler(matrix.Rows(), w)
	default:
		return nil, domain.NewValidationError(fmt.Sprintf("unknown sampling mode %q", params.SamplingMode))
	}

	trajectories := make([][]float64, params.NumSimulations)

	workers := e.workers
	if workers > params.NumSimulations {
		workers = params.NumSimulations
	}

	var (
		wg      sync.WaitGroup
		next    int64 = -1
		aborted atomic.Bool
	)
	for wk := 0; wk < workers; wk++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&next, 1))
				if i >= params.NumSimulations {
					return
				}
				if ctx.Err() != nil {
					aborted.Store(true)
					return
				}
				trajectories[i] = simulateOne(subSeed(params.Seed, i), params, sample)
			}
		}()
	}
	wg.Wait()

	if aborted.Load() {
		return nil, domain.NewAbortedError(ctx.Err())
	}

	finals := make([]float64, params.NumSimulations)
	for i, tr := range trajectories {
		finals[i] = tr[len(tr)-1]
	}

	result := &domain.SimulationResult{
		ID:           uuid.NewString(),
		Parameters:   params,
		Trajectories: trajectories,
		Statistics:   e.summarize(finals),
		CreatedAt:    time.Now().UTC(),
	}

	log.Debug().
		Int("simulations", params.NumSimulations).
		Int("periods", params.NumPeriods).
		Int64("seed", params.Seed).
		Str("sampling_mode", string(params.SamplingMode)).
		Float64("mean_final_value", result.Statistics.MeanFinalValue).
		Msg("monte carlo simulation complete")

	return result, nil
}

// sampler draws one portfolio-level period return from rng.
type sampler func(rng *rand.Rand) float64

// parametricSampler draws r = μ + L·z with z standard normal, then collapses
// to the portfolio return wᵀr.
func parametricSampler(mean []float64, chol [][]float64, w []float64) sampler {
	n := len(mean)
	return func(rng *rand.Rand) float64 {
		z := make([]float64, n)
		for i := range z {
			z[i] = rng.NormFloat64()
		}
		ret := 0.0
		for i := 0; i < n; i++ {
			r := mean[i]
			for k := 0; k <= i; k++ {
				r += chol[i][k] * z[k]
			}
			ret += w[i] * r
		}
		return ret
	}
}

// empiricalSampler resamples observed period rows with replacement.
func empiricalSampler(rows [][]float64, w []float64) sampler {
	return func(rng *rand.Rand) float64 {
		row := rows[rng.Intn(len(rows))]
		ret := 0.0
		for i, wi := range w {
			ret += wi * row[i]
		}
		return ret
	}
}

func simulateOne(seed int64, params domain.SimulationParams, sample sampler) []float64 {
	rng := rand.New(rand.NewSource(seed))
	values := make([]float64, params.NumPeriods+1)
	values[0] = params.InitialInvestment
	for t := 1; t <= params.NumPeriods; t++ {
		values[t] = values[t-1] * (1.0 + sample(rng))
	}
	return values
}

func (e *Engine) summarize(finals []float64) domain.SimulationStatistics {
	min, max := finals[0], finals[0]
	for _, v := range finals[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	percentiles := make(map[string]float64, len(e.percentiles))
	for _, p := range e.percentiles {
		percentiles[strconv.FormatFloat(p, 'f', -1, 64)] = stats.Percentile(finals, p)
	}

	return domain.SimulationStatistics{
		MeanFinalValue:    stats.Mean(finals),
		MedianFinalValue:  stats.Median(finals),
		MinFinalValue:     min,
		MaxFinalValue:     max,
		StandardDeviation: stats.StdDev(finals),
		Percentiles:       percentiles,
	}
}

func validateParams(params domain.SimulationParams) error {
	var details []string
	if params.InitialInvestment <= 0 {
		details = append(details, "initial investment must be a positive number")
	}
	if params.NumSimulations <= 0 {
		details = append(details, "number of simulations must be a positive integer")
	}
	if params.NumPeriods <= 0 {
		details = append(details, "number of periods must be a positive integer")
	}
	if len(details) > 0 {
		return domain.NewValidationError("invalid simulation request", details...)
	}
	return nil
}
