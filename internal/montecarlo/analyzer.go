package montecarlo

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/quantfolio/quantfolio/internal/domain"
	"github.com/quantfolio/quantfolio/internal/stats"
)

// DefaultConfidenceLevels is the VaR confidence table reported when the
// caller does not supply one.
var DefaultConfidenceLevels = []float64{0.95, 0.99}

// Analyze reduces a previously produced simulation to distributional risk
// statistics. No new sampling happens here; the output is a pure function of
// its input.
func Analyze(sim *domain.SimulationResult, confidenceLevels []float64) (*domain.AnalysisResult, error) {
	if sim == nil || len(sim.Trajectories) == 0 {
		return nil, domain.NewValidationError("simulation has no trajectories to analyze")
	}
	if len(confidenceLevels) == 0 {
		confidenceLevels = DefaultConfidenceLevels
	}
	for _, c := range confidenceLevels {
		if c <= 0 || c >= 1 {
			return nil, domain.NewValidationError(fmt.Sprintf("confidence level %v must be in (0, 1)", c))
		}
	}

	initial := sim.Parameters.InitialInvestment
	count := len(sim.Trajectories)

	finals := make([]float64, count)
	returns := make([]float64, count)
	drawdowns := make([]float64, count)
	losses := 0
	for i, tr := range sim.Trajectories {
		final := tr[len(tr)-1]
		finals[i] = final
		returns[i] = final/initial - 1.0
		drawdowns[i] = maxDrawdown(tr)
		if final < initial {
			losses++
		}
	}

	probLoss := float64(losses) / float64(count)

	valueAtRisk := make(map[string]float64, len(confidenceLevels))
	for _, c := range confidenceLevels {
		// 95% VaR is the loss magnitude at the 5th percentile of final
		// values, floored at zero when the percentile sits above the initial
		// investment.
		p := stats.Percentile(finals, (1.0-c)*100.0)
		loss := initial - p
		if loss < 0 {
			loss = 0
		}
		valueAtRisk[strconv.FormatFloat(c*100, 'f', -1, 64)] = loss
	}

	maxDD := drawdowns[0]
	for _, d := range drawdowns[1:] {
		if d > maxDD {
			maxDD = d
		}
	}

	return &domain.AnalysisResult{
		ID:                uuid.NewString(),
		SimulationID:      sim.ID,
		ProbabilityOfLoss: probLoss,
		ProbabilityOfGain: 1.0 - probLoss,
		ExpectedReturn:    stats.Mean(returns),
		ExpectedRisk:      stats.StdDev(returns),
		ValueAtRisk:       valueAtRisk,
		MaxDrawdown: domain.DrawdownStats{
			Mean:   stats.Mean(drawdowns),
			Median: stats.Median(drawdowns),
			Max:    maxDD,
		},
		CreatedAt: time.Now().UTC(),
	}, nil
}

// maxDrawdown is the largest peak-to-trough decline along one trajectory,
// expressed as a fraction of the peak.
func maxDrawdown(values []float64) float64 {
	peak := values[0]
	maxDD := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd := (peak - v) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}
