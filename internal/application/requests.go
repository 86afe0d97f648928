package application

import (
	"github.com/quantfolio/quantfolio/internal/domain"
)

// OptimizationRequest is the shared input contract for risk parity and HRP:
// a portfolio reference plus per-asset historical return series.
type OptimizationRequest struct {
	PortfolioID string               `json:"portfolioId"`
	Returns     map[string][]float64 `json:"returns"`
}

// FrontierRequest extends the shared contract with the sweep parameters.
type FrontierRequest struct {
	PortfolioID   string               `json:"portfolioId"`
	Returns       map[string][]float64 `json:"returns"`
	NumPortfolios int                  `json:"numPortfolios"`
	RiskFreeRate  float64              `json:"riskFreeRate"`
}

// SimulationRequest carries everything one Monte Carlo run needs. A nil Seed
// asks the service to pick one; the chosen seed is always recorded in the
// result so the run can be reproduced.
type SimulationRequest struct {
	PortfolioID       string               `json:"portfolioId"`
	Returns           map[string][]float64 `json:"returns"`
	InitialInvestment float64              `json:"initialInvestment"`
	NumSimulations    int                  `json:"numSimulations"`
	NumPeriods        int                  `json:"numPeriods"`
	Seed              *int64               `json:"seed,omitempty"`
	SamplingMode      domain.SamplingMode  `json:"samplingMode,omitempty"`
}

// AnalysisRequest references a previously stored simulation.
type AnalysisRequest struct {
	SimulationID     string    `json:"simulationId"`
	ConfidenceLevels []float64 `json:"confidenceLevels,omitempty"`
}

func (r OptimizationRequest) validate() error {
	var details []string
	if r.PortfolioID == "" {
		details = append(details, "portfolio ID is required")
	}
	if len(r.Returns) == 0 {
		details = append(details, "returns data is required")
	}
	if len(details) > 0 {
		return domain.NewValidationError("invalid optimization request", details...)
	}
	return nil
}
