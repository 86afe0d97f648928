package domain

import "time"

// ResultKind tags a persisted computation result.
type ResultKind string

const (
	KindRiskParity ResultKind = "risk-parity"
	KindHRP        ResultKind = "hrp"
	KindFrontier   ResultKind = "efficient-frontier"
	KindSimulation ResultKind = "monte-carlo-simulation"
	KindAnalysis   ResultKind = "monte-carlo-analysis"
)

// RiskParityResult is the output of one equal-risk-contribution optimization.
// Immutable once produced.
type RiskParityResult struct {
	ID                  string             `json:"id"`
	PortfolioID         string             `json:"portfolioId,omitempty"`
	Weights             WeightVector       `json:"weights"`
	PortfolioVolatility float64            `json:"portfolioVolatility"`
	RiskContribution    map[string]float64 `json:"riskContribution"`
	Converged           bool               `json:"converged"`
	Iterations          int                `json:"iterations"`
	Objective           float64            `json:"objective"`
	CreatedAt           time.Time          `json:"createdAt"`
}

// ClusterMerge records one agglomerative merge step: the two cluster ids
// joined and the linkage distance between them. Leaf clusters are numbered
// 0..n-1 in symbol order; merged clusters continue from n in merge order.
type ClusterMerge struct {
	Left     int     `json:"left"`
	Right    int     `json:"right"`
	Distance float64 `json:"distance"`
}

// HRPResult is the output of one hierarchical risk parity allocation.
type HRPResult struct {
	ID                  string         `json:"id"`
	PortfolioID         string         `json:"portfolioId,omitempty"`
	Weights             WeightVector   `json:"weights"`
	PortfolioVolatility float64        `json:"portfolioVolatility"`
	ClusterTree         []ClusterMerge `json:"clusterTree"`
	LeafOrder           []string       `json:"leafOrder"`
	CreatedAt           time.Time      `json:"createdAt"`
}

// FrontierPoint is one feasible portfolio on the mean-variance frontier.
type FrontierPoint struct {
	Weights        WeightVector `json:"weights"`
	ExpectedReturn float64      `json:"expectedReturn"`
	Volatility     float64      `json:"volatility"`
	SharpeRatio    float64      `json:"sharpeRatio"`
}

// FrontierResult is the output of one efficient frontier sweep. Portfolios
// are sorted by ascending target return; infeasible targets are omitted.
type FrontierResult struct {
	ID                     string          `json:"id"`
	PortfolioID            string          `json:"portfolioId,omitempty"`
	Portfolios             []FrontierPoint `json:"portfolios"`
	MinVolatilityPortfolio FrontierPoint   `json:"minVolatilityPortfolio"`
	MaxSharpePortfolio     FrontierPoint   `json:"maxSharpePortfolio"`
	RequestedPoints        int             `json:"requestedPoints"`
	FeasiblePoints         int             `json:"feasiblePoints"`
	RiskFreeRate           float64         `json:"riskFreeRate"`
	CreatedAt              time.Time       `json:"createdAt"`
}

// SamplingMode selects how Monte Carlo period returns are drawn.
type SamplingMode string

const (
	// SamplingParametric draws multivariate-normal returns from the fitted
	// mean vector and covariance matrix via Cholesky factorization.
	SamplingParametric SamplingMode = "parametric"
	// SamplingEmpirical resamples observed return rows i.i.d. with replacement.
	SamplingEmpirical SamplingMode = "empirical"
)

// SimulationParams records everything needed to reproduce a simulation.
type SimulationParams struct {
	InitialInvestment float64      `json:"initialInvestment"`
	NumSimulations    int          `json:"numSimulations"`
	NumPeriods        int          `json:"numPeriods"`
	Seed              int64        `json:"seed"`
	SamplingMode      SamplingMode `json:"samplingMode"`
}

// SimulationStatistics summarizes the distribution of final portfolio values.
type SimulationStatistics struct {
	MeanFinalValue    float64            `json:"meanFinalValue"`
	MedianFinalValue  float64            `json:"medianFinalValue"`
	MinFinalValue     float64            `json:"minFinalValue"`
	MaxFinalValue     float64            `json:"maxFinalValue"`
	StandardDeviation float64            `json:"standardDeviation"`
	Percentiles       map[string]float64 `json:"percentiles"`
}

// SimulationResult holds S trajectories of length T+1 (initial value
// included) plus summary statistics. Trajectory i is always generated from
// the i-th sub-stream of the seeded generator, so the ordering is stable
// regardless of worker scheduling.
type SimulationResult struct {
	ID           string               `json:"id"`
	PortfolioID  string               `json:"portfolioId,omitempty"`
	Parameters   SimulationParams     `json:"parameters"`
	Trajectories [][]float64          `json:"trajectories,omitempty"`
	Statistics   SimulationStatistics `json:"statistics"`
	Truncated    bool                 `json:"truncated,omitempty"`
	CreatedAt    time.Time            `json:"createdAt"`
}

// DrawdownStats summarizes per-trajectory maximum drawdowns.
type DrawdownStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Max    float64 `json:"max"`
}

// AnalysisResult is a deterministic reduction over one SimulationResult.
type AnalysisResult struct {
	ID                string             `json:"id"`
	SimulationID      string             `json:"simulationId"`
	ProbabilityOfLoss float64            `json:"probabilityOfLoss"`
	ProbabilityOfGain float64            `json:"probabilityOfGain"`
	ExpectedReturn    float64            `json:"expectedReturn"`
	ExpectedRisk      float64            `json:"expectedRisk"`
	ValueAtRisk       map[string]float64 `json:"valueAtRisk"`
	MaxDrawdown       DrawdownStats      `json:"maxDrawdown"`
	CreatedAt         time.Time          `json:"createdAt"`
}
