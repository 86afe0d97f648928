package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quantfolio/quantfolio/internal/application"
	"github.com/quantfolio/quantfolio/internal/domain"
	"github.com/quantfolio/quantfolio/internal/montecarlo"
	"github.com/quantfolio/quantfolio/internal/persistence"
)

// oneShotInput is the local-file input contract for the one-shot commands:
// a weight allocation plus per-asset historical return series.
type oneShotInput struct {
	Name    string               `json:"name"`
	Assets  domain.WeightVector  `json:"assets"`
	Returns map[string][]float64 `json:"returns"`
}

func newOptimizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Run a one-shot optimization against a local input file",
		Long: `Read a JSON file with an asset allocation and historical returns, run the
selected optimization method, and print the result to stdout.`,
		RunE: runOptimize,
	}
	cmd.Flags().String("input", "", "Path to JSON input file (required)")
	cmd.Flags().String("method", "risk-parity", "Optimization method (risk-parity|hrp|efficient-frontier)")
	cmd.Flags().Int("num-portfolios", 0, "Frontier point count (efficient-frontier only)")
	cmd.Flags().Float64("risk-free-rate", 0, "Risk-free rate for Sharpe ratios")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a one-shot Monte Carlo simulation against a local input file",
		RunE:  runSimulate,
	}
	cmd.Flags().String("input", "", "Path to JSON input file (required)")
	cmd.Flags().Float64("initial-investment", 10000, "Starting portfolio value")
	cmd.Flags().Int("num-simulations", 1000, "Trajectory count")
	cmd.Flags().Int("num-periods", 252, "Periods per trajectory")
	cmd.Flags().Int64("seed", 0, "Random seed (0 = time-based)")
	cmd.Flags().String("sampling-mode", string(domain.SamplingParametric), "Sampling mode (parametric|empirical)")
	cmd.Flags().Bool("analyze", false, "Also print risk analysis of the simulation")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a previously saved simulation result file",
		RunE:  runAnalyze,
	}
	cmd.Flags().String("simulation", "", "Path to a saved SimulationResult JSON file (required)")
	cmd.Flags().Float64Slice("confidence-levels", nil, "VaR confidence levels, e.g. 0.95,0.99")
	_ = cmd.MarkFlagRequired("simulation")
	return cmd
}

// oneShotService builds a Service over an in-memory store seeded with the
// input file's allocation.
func oneShotService(cmd *cobra.Command, input *oneShotInput) (*application.Service, *domain.Portfolio, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	mem := persistence.NewMemoryStore()
	svc := application.New(cfg, mem, mem.Results())

	name := input.Name
	if name == "" {
		name = "one-shot"
	}
	p, err := svc.CreatePortfolio(cmd.Context(), &domain.Portfolio{Name: name, Assets: input.Assets})
	if err != nil {
		return nil, nil, err
	}
	return svc, p, nil
}

func readInput(path string) (*oneShotInput, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	var input oneShotInput
	if err := json.Unmarshal(b, &input); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}
	return &input, nil
}

func printResult(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runOptimize(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("input")
	input, err := readInput(path)
	if err != nil {
		return err
	}
	svc, p, err := oneShotService(cmd, input)
	if err != nil {
		return err
	}

	method, _ := cmd.Flags().GetString("method")
	switch method {
	case "risk-parity":
		out, err := svc.RunRiskParity(cmd.Context(), application.OptimizationRequest{
			PortfolioID: p.ID, Returns: input.Returns,
		})
		if err != nil {
			return err
		}
		return printResult(out)

	case "hrp":
		out, err := svc.RunHRP(cmd.Context(), application.OptimizationRequest{
			PortfolioID: p.ID, Returns: input.Returns,
		})
		if err != nil {
			return err
		}
		return printResult(out)

	case "efficient-frontier":
		numPortfolios, _ := cmd.Flags().GetInt("num-portfolios")
		riskFree, _ := cmd.Flags().GetFloat64("risk-free-rate")
		out, err := svc.RunFrontier(cmd.Context(), application.FrontierRequest{
			PortfolioID:   p.ID,
			Returns:       input.Returns,
			NumPortfolios: numPortfolios,
			RiskFreeRate:  riskFree,
		})
		if err != nil {
			return err
		}
		return printResult(out)

	default:
		return fmt.Errorf("unknown optimization method %q", method)
	}
}

func runSimulate(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("input")
	input, err := readInput(path)
	if err != nil {
		return err
	}
	svc, p, err := oneShotService(cmd, input)
	if err != nil {
		return err
	}

	initial, _ := cmd.Flags().GetFloat64("initial-investment")
	numSims, _ := cmd.Flags().GetInt("num-simulations")
	numPeriods, _ := cmd.Flags().GetInt("num-periods")
	seed, _ := cmd.Flags().GetInt64("seed")
	mode, _ := cmd.Flags().GetString("sampling-mode")

	req := application.SimulationRequest{
		PortfolioID:       p.ID,
		Returns:           input.Returns,
		InitialInvestment: initial,
		NumSimulations:    numSims,
		NumPeriods:        numPeriods,
		SamplingMode:      domain.SamplingMode(mode),
	}
	if seed != 0 {
		req.Seed = &seed
	}

	sim, err := svc.RunSimulation(cmd.Context(), req)
	if err != nil {
		return err
	}
	if withAnalysis, _ := cmd.Flags().GetBool("analyze"); withAnalysis {
		analysis, err := svc.RunAnalysis(cmd.Context(), application.AnalysisRequest{SimulationID: sim.ID})
		if err != nil {
			return err
		}
		return printResult(map[string]any{"simulation": sim, "analysis": analysis})
	}
	return printResult(sim)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("simulation")
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read simulation: %w", err)
	}
	var sim domain.SimulationResult
	if err := json.Unmarshal(b, &sim); err != nil {
		return fmt.Errorf("parse simulation: %w", err)
	}

	levels, _ := cmd.Flags().GetFloat64Slice("confidence-levels")
	out, err := montecarlo.Analyze(&sim, levels)
	if err != nil {
		return err
	}
	return printResult(out)
}
