package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"
)

// WeightSumTolerance is the allowed deviation of a weight vector from 1.0.
const WeightSumTolerance = 1e-4

// WeightVector maps asset symbols to non-negative allocation weights.
// A valid vector sums to 1.0 within WeightSumTolerance.
type WeightVector map[string]float64

// Validate checks non-negativity and the sum-to-one invariant. When symbols
// is non-empty the vector's domain must exactly match it.
func (w WeightVector) Validate(symbols []string) error {
	if len(w) == 0 {
		return NewValidationError("weight vector is empty")
	}

	var details []string
	sum := 0.0
	for sym, wt := range w {
		if math.IsNaN(wt) || math.IsInf(wt, 0) {
			details = append(details, fmt.Sprintf("weight for %s is not finite", sym))
			continue
		}
		if wt < 0 {
			details = append(details, fmt.Sprintf("weight for %s is negative: %f", sym, wt))
		}
		sum += wt
	}
	if math.Abs(sum-1.0) > WeightSumTolerance {
		details = append(details, fmt.Sprintf("weights sum to %.6f, expected 1.0 ±%.0e", sum, WeightSumTolerance))
	}

	if len(symbols) > 0 {
		for _, sym := range symbols {
			if _, ok := w[sym]; !ok {
				details = append(details, fmt.Sprintf("missing weight for asset %s", sym))
			}
		}
		if len(w) != len(symbols) {
			for sym := range w {
				if !containsSymbol(symbols, sym) {
					details = append(details, fmt.Sprintf("weight for unknown asset %s", sym))
				}
			}
		}
	}

	if len(details) > 0 {
		sort.Strings(details)
		return NewValidationError("invalid weight vector", details...)
	}
	return nil
}

func containsSymbol(symbols []string, sym string) bool {
	for _, s := range symbols {
		if s == sym {
			return true
		}
	}
	return false
}

// ReturnMatrix holds one return series per asset with a stable symbol order.
// Position i across all series refers to the same period.
type ReturnMatrix struct {
	Symbols []string
	Series  map[string][]float64
}

// NewReturnMatrix builds a ReturnMatrix with symbols sorted lexicographically
// so that downstream computations are order-deterministic, and validates the
// series invariants: length >= 2, equal lengths, finite values.
func NewReturnMatrix(series map[string][]float64) (*ReturnMatrix, error) {
	if len(series) == 0 {
		return nil, NewValidationError("returns data is required")
	}

	symbols := make([]string, 0, len(series))
	for sym := range series {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	periods := len(series[symbols[0]])
	if periods < 2 {
		return nil, NewInsufficientDataError(periods)
	}

	var details []string
	for _, sym := range symbols {
		rs := series[sym]
		if len(rs) != periods {
			details = append(details, fmt.Sprintf("series for %s has %d periods, expected %d", sym, len(rs), periods))
			continue
		}
		for i, r := range rs {
			if math.IsNaN(r) || math.IsInf(r, 0) {
				details = append(details, fmt.Sprintf("series for %s has non-finite value at period %d", sym, i))
				break
			}
		}
	}
	if len(details) > 0 {
		return nil, NewDimensionMismatchError(details...)
	}

	return &ReturnMatrix{Symbols: symbols, Series: series}, nil
}

// NumAssets returns the number of assets in the matrix.
func (m *ReturnMatrix) NumAssets() int { return len(m.Symbols) }

// NumPeriods returns the common series length.
func (m *ReturnMatrix) NumPeriods() int {
	if len(m.Symbols) == 0 {
		return 0
	}
	return len(m.Series[m.Symbols[0]])
}

// Rows returns the matrix in period-major form: Rows()[t][i] is the period-t
// return of asset m.Symbols[i].
func (m *ReturnMatrix) Rows() [][]float64 {
	rows := make([][]float64, m.NumPeriods())
	for t := range rows {
		row := make([]float64, len(m.Symbols))
		for i, sym := range m.Symbols {
			row[i] = m.Series[sym][t]
		}
		rows[t] = row
	}
	return rows
}

// MarshalJSON renders the matrix as a plain symbol -> series map.
func (m *ReturnMatrix) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Series)
}

// UnmarshalJSON rebuilds the matrix from a symbol -> series map, restoring
// sorted symbol order and re-validating the series invariants.
func (m *ReturnMatrix) UnmarshalJSON(data []byte) error {
	var series map[string][]float64
	if err := json.Unmarshal(data, &series); err != nil {
		return err
	}
	rm, err := NewReturnMatrix(series)
	if err != nil {
		return err
	}
	*m = *rm
	return nil
}

// Portfolio is a named weight allocation, the unit the registry persists.
type Portfolio struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Assets      WeightVector `json:"assets"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Validate checks the portfolio invariants before persistence.
func (p *Portfolio) Validate() error {
	var details []string
	if p.Name == "" {
		details = append(details, "portfolio name is required")
	}
	for sym := range p.Assets {
		if sym == "" || len(sym) > 10 {
			details = append(details, fmt.Sprintf("invalid ticker: %q", sym))
		}
	}
	if len(details) > 0 {
		return NewValidationError("invalid portfolio", details...)
	}
	return p.Assets.Validate(nil)
}
