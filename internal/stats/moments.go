package stats

import (
	"math"

	"github.com/quantfolio/quantfolio/internal/domain"
)

const (
	// Below this determinant the covariance is treated as singular.
	detThreshold = 1e-12
	// Above this condition number downstream matrix solves are unreliable.
	condThreshold = 1e10

	powerIterations = 100
	powerTolerance  = 1e-10
)

// Moments holds the estimated mean vector and covariance/correlation
// matrices for one ReturnMatrix. Computed once per request and shared by all
// downstream components.
type Moments struct {
	Symbols []string
	Mean    []float64
	Cov     [][]float64
	Corr    [][]float64
	Periods int
}

// Compute estimates μ and Σ (sample covariance, n−1 denominator) from a
// validated ReturnMatrix.
func Compute(m *domain.ReturnMatrix) (*Moments, error) {
	if m.NumPeriods() < 2 {
		return nil, domain.NewInsufficientDataError(m.NumPeriods())
	}

	n := m.NumAssets()
	periods := m.NumPeriods()

	mean := make([]float64, n)
	for i, sym := range m.Symbols {
		for _, r := range m.Series[sym] {
			mean[i] += r
		}
		mean[i] /= float64(periods)
	}

	cov := make([][]float64, n)
	for i := range cov {
		cov[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		si := m.Series[m.Symbols[i]]
		for j := i; j < n; j++ {
			sj := m.Series[m.Symbols[j]]
			s := 0.0
			for t := 0; t < periods; t++ {
				s += (si[t] - mean[i]) * (sj[t] - mean[j])
			}
			c := s / float64(periods-1)
			cov[i][j] = c
			cov[j][i] = c
		}
	}

	return &Moments{
		Symbols: append([]string(nil), m.Symbols...),
		Mean:    mean,
		Cov:     cov,
		Corr:    correlationFrom(cov),
		Periods: periods,
	}, nil
}

// correlationFrom derives ρ from Σ, clamping to [-1, 1]. Zero-variance assets
// get zero off-diagonal correlation rather than NaN.
func correlationFrom(cov [][]float64) [][]float64 {
	n := len(cov)
	corr := make([][]float64, n)
	for i := range corr {
		corr[i] = make([]float64, n)
		corr[i][i] = 1.0
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			den := math.Sqrt(cov[i][i] * cov[j][j])
			v := 0.0
			if den > 0 {
				v = cov[i][j] / den
			}
			v = math.Max(-1.0, math.Min(1.0, v))
			corr[i][j] = v
			corr[j][i] = v
		}
	}
	return corr
}

// CheckConditioning guards callers that rely on matrix inversion downstream.
// It fails with an IllConditionedCovarianceError when Σ is singular (Cholesky
// breaks down), its determinant is below detThreshold, or its condition
// number estimate exceeds condThreshold. On success it returns the lower
// Cholesky factor for reuse.
func (m *Moments) CheckConditioning() ([][]float64, error) {
	l, err := Cholesky(m.Cov)
	if err != nil {
		return nil, domain.NewIllConditionedError("covariance matrix is singular: " + err.Error())
	}

	// det(Σ) = Π L_ii², accumulated in log space to dodge underflow on the
	// small variances typical of daily returns.
	logDet := 0.0
	for i := range l {
		logDet += 2 * math.Log(l[i][i])
	}
	if logDet < math.Log(detThreshold)*float64(len(l)) {
		// Per-dimension scale check rather than raw determinant so that the
		// guard does not depend on asset count.
		return nil, domain.NewIllConditionedError("covariance determinant below singularity threshold")
	}

	cond := m.conditionEstimate(l)
	if cond > condThreshold {
		return nil, domain.NewIllConditionedError("covariance condition number estimate exceeds threshold")
	}
	return l, nil
}

// conditionEstimate approximates λmax/λmin by power iteration on Σ and
// inverse power iteration through Cholesky solves.
func (m *Moments) conditionEstimate(l [][]float64) float64 {
	n := len(m.Cov)
	if n == 1 {
		return 1.0
	}

	v := make([]float64, n)
	for i := range v {
		v[i] = 1.0 / math.Sqrt(float64(n))
	}
	lambdaMax := 0.0
	for iter := 0; iter < powerIterations; iter++ {
		w := MatVec(m.Cov, v)
		nrm := norm2(w)
		if nrm == 0 {
			break
		}
		for i := range w {
			w[i] /= nrm
		}
		next := Dot(w, MatVec(m.Cov, w))
		if math.Abs(next-lambdaMax) < powerTolerance*math.Abs(next) {
			lambdaMax = next
			break
		}
		lambdaMax = next
		v = w
	}

	u := make([]float64, n)
	for i := range u {
		u[i] = 1.0 / math.Sqrt(float64(n))
	}
	lambdaMinInv := 0.0
	for iter := 0; iter < powerIterations; iter++ {
		w := CholeskySolve(l, u)
		nrm := norm2(w)
		if nrm == 0 {
			break
		}
		for i := range w {
			w[i] /= nrm
		}
		next := Dot(w, CholeskySolve(l, w))
		if math.Abs(next-lambdaMinInv) < powerTolerance*math.Abs(next) {
			lambdaMinInv = next
			break
		}
		lambdaMinInv = next
		u = w
	}

	if lambdaMinInv <= 0 {
		return math.Inf(1)
	}
	return lambdaMax * lambdaMinInv
}

// PortfolioVolatility computes sqrt(wᵀΣw) for a weight slice aligned with
// m.Symbols.
func (m *Moments) PortfolioVolatility(w []float64) float64 {
	return math.Sqrt(math.Max(0, QuadForm(w, m.Cov)))
}

// PortfolioReturn computes wᵀμ for a weight slice aligned with m.Symbols.
func (m *Moments) PortfolioReturn(w []float64) float64 {
	return Dot(w, m.Mean)
}

// WeightSlice flattens a WeightVector into m's symbol order.
func (m *Moments) WeightSlice(w domain.WeightVector) []float64 {
	out := make([]float64, len(m.Symbols))
	for i, sym := range m.Symbols {
		out[i] = w[sym]
	}
	return out
}

// WeightMap lifts a weight slice in m's symbol order back into a WeightVector.
func (m *Moments) WeightMap(w []float64) domain.WeightVector {
	out := make(domain.WeightVector, len(w))
	for i, sym := range m.Symbols {
		out[sym] = w[i]
	}
	return out
}
