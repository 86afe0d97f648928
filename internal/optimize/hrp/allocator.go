// Package hrp implements hierarchical risk parity allocation: correlation
// distances, single-linkage agglomerative clustering, quasi-diagonalization,
// and recursive bisection. The whole path avoids matrix inversion, so it
// stays usable on covariance matrices too ill-conditioned for mean-variance
// methods.
package hrp

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/quantfolio/quantfolio/internal/domain"
	"github.com/quantfolio/quantfolio/internal/stats"
)

// Allocator runs hierarchical risk parity over one Moments set.
type Allocator struct{}

// New creates an Allocator.
func New() *Allocator {
	return &Allocator{}
}

// Allocate computes HRP weights. The returned merge tree lists cluster id
// pairs in merge order (leaves are 0..n-1 in symbol order, merged clusters
// continue from n), so callers can reconstruct the dendrogram.
func (a *Allocator) Allocate(ctx context.Context, m *stats.Moments) (*domain.HRPResult, error) {
	n := len(m.Symbols)
	if n == 0 {
		return nil, domain.NewValidationError("no assets to allocate")
	}
	if err := ctx.Err(); err != nil {
		return nil, domain.NewAbortedError(err)
	}

	dist := distanceMatrix(m.Corr)
	merges, root := cluster(dist)
	order := leafOrder(root, n, merges)

	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1.0
	}
	bisect(order, weights, m.Cov)

	vol := m.PortfolioVolatility(weights)

	leafSymbols := make([]string, n)
	for i, idx := range order {
		leafSymbols[i] = m.Symbols[idx]
	}

	result := &domain.HRPResult{
		ID:                  uuid.NewString(),
		Weights:             m.WeightMap(weights),
		PortfolioVolatility: vol,
		ClusterTree:         merges,
		LeafOrder:           leafSymbols,
		CreatedAt:           time.Now().UTC(),
	}

	log.Debug().
		Int("assets", n).
		Int("merges", len(merges)).
		Float64("volatility", vol).
		Msg("hrp allocation complete")

	return result, nil
}

// distanceMatrix applies d_ij = sqrt(0.5·(1−ρ_ij)), a proper metric over the
// correlation matrix.
func distanceMatrix(corr [][]float64) [][]float64 {
	n := len(corr)
	d := make([][]float64, n)
	for i := range d {
		d[i] = make([]float64, n)
		for j := range d[i] {
			d[i][j] = math.Sqrt(0.5 * (1.0 - corr[i][j]))
		}
	}
	return d
}

// cluster performs single-linkage agglomerative clustering. Ties on equal
// linkage distance break toward the lowest (minLeft, minRight) asset-index
// pair so the merge order is deterministic for identical inputs.
func cluster(dist [][]float64) ([]domain.ClusterMerge, int) {
	n := len(dist)

	// members[id] holds the leaf indices of each active cluster.
	members := make(map[int][]int, 2*n-1)
	active := make([]int, 0, n)
	for i := 0; i < n; i++ {
		members[i] = []int{i}
		active = append(active, i)
	}

	merges := make([]domain.ClusterMerge, 0, n-1)
	nextID := n

	for len(active) > 1 {
		bestI, bestJ := -1, -1
		bestDist := math.Inf(1)
		bestKey := [2]int{math.MaxInt32, math.MaxInt32}

		for ai := 0; ai < len(active); ai++ {
			for aj := ai + 1; aj < len(active); aj++ {
				ci, cj := active[ai], active[aj]
				d := linkage(dist, members[ci], members[cj])
				key := pairKey(members[ci], members[cj])
				if d < bestDist || (d == bestDist && lessKey(key, bestKey)) {
					bestDist = d
					bestI, bestJ = ai, aj
					bestKey = key
				}
			}
		}

		left, right := active[bestI], active[bestJ]
		if left > right {
			left, right = right, left
		}
		merged := append(append([]int(nil), members[left]...), members[right]...)
		members[nextID] = merged
		merges = append(merges, domain.ClusterMerge{Left: left, Right: right, Distance: bestDist})

		// Replace the two clusters with the merged one, keeping active sorted.
		next := make([]int, 0, len(active)-1)
		for _, id := range active {
			if id != left && id != right {
				next = append(next, id)
			}
		}
		active = append(next, nextID)
		nextID++
	}

	return merges, nextID - 1
}

// linkage is the single-linkage distance: the minimum leaf-to-leaf distance
// across the two clusters.
func linkage(dist [][]float64, a, b []int) float64 {
	min := math.Inf(1)
	for _, i := range a {
		for _, j := range b {
			if dist[i][j] < min {
				min = dist[i][j]
			}
		}
	}
	return min
}

// pairKey identifies a candidate merge by the smallest leaf indices of the
// two clusters, ordered.
func pairKey(a, b []int) [2]int {
	ma, mb := minInt(a), minInt(b)
	if ma > mb {
		ma, mb = mb, ma
	}
	return [2]int{ma, mb}
}

func minInt(xs []int) int {
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func lessKey(a, b [2]int) bool {
	if a[0] != b[0] {
		return a[0] < b[0]
	}
	return a[1] < b[1]
}

// leafOrder expands the merge tree depth-first so that correlated assets end
// up adjacent (quasi-diagonalization).
func leafOrder(root, n int, merges []domain.ClusterMerge) []int {
	var expand func(id int) []int
	expand = func(id int) []int {
		if id < n {
			return []int{id}
		}
		m := merges[id-n]
		return append(expand(m.Left), expand(m.Right)...)
	}
	return expand(root)
}

// bisect recursively splits the ordered asset list into contiguous halves and
// allocates capital between them inversely proportional to each half's
// variance. Weights are accumulated multiplicatively along the path from root
// to leaf.
func bisect(order []int, weights []float64, cov [][]float64) {
	if len(order) < 2 {
		return
	}
	mid := len(order) / 2
	left, right := order[:mid], order[mid:]

	varLeft := clusterVariance(left, cov)
	varRight := clusterVariance(right, cov)

	alpha := 0.5
	if varLeft+varRight > 0 {
		alpha = 1.0 - varLeft/(varLeft+varRight)
	}
	for _, i := range left {
		weights[i] *= alpha
	}
	for _, i := range right {
		weights[i] *= 1.0 - alpha
	}

	bisect(left, weights, cov)
	bisect(right, weights, cov)
}

// clusterVariance computes wᵀΣw over the cluster's sub-covariance under
// inverse-variance weights, touching only the needed entries.
func clusterVariance(cluster []int, cov [][]float64) float64 {
	w := make([]float64, len(cluster))
	sum := 0.0
	for k, i := range cluster {
		if cov[i][i] > 0 {
			w[k] = 1.0 / cov[i][i]
		}
		sum += w[k]
	}
	if sum == 0 {
		for k := range w {
			w[k] = 1.0 / float64(len(w))
		}
	} else {
		for k := range w {
			w[k] /= sum
		}
	}

	v := 0.0
	for a, i := range cluster {
		for b, j := range cluster {
			v += w[a] * cov[i][j] * w[b]
		}
	}
	return v
}
