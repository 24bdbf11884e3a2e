// Package anomaly flags transactions whose feature vectors sit outside
// the account's recent historical distribution.
//
// The detector is an isolation forest: random trees isolate points by
// recursive axis-aligned splits, and points with short average isolation
// paths score as anomalous. Scoring is deterministic for a given seed
// and input.
package anomaly

import (
	"errors"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Score contribution and alert when the detector flags a transaction.
const (
	FlagDelta = 40
	FlagAlert = "Transaction pattern anomaly detected"
)

var (
	// ErrInsufficientData means the training matrix is too small to fit on.
	ErrInsufficientData = errors.New("anomaly: insufficient training data")

	// ErrDegenerateData means every feature is constant across the matrix.
	ErrDegenerateData = errors.New("anomaly: degenerate training data")
)

// Config holds detector settings.
type Config struct {
	Trees      int
	SampleSize int

	// Contamination sets the score offset at the given quantile of the
	// training scores.
	Contamination float64

	Seed int64

	// Threshold is the decision value below which a point is flagged.
	Threshold float64
}

// DefaultConfig returns the stock detector settings.
func DefaultConfig() Config {
	return Config{
		Trees:         100,
		SampleSize:    256,
		Contamination: 0.1,
		Seed:          42,
		Threshold:     -0.1,
	}
}

// Detector scores candidate feature vectors against a training matrix.
type Detector struct {
	cfg Config
}

// NewDetector creates a detector with the given settings, falling back
// to defaults for zero values.
func NewDetector(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.Trees <= 0 {
		cfg.Trees = def.Trees
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = def.SampleSize
	}
	if cfg.Contamination <= 0 {
		cfg.Contamination = def.Contamination
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = def.Threshold
	}
	return &Detector{cfg: cfg}
}

// Result is the outcome of scoring one candidate.
type Result struct {
	// Decision is the candidate's score relative to the contamination
	// offset. Negative values are more anomalous.
	Decision float64

	// Flagged is true when Decision falls below the threshold.
	Flagged bool
}

// Score fits a forest on the training matrix plus the candidate and
// scores the candidate. The same inputs always produce the same result.
func (d *Detector) Score(candidate domain.FeatureVector, training []domain.FeatureVector) (*Result, error) {
	data := make([][]float64, 0, len(training)+1)
	for _, fv := range training {
		row := make([]float64, len(fv))
		copy(row, fv[:])
		data = append(data, row)
	}
	cand := make([]float64, len(candidate))
	copy(cand, candidate[:])
	data = append(data, cand)

	if len(data) < 2 {
		return nil, ErrInsufficientData
	}
	if !hasVariance(data) {
		return nil, ErrDegenerateData
	}

	rng := rand.New(rand.NewSource(d.cfg.Seed))
	f := fitForest(rng, data, d.cfg.Trees, d.cfg.SampleSize)

	scores := make([]float64, len(data))
	for i, row := range data {
		scores[i] = f.scoreSample(row)
	}

	sorted := make([]float64, len(scores))
	copy(sorted, scores)
	sort.Float64s(sorted)
	offset := stat.Quantile(d.cfg.Contamination, stat.Empirical, sorted, nil)

	decision := scores[len(scores)-1] - offset
	return &Result{
		Decision: decision,
		Flagged:  decision < d.cfg.Threshold,
	}, nil
}

func hasVariance(data [][]float64) bool {
	first := data[0]
	for _, row := range data[1:] {
		for j, v := range row {
			if v != first[j] {
				return true
			}
		}
	}
	return false
}

type forest struct {
	trees []*node
	psi   int
}

type node struct {
	dim   int
	split float64
	left  *node
	right *node
	size  int // external node size
}

func fitForest(rng *rand.Rand, data [][]float64, trees, sampleSize int) *forest {
	psi := sampleSize
	if psi > len(data) {
		psi = len(data)
	}
	heightLimit := int(math.Ceil(math.Log2(float64(psi))))
	if heightLimit < 1 {
		heightLimit = 1
	}

	f := &forest{psi: psi}
	for i := 0; i < trees; i++ {
		perm := rng.Perm(len(data))
		sample := make([][]float64, psi)
		for j := 0; j < psi; j++ {
			sample[j] = data[perm[j]]
		}
		f.trees = append(f.trees, buildNode(rng, sample, 0, heightLimit))
	}
	return f
}

func buildNode(rng *rand.Rand, rows [][]float64, depth, limit int) *node {
	if depth >= limit || len(rows) <= 1 {
		return &node{size: len(rows)}
	}

	// Only dimensions with spread can split
	dims := splittableDims(rows)
	if len(dims) == 0 {
		return &node{size: len(rows)}
	}

	dim := dims[rng.Intn(len(dims))]
	lo, hi := dimRange(rows, dim)
	split := lo + rng.Float64()*(hi-lo)

	var left, right [][]float64
	for _, row := range rows {
		if row[dim] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &node{size: len(rows)}
	}

	return &node{
		dim:   dim,
		split: split,
		left:  buildNode(rng, left, depth+1, limit),
		right: buildNode(rng, right, depth+1, limit),
	}
}

func splittableDims(rows [][]float64) []int {
	var dims []int
	for d := range rows[0] {
		lo, hi := dimRange(rows, d)
		if hi > lo {
			dims = append(dims, d)
		}
	}
	return dims
}

func dimRange(rows [][]float64, dim int) (float64, float64) {
	lo, hi := rows[0][dim], rows[0][dim]
	for _, row := range rows[1:] {
		if row[dim] < lo {
			lo = row[dim]
		}
		if row[dim] > hi {
			hi = row[dim]
		}
	}
	return lo, hi
}

// scoreSample returns the negated anomaly score in (-1, 0). Values near
// -1 are highly anomalous, values near -0.5 and above are ordinary.
func (f *forest) scoreSample(x []float64) float64 {
	total := 0.0
	for _, root := range f.trees {
		total += pathLength(root, x, 0)
	}
	avg := total / float64(len(f.trees))
	return -math.Pow(2, -avg/avgPathLength(f.psi))
}

func pathLength(n *node, x []float64, depth float64) float64 {
	if n.left == nil {
		return depth + avgPathLength(n.size)
	}
	if x[n.dim] < n.split {
		return pathLength(n.left, x, depth+1)
	}
	return pathLength(n.right, x, depth+1)
}

// avgPathLength is c(n), the expected path length of an unsuccessful
// BST search over n points.
func avgPathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		fn := float64(n)
		return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
	}
}

const eulerGamma = 0.5772156649015329
