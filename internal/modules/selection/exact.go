package selection

import (
	"context"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/quanport/internal/domain"
)

const (
	// DefaultMaxCombinations is the enumeration ceiling above which requests are refused
	DefaultMaxCombinations int64 = 1_000_000

	// DefaultRunnersUp is how many next-best candidates are reported
	DefaultRunnersUp = 5

	// tieEpsilon treats objectives this close to the minimum as tied
	tieEpsilon = 1e-12

	// cancelCheckInterval is how many subsets a worker scores between context checks
	cancelCheckInterval = 4096
)

// Scored is a pattern with its objective, used for the full ranking
type Scored struct {
	Pattern   Pattern `json:"-"`
	Objective float64 `json:"objectiveValue"`
}

// ExactResult is the outcome of exhaustive enumeration
type ExactResult struct {
	Best      Candidate
	Ranked    []Scored // objective ascending, ties in lexicographic order, Best first
	RunnersUp []Candidate
	Evaluated int64
}

// Binomial returns C(n, k) and false if it overflows int64
func Binomial(n, k int) (int64, bool) {
	if k < 0 || k > n {
		return 0, true
	}
	if k > n-k {
		k = n - k
	}
	result := int64(1)
	for i := 1; i <= k; i++ {
		// result * (n-k+i) / i stays integral at every step
		factor := int64(n - k + i)
		if result > math.MaxInt64/factor {
			return -1, false
		}
		result = result * factor / int64(i)
	}
	return result, true
}

// CheckCombinations returns a CombinatorialLimitError when C(n, k) exceeds limit
func CheckCombinations(n, k int, limit int64) error {
	count, ok := Binomial(n, k)
	if !ok || count > limit {
		return &domain.CombinatorialLimitError{Assets: n, Budget: k, Combinations: count, Limit: limit}
	}
	return nil
}

// Combinations returns every size-k pattern over n assets in lexicographic order of index tuples
func Combinations(n, k int) []Pattern {
	count, ok := Binomial(n, k)
	if !ok || k < 1 || k > n {
		return nil
	}

	out := make([]Pattern, 0, count)
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		out = append(out, PatternOf(idx...))

		// Advance the rightmost index that still has room
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return out
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}

// ExactSolver enumerates all C(n, k) subsets and returns the global optimum
type ExactSolver struct {
	maxCombinations int64
	runnersUp       int
	workers         int
	log             zerolog.Logger
}

// NewExactSolver creates an exact solver. workers bounds parallel scoring.
func NewExactSolver(maxCombinations int64, runnersUp, workers int, log zerolog.Logger) *ExactSolver {
	if maxCombinations <= 0 {
		maxCombinations = DefaultMaxCombinations
	}
	if runnersUp < 0 {
		runnersUp = DefaultRunnersUp
	}
	if workers < 1 {
		workers = 1
	}
	return &ExactSolver{
		maxCombinations: maxCombinations,
		runnersUp:       runnersUp,
		workers:         workers,
		log:             log.With().Str("component", "exact_solver").Logger(),
	}
}

// MaxCombinations returns the enumeration ceiling
func (s *ExactSolver) MaxCombinations() int64 {
	return s.maxCombinations
}

// Solve scores every subset and picks the minimum objective. Among subsets
// within tieEpsilon of the minimum the lexicographically smallest index tuple wins.
// Scoring runs in parallel chunks; every score lands in a fixed slot, so the
// result does not depend on scheduling.
func (s *ExactSolver) Solve(ctx context.Context, enc *Encoder) (*ExactResult, error) {
	n, k := enc.Size(), enc.Budget()
	if err := CheckCombinations(n, k, s.maxCombinations); err != nil {
		return nil, err
	}

	patterns := Combinations(n, k)
	objectives := make([]float64, len(patterns))

	workers := s.workers
	if workers > len(patterns) {
		workers = len(patterns)
	}
	chunk := (len(patterns) + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(patterns); start += chunk {
		start, end := start, start+chunk
		if end > len(patterns) {
			end = len(patterns)
		}
		g.Go(func() error {
			for i := start; i < end; i++ {
				if (i-start)%cancelCheckInterval == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				objectives[i] = enc.Objective(patterns[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	minimum := math.Inf(1)
	for _, obj := range objectives {
		if obj < minimum {
			minimum = obj
		}
	}
	best := 0
	for i, obj := range objectives {
		if obj <= minimum+tieEpsilon {
			best = i
			break
		}
	}

	// patterns are already lexicographic, so a stable sort keeps ties in that order
	order := make([]int, len(patterns))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return objectives[order[a]] < objectives[order[b]]
	})

	ranked := make([]Scored, 0, len(order))
	ranked = append(ranked, Scored{Pattern: patterns[best], Objective: objectives[best]})
	for _, i := range order {
		if i != best {
			ranked = append(ranked, Scored{Pattern: patterns[i], Objective: objectives[i]})
		}
	}

	runnersUp := make([]Candidate, 0, s.runnersUp)
	for _, r := range ranked[1:] {
		if len(runnersUp) == s.runnersUp {
			break
		}
		runnersUp = append(runnersUp, enc.Evaluate(r.Pattern))
	}

	result := &ExactResult{
		Best:      enc.Evaluate(patterns[best]),
		Ranked:    ranked,
		RunnersUp: runnersUp,
		Evaluated: int64(len(patterns)),
	}

	s.log.Debug().
		Int("assets", n).
		Int("budget", k).
		Int64("evaluated", result.Evaluated).
		Str("best", result.Best.Key).
		Float64("objective", result.Best.Objective).
		Msg("Exact solve complete")
	return result, nil
}
