package selection

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"math/rand/v2"
	"sort"

	"github.com/rs/zerolog"
)

const (
	minProbability = 1e-3
	maxProbability = 1 - 1e-3

	// pcgStream derives the second PCG word from the seed
	pcgStream = 0x5851f42d4c957f2d
)

// SamplerConfig tunes the cross-entropy sampler
type SamplerConfig struct {
	Iterations    int     // iteration budget
	Patience      int     // stop after this many rounds without improvement
	BatchSize     int     // patterns drawn per iteration
	Shots         int     // samples in the final read-out distribution
	EliteFraction float64 // share of each batch used to update probabilities
	Smoothing     float64 // weight of the elite frequencies in the update
	Seed          uint64
}

// DefaultSamplerConfig returns the default sampler settings
func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{
		Iterations:    100,
		Patience:      20,
		BatchSize:     64,
		Shots:         1024,
		EliteFraction: 0.2,
		Smoothing:     0.7,
		Seed:          42,
	}
}

func (c SamplerConfig) withDefaults() SamplerConfig {
	d := DefaultSamplerConfig()
	if c.Iterations <= 0 {
		c.Iterations = d.Iterations
	}
	if c.Patience <= 0 {
		c.Patience = d.Patience
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.Shots <= 0 {
		c.Shots = d.Shots
	}
	if c.EliteFraction <= 0 || c.EliteFraction > 1 {
		c.EliteFraction = d.EliteFraction
	}
	if c.Smoothing <= 0 || c.Smoothing > 1 {
		c.Smoothing = d.Smoothing
	}
	return c
}

// IterationUpdate is reported to the progress callback after every iteration
type IterationUpdate struct {
	Iteration     int       `json:"iteration"`
	BestObjective float64   `json:"bestObjective"`
	BatchBest     float64   `json:"batchBest"`
	BestPattern   string    `json:"bestPattern"`
	Probabilities []float64 `json:"probabilities"`
}

// SamplerResult is the outcome of the approximate solver
type SamplerResult struct {
	Selection      Candidate
	Best           Candidate // best pattern ever sampled
	Distribution   map[string]float64
	History        []float64 // best-so-far objective per iteration, non-increasing
	Iterations     int
	EarlyStopped   bool
	Converged      bool
	FallbackReason string
}

// Sampler is a cross-entropy search over per-asset inclusion probabilities.
// Each iteration draws a batch of size-k patterns, keeps the elite share and
// moves the probabilities towards the elite inclusion frequencies.
type Sampler struct {
	cfg SamplerConfig
	log zerolog.Logger
}

// NewSampler creates a sampler
func NewSampler(cfg SamplerConfig, log zerolog.Logger) *Sampler {
	return &Sampler{
		cfg: cfg.withDefaults(),
		log: log.With().Str("component", "sampler").Logger(),
	}
}

// Config returns the effective configuration
func (s *Sampler) Config() SamplerConfig {
	return s.cfg
}

// errDiverged marks a numerical breakdown that triggers the uniform fallback
type errDiverged struct{ reason string }

func (e errDiverged) Error() string { return "sampler diverged: " + e.reason }

// Solve runs the search. Only context errors are returned, together with the
// partial result gathered so far; numerical divergence or a panic yields the
// uniform fallback with Converged=false. progress may be nil.
func (s *Sampler) Solve(ctx context.Context, enc *Encoder, progress func(IterationUpdate)) (res *SamplerResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("Sampler panicked, falling back to uniform distribution")
			res, err = s.Fallback(enc, fmt.Sprintf("panic: %v", r)), nil
		}
	}()

	rng := rand.New(rand.NewPCG(s.cfg.Seed, s.cfg.Seed^pcgStream))

	result, err := s.search(ctx, enc, rng, progress)
	if err == nil {
		return result, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, ctxErr
	}

	reason := err.Error()
	var diverged errDiverged
	if errors.As(err, &diverged) {
		reason = diverged.reason
	}
	s.log.Warn().Str("reason", reason).Msg("Sampler diverged, falling back to uniform distribution")

	fallback := s.Fallback(enc, reason)
	if result != nil {
		fallback.History = result.History
		fallback.Iterations = result.Iterations
	}
	return fallback, nil
}

func (s *Sampler) search(ctx context.Context, enc *Encoder, rng *rand.Rand, progress func(IterationUpdate)) (*SamplerResult, error) {
	n, k := enc.Size(), enc.Budget()

	probs := make([]float64, n)
	for i := range probs {
		probs[i] = float64(k) / float64(n)
	}

	eliteCount := int(math.Ceil(s.cfg.EliteFraction * float64(s.cfg.BatchSize)))
	if eliteCount < 1 {
		eliteCount = 1
	}

	result := &SamplerResult{History: make([]float64, 0, s.cfg.Iterations)}
	var best Candidate
	haveBest := false
	stall := 0

	batch := make([]Pattern, s.cfg.BatchSize)
	objectives := make([]float64, s.cfg.BatchSize)
	order := make([]int, s.cfg.BatchSize)

	for iter := 1; iter <= s.cfg.Iterations; iter++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		for b := range batch {
			p, err := drawPattern(rng, probs, k)
			if err != nil {
				return result, err
			}
			batch[b] = p
			objectives[b] = enc.Objective(p)
			if math.IsNaN(objectives[b]) || math.IsInf(objectives[b], 0) {
				return result, errDiverged{reason: fmt.Sprintf("non-finite objective for pattern %s", p.Key(n))}
			}
			order[b] = b
		}

		sort.Slice(order, func(a, b int) bool {
			oa, ob := objectives[order[a]], objectives[order[b]]
			if oa != ob {
				return oa < ob
			}
			return batch[order[a]].LexLess(batch[order[b]])
		})

		top := batch[order[0]]
		topObj := objectives[order[0]]
		switch {
		case !haveBest || topObj < best.Objective:
			best = enc.Evaluate(top)
			haveBest = true
			stall = 0
		case topObj == best.Objective && top.LexLess(best.Pattern):
			// A tie is accepted but does not count as progress
			best = enc.Evaluate(top)
			stall++
		default:
			stall++
		}
		result.History = append(result.History, best.Objective)
		result.Iterations = iter

		// Elite inclusion frequencies
		freq := make([]float64, n)
		for _, b := range order[:eliteCount] {
			for v := uint32(batch[b]); v != 0; v &= v - 1 {
				freq[bits.TrailingZeros32(v)]++
			}
		}
		alpha := s.cfg.Smoothing
		for i := range probs {
			next := alpha*freq[i]/float64(eliteCount) + (1-alpha)*probs[i]
			if math.IsNaN(next) || math.IsInf(next, 0) {
				return result, errDiverged{reason: fmt.Sprintf("non-finite probability for asset %d", i)}
			}
			probs[i] = math.Min(maxProbability, math.Max(minProbability, next))
		}

		if progress != nil {
			snapshot := make([]float64, n)
			copy(snapshot, probs)
			progress(IterationUpdate{
				Iteration:     iter,
				BestObjective: best.Objective,
				BatchBest:     topObj,
				BestPattern:   best.Key,
				Probabilities: snapshot,
			})
		}

		if stall >= s.cfg.Patience {
			result.EarlyStopped = true
			break
		}
	}

	// Read-out: sample the final parameters and normalize the counts
	counts := make(map[Pattern]int)
	for shot := 0; shot < s.cfg.Shots; shot++ {
		p, err := drawPattern(rng, probs, k)
		if err != nil {
			return result, err
		}
		counts[p]++
	}

	result.Distribution = make(map[string]float64, len(counts))
	var (
		mode      Pattern
		modeCount int
		modeObj   float64
	)
	for p, c := range counts {
		result.Distribution[p.Key(n)] = float64(c) / float64(s.cfg.Shots)

		obj := enc.Objective(p)
		if c > modeCount || (c == modeCount && (obj < modeObj || (obj == modeObj && p.LexLess(mode)))) {
			mode, modeCount, modeObj = p, c, obj
		}
	}

	result.Selection = enc.Evaluate(mode)
	result.Best = best
	result.Converged = true

	s.log.Debug().
		Int("iterations", result.Iterations).
		Bool("early_stopped", result.EarlyStopped).
		Str("selection", result.Selection.Key).
		Float64("selection_probability", result.Distribution[result.Selection.Key]).
		Float64("best_objective", best.Objective).
		Msg("Sampler finished")
	return result, nil
}

// Fallback returns a uniform distribution over the distinct patterns of one
// uniformly drawn batch. The selection is the best finite-objective pattern among them.
func (s *Sampler) Fallback(enc *Encoder, reason string) *SamplerResult {
	n, k := enc.Size(), enc.Budget()
	rng := rand.New(rand.NewPCG(s.cfg.Seed, s.cfg.Seed^pcgStream))

	uniform := make([]float64, n)
	for i := range uniform {
		uniform[i] = 1
	}

	distinct := make(map[Pattern]struct{})
	for b := 0; b < s.cfg.BatchSize; b++ {
		p, err := drawPattern(rng, uniform, k)
		if err != nil {
			continue
		}
		distinct[p] = struct{}{}
	}
	if len(distinct) == 0 {
		distinct[Combinations(n, k)[0]] = struct{}{}
	}

	patterns := make([]Pattern, 0, len(distinct))
	for p := range distinct {
		patterns = append(patterns, p)
	}
	sort.Slice(patterns, func(a, b int) bool { return patterns[a].LexLess(patterns[b]) })

	result := &SamplerResult{
		Distribution:   make(map[string]float64, len(patterns)),
		History:        []float64{},
		Converged:      false,
		FallbackReason: reason,
	}

	weight := 1 / float64(len(patterns))
	selection := patterns[0]
	selectionObj := math.Inf(1)
	for _, p := range patterns {
		result.Distribution[p.Key(n)] = weight
		obj := enc.Objective(p)
		if !math.IsNaN(obj) && !math.IsInf(obj, 0) && obj < selectionObj {
			selection, selectionObj = p, obj
		}
	}
	result.Selection = enc.Evaluate(selection)
	result.Best = result.Selection
	return result
}

// drawPattern samples k distinct assets without replacement, each draw
// proportional to the remaining weights.
func drawPattern(rng *rand.Rand, weights []float64, k int) (Pattern, error) {
	var p Pattern
	for picked := 0; picked < k; picked++ {
		total := 0.0
		for i, w := range weights {
			if !p.Has(i) {
				total += w
			}
		}
		if math.IsNaN(total) || math.IsInf(total, 0) || total <= 0 {
			return 0, errDiverged{reason: fmt.Sprintf("invalid weight total %v", total)}
		}

		u := rng.Float64() * total
		chosen := -1
		for i, w := range weights {
			if p.Has(i) {
				continue
			}
			chosen = i
			u -= w
			if u < 0 {
				break
			}
		}
		p |= 1 << uint(chosen)
	}
	return p, nil
}
