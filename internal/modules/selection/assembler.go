package selection

import (
	"math"
	"time"

	"github.com/aristath/quanport/internal/modules/statistics"
	"github.com/aristath/quanport/internal/utils"
)

// Result method names
const (
	MethodClassical   = "classical"
	MethodApproximate = "approximate"
)

// Result is one solver's answer in the response payload
type Result struct {
	Method                  string             `json:"method"`
	Pattern                 string             `json:"pattern"`
	SelectedIndices         []int              `json:"selectedIndices"`
	SelectedSymbols         []string           `json:"selectedSymbols"`
	SelectedNames           []string           `json:"selectedNames"`
	Weights                 []float64          `json:"weights"`
	ExpectedReturn          float64            `json:"expectedReturn"`
	Risk                    float64            `json:"risk"`
	Volatility              float64            `json:"volatility"`
	ObjectiveValue          float64            `json:"objectiveValue"`
	ComputationTimeMs       float64            `json:"computationTimeMs"`
	ProbabilityDistribution map[string]float64 `json:"probabilityDistribution"`
	ConvergenceHistory      []float64          `json:"convergenceHistory"`
	RunnersUp               []Candidate        `json:"runnersUp,omitempty"`
	Evaluated               int64              `json:"evaluated,omitempty"`
	Iterations              int                `json:"iterations,omitempty"`
	Converged               bool               `json:"converged"`
	FallbackReason          string             `json:"fallbackReason,omitempty"`
}

// OptimizeResponse compares the classical and (optionally) approximate answers
type OptimizeResponse struct {
	RunID        string   `json:"runId"`
	Symbols      []string `json:"symbols"`
	AssetNames   []string `json:"assetNames"`
	Budget       int      `json:"budget"`
	RiskFactor   float64  `json:"riskFactor"`
	Classical    Result   `json:"classical"`
	Approximate  *Result  `json:"approximate,omitempty"`
	ObjectiveGap *float64 `json:"objectiveGap,omitempty"`
}

// AssembleInput carries the solver outputs and their own wall-clock durations
type AssembleInput struct {
	RunID           string
	Stats           *statistics.AssetStatistics
	Budget          int
	RiskFactor      float64
	Exact           *ExactResult
	ExactTime       time.Duration
	Approximate     *SamplerResult // nil when not requested
	ApproximateTime time.Duration
}

// Assemble builds the response payload. The gap (approx − exact)/|exact| is only
// reported when both results exist and the exact objective is non-zero.
func Assemble(in AssembleInput) *OptimizeResponse {
	classical := newResult(MethodClassical, in.Stats, in.Exact.Best, in.ExactTime)
	classical.ProbabilityDistribution = map[string]float64{in.Exact.Best.Key: 1}
	classical.ConvergenceHistory = []float64{}
	classical.RunnersUp = in.Exact.RunnersUp
	classical.Evaluated = in.Exact.Evaluated
	classical.Converged = true

	resp := &OptimizeResponse{
		RunID:      in.RunID,
		Symbols:    in.Stats.Symbols,
		AssetNames: in.Stats.Names,
		Budget:     in.Budget,
		RiskFactor: in.RiskFactor,
		Classical:  classical,
	}

	if in.Approximate != nil {
		approx := newResult(MethodApproximate, in.Stats, in.Approximate.Selection, in.ApproximateTime)
		approx.ProbabilityDistribution = in.Approximate.Distribution
		approx.ConvergenceHistory = in.Approximate.History
		approx.Iterations = in.Approximate.Iterations
		approx.Converged = in.Approximate.Converged
		approx.FallbackReason = in.Approximate.FallbackReason
		if approx.ConvergenceHistory == nil {
			approx.ConvergenceHistory = []float64{}
		}
		resp.Approximate = &approx

		if gap, ok := ObjectiveGap(in.Exact.Best.Objective, in.Approximate.Selection.Objective); ok {
			resp.ObjectiveGap = &gap
		}
	}

	return resp
}

// ObjectiveGap returns (approx − exact)/|exact|. It is undefined when exact is
// zero or either value is not finite. Differences inside the exact solver's tie
// tolerance count as zero.
func ObjectiveGap(exact, approx float64) (float64, bool) {
	if exact == 0 || math.IsNaN(exact) || math.IsNaN(approx) || math.IsInf(exact, 0) || math.IsInf(approx, 0) {
		return 0, false
	}
	diff := approx - exact
	if diff < 0 && diff >= -tieEpsilon {
		diff = 0
	}
	return diff / math.Abs(exact), true
}

func newResult(method string, stats *statistics.AssetStatistics, c Candidate, elapsed time.Duration) Result {
	symbols := make([]string, len(c.Indices))
	names := make([]string, len(c.Indices))
	weights := make([]float64, len(c.Indices))
	for j, i := range c.Indices {
		symbols[j] = stats.Symbols[i]
		if i < len(stats.Names) {
			names[j] = stats.Names[i]
		}
		weights[j] = 1 / float64(len(c.Indices))
	}

	return Result{
		Method:            method,
		Pattern:           c.Key,
		SelectedIndices:   c.Indices,
		SelectedSymbols:   symbols,
		SelectedNames:     names,
		Weights:           weights,
		ExpectedReturn:    c.ExpectedReturn,
		Risk:              c.Risk,
		Volatility:        c.Volatility,
		ObjectiveValue:    c.Objective,
		ComputationTimeMs: utils.Milliseconds(elapsed),
	}
}
