package solver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"

	"github.com/banshee-data/static-calibration/internal/monitoring"
)

// Method selects the minimisation algorithm.
type Method int

const (
	// LBFGS uses limited-memory BFGS with central-difference gradients.
	LBFGS Method = iota
	// NelderMead uses the derivative-free simplex method.
	NelderMead
)

func (m Method) String() string {
	switch m {
	case LBFGS:
		return "lbfgs"
	case NelderMead:
		return "nelder-mead"
	}
	return fmt.Sprintf("method(%d)", int(m))
}

// ParseMethod resolves a method name as printed by Method.String.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "", "lbfgs":
		return LBFGS, nil
	case "nelder-mead":
		return NelderMead, nil
	}
	return 0, fmt.Errorf("unknown solver method %q", s)
}

// Settings bounds a solve. Zero values leave gonum's defaults in place.
type Settings struct {
	Method          Method
	MaxIterations   int
	FuncEvaluations int
	// FunctionTolerance stops the solve once the cost improves by less than
	// this, absolutely or relative to its magnitude, over ten iterations.
	FunctionTolerance float64
	// GradientStep is the finite-difference step. Zero uses gonum's default.
	GradientStep float64
}

// Summary reports how a solve went.
type Summary struct {
	Method          string        `json:"method"`
	InitialCost     float64       `json:"initial_cost"`
	FinalCost       float64       `json:"final_cost"`
	Iterations      int           `json:"iterations"`
	FuncEvaluations int           `json:"func_evaluations"`
	Status          string        `json:"status"`
	Converged       bool          `json:"converged"`
	Runtime         time.Duration `json:"runtime_ns"`
	// CostHistory holds the cost after each major iteration.
	CostHistory []float64 `json:"cost_history"`
}

// ErrNoFreeParameters is returned when every parameter block is constant.
var ErrNoFreeParameters = errors.New("problem has no free parameters")

// Solve minimises the problem and writes the best parameters found back
// into its blocks. Reaching an iteration or evaluation limit is not an
// error; Summary.Converged tells the two apart. Cancelling ctx stops the
// solve at the next iteration and returns ctx.Err() with the blocks left at
// their initial values.
func Solve(ctx context.Context, p *Problem, s Settings) (Summary, error) {
	summary := Summary{Method: s.Method.String(), InitialCost: p.Cost()}

	var free []*ParameterBlock
	var x0 []float64
	for _, b := range p.blocks {
		if b.constant {
			continue
		}
		b.offset = len(x0)
		x0 = append(x0, b.values...)
		free = append(free, b)
	}
	if len(x0) == 0 {
		summary.FinalCost = summary.InitialCost
		return summary, ErrNoFreeParameters
	}

	view := func(x []float64) func(*ParameterBlock) []float64 {
		return func(b *ParameterBlock) []float64 {
			if b.constant {
				return b.values
			}
			return x[b.offset : b.offset+len(b.values)]
		}
	}
	f := func(x []float64) float64 { return p.cost(view(x)) }

	problem := optimize.Problem{
		Func: f,
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}
	var method optimize.Method
	switch s.Method {
	case NelderMead:
		method = &optimize.NelderMead{}
	default:
		gs := &fd.Settings{Formula: fd.Central, Step: s.GradientStep}
		problem.Grad = func(grad, x []float64) {
			fd.Gradient(grad, f, x, gs)
		}
		method = &optimize.LBFGS{}
	}

	rec := &costRecorder{}
	settings := &optimize.Settings{
		MajorIterations: s.MaxIterations,
		FuncEvaluations: s.FuncEvaluations,
		Recorder:        rec,
	}
	if s.FunctionTolerance > 0 {
		settings.Converger = &optimize.FunctionConverge{
			Absolute:   s.FunctionTolerance,
			Relative:   s.FunctionTolerance,
			Iterations: 10,
		}
	}

	monitoring.Diagf("solver: %s over %d parameters, %d residual blocks, initial cost %.6g",
		summary.Method, len(x0), len(p.residuals), summary.InitialCost)

	result, err := optimize.Minimize(problem, x0, settings, method)
	summary.CostHistory = rec.costs
	if ctxErr := ctx.Err(); ctxErr != nil {
		summary.FinalCost = summary.InitialCost
		summary.Status = "cancelled"
		return summary, ctxErr
	}
	if err != nil {
		// Line searches can fail on the flat parts of clipped losses; the
		// best location found so far is still usable if it improved.
		if result == nil || !(result.F <= summary.InitialCost) {
			summary.FinalCost = summary.InitialCost
			summary.Status = "failed"
			return summary, fmt.Errorf("minimize: %w", err)
		}
		monitoring.Opsf("solver: keeping best location after %v", err)
	}

	for _, b := range free {
		copy(b.values, result.X[b.offset:b.offset+len(b.values)])
	}
	summary.FinalCost = result.F
	summary.Iterations = result.Stats.MajorIterations
	summary.FuncEvaluations = result.Stats.FuncEvaluations
	summary.Runtime = result.Stats.Runtime
	summary.Status = result.Status.String()
	summary.Converged = result.Status.Err() == nil

	monitoring.Diagf("solver: %s after %d iterations, cost %.6g -> %.6g",
		summary.Status, summary.Iterations, summary.InitialCost, summary.FinalCost)
	return summary, nil
}

// costRecorder keeps the cost at every major iteration.
type costRecorder struct {
	costs []float64
}

func (r *costRecorder) Init() error {
	r.costs = r.costs[:0]
	return nil
}

func (r *costRecorder) Record(loc *optimize.Location, op optimize.Operation, _ *optimize.Stats) error {
	if op&optimize.MajorIteration != 0 {
		r.costs = append(r.costs, loc.F)
		monitoring.Tracef("solver: iteration %d cost %.6g", len(r.costs), loc.F)
	}
	return nil
}
