// Package estimation turns the store's parametric points into a solver
// problem over the camera pose and, optionally, its intrinsics.
package estimation

import (
	"fmt"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/static-calibration/internal/calibration/camera"
	"github.com/banshee-data/static-calibration/internal/calibration/dataset"
	"github.com/banshee-data/static-calibration/internal/calibration/objects"
	"github.com/banshee-data/static-calibration/internal/calibration/residuals"
	"github.com/banshee-data/static-calibration/internal/calibration/solver"
)

// DefaultLossUpperBound is the shared base bound on a residual block's
// squared norm.
const DefaultLossUpperBound = 1000

// correspondenceLossScale widens the base bound for reprojection residuals.
const correspondenceLossScale = 10

// Base carries the settings shared by every pose estimator.
type Base struct {
	Intrinsics     camera.Intrinsics
	lossUpperBound float64
}

// NewBase returns a Base; a non-positive bound selects
// DefaultLossUpperBound.
func NewBase(in camera.Intrinsics, lossUpperBound float64) Base {
	if lossUpperBound <= 0 {
		lossUpperBound = DefaultLossUpperBound
	}
	return Base{Intrinsics: in, lossUpperBound: lossUpperBound}
}

// CorrespondenceLossUpperBound is the generic clipping bound.
func (b Base) CorrespondenceLossUpperBound() float64 { return b.lossUpperBound }

// Estimator registers correspondences with a solver problem. It owns the
// camera parameter blocks; each registered point adds a lambda block and a
// weight block.
type Estimator struct {
	Base

	ds            *dataset.DataSet
	problem       *solver.Problem
	weightPenalty float64

	translation *solver.ParameterBlock
	rotation    *solver.ParameterBlock
	intrinsics  *solver.ParameterBlock

	registered []registration
}

type registration struct {
	point  objects.ParametricPoint
	lambda *solver.ParameterBlock
	weight *solver.ParameterBlock
}

// NewEstimator adds the camera blocks for the initial pose to problem. The
// intrinsics block is held constant unless optimizeIntrinsics is set. A
// positive weightPenalty lets the solver lower per-point weights at a cost;
// zero keeps every weight at its initial value.
func NewEstimator(problem *solver.Problem, ds *dataset.DataSet, base Base, initial camera.Extrinsics, optimizeIntrinsics bool, weightPenalty float64) *Estimator {
	e := &Estimator{
		Base:          base,
		ds:            ds,
		problem:       problem,
		weightPenalty: weightPenalty,
	}
	e.translation = problem.AddParameterBlock("translation", vecParams(initial.Translation))
	e.rotation = problem.AddParameterBlock("rotation", vecParams(initial.Rotation))
	e.intrinsics = problem.AddParameterBlock("intrinsics", base.Intrinsics.Params())
	e.intrinsics.SetConstant(!optimizeIntrinsics)
	return e
}

// CorrespondenceLossUpperBound scales the base bound by ten: reprojection
// residuals are measured in pixels and tolerate larger outliers than the
// generic terms.
func (e *Estimator) CorrespondenceLossUpperBound() float64 {
	return correspondenceLossScale * e.Base.CorrespondenceLossUpperBound()
}

// AddCorrespondence appends a weight to the store's sequence, binds it to
// point and registers the point's reprojection residual with the clipped
// correspondence loss. Free lambdas also get an interval residual and free
// weights a penalty residual. It returns the point with WeightIndex set.
func (e *Estimator) AddCorrespondence(point objects.ParametricPoint) (objects.ParametricPoint, error) {
	idx := e.ds.AppendWeight(1)
	point.WeightIndex = idx

	weight := e.problem.AddParameterBlock(fmt.Sprintf("weight/%d", idx), []float64{e.ds.Weight(idx)})
	weight.SetConstant(e.weightPenalty <= 0)
	lambda := e.problem.AddParameterBlock(fmt.Sprintf("lambda/%d", idx), []float64{point.Lambda})
	lambda.SetConstant(point.Fixed)

	base := e.Intrinsics
	_, err := e.problem.AddResidualBlock(2, solver.ClippedLoss{Bound: e.CorrespondenceLossUpperBound()},
		func(params [][]float64, out []float64) {
			ext := camera.Extrinsics{Translation: paramsVec(params[0]), Rotation: paramsVec(params[1])}
			in := camera.IntrinsicsFromParams(base, params[2])
			r := residuals.Correspondence(ext, in, point, params[3][0], params[4][0])
			out[0], out[1] = r.X, r.Y
		},
		e.translation, e.rotation, e.intrinsics, lambda, weight)
	if err != nil {
		return point, fmt.Errorf("correspondence %s/%s: %w", point.WorldID, point.ImageID, err)
	}

	if !point.Fixed {
		lo, hi := point.LambdaMin, point.LambdaMax
		if _, err := e.problem.AddResidualBlock(1, nil, func(params [][]float64, out []float64) {
			out[0] = residuals.DistanceFromInterval(params[0][0], lo, hi)
		}, lambda); err != nil {
			return point, fmt.Errorf("lambda bounds %s/%s: %w", point.WorldID, point.ImageID, err)
		}
	}
	if e.weightPenalty > 0 {
		penalty := e.weightPenalty
		if _, err := e.problem.AddResidualBlock(1, nil, func(params [][]float64, out []float64) {
			out[0] = residuals.Weight(params[0][0], penalty)
		}, weight); err != nil {
			return point, fmt.Errorf("weight %d: %w", idx, err)
		}
	}

	e.registered = append(e.registered, registration{point: point, lambda: lambda, weight: weight})
	return point, nil
}

// Extrinsics returns the camera pose held in the problem's blocks.
func (e *Estimator) Extrinsics() camera.Extrinsics {
	return camera.Extrinsics{
		Translation: paramsVec(e.translation.Values()),
		Rotation:    paramsVec(e.rotation.Values()),
	}
}

// CurrentIntrinsics returns the intrinsics held in the problem's blocks.
func (e *Estimator) CurrentIntrinsics() camera.Intrinsics {
	return camera.IntrinsicsFromParams(e.Intrinsics, e.intrinsics.Values())
}

// Points returns the registered points with their current lambdas.
func (e *Estimator) Points() []objects.ParametricPoint {
	out := make([]objects.ParametricPoint, len(e.registered))
	for i, r := range e.registered {
		p := r.point
		p.Lambda = r.lambda.Value(0)
		out[i] = p
	}
	return out
}

// StoreWeights copies the solved weights into the store's sequence.
func (e *Estimator) StoreWeights() {
	for _, r := range e.registered {
		e.ds.SetWeight(r.point.WeightIndex, r.weight.Value(0))
	}
}

func vecParams(v r3.Vector) []float64 { return []float64{v.X, v.Y, v.Z} }

func paramsVec(p []float64) r3.Vector { return r3.Vector{X: p[0], Y: p[1], Z: p[2]} }
