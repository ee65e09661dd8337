package estimation

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/static-calibration/internal/calibration/camera"
	"github.com/banshee-data/static-calibration/internal/calibration/dataset"
	"github.com/banshee-data/static-calibration/internal/calibration/objects"
	"github.com/banshee-data/static-calibration/internal/calibration/solver"
	"github.com/banshee-data/static-calibration/internal/config"
	"github.com/banshee-data/static-calibration/internal/monitoring"
)

// ErrNoCorrespondences is returned when the merged mapping yields no
// parametric points to fit.
var ErrNoCorrespondences = errors.New("no correspondences to estimate from")

// Options controls a single estimation.
type Options struct {
	OptimizeIntrinsics bool
	// LossUpperBound is the base bound; correspondences use ten times it.
	LossUpperBound float64
	WeightPenalty  float64
	Solver         solver.Settings
}

// Result is a refined camera and the state it was fitted with.
type Result struct {
	Extrinsics camera.Extrinsics `json:"extrinsics"`
	Intrinsics camera.Intrinsics `json:"intrinsics"`
	// Points carry their solved lambdas; Weights[i] belongs to Points[i].
	Points  []objects.ParametricPoint `json:"-"`
	Weights []float64                 `json:"weights"`
	Summary solver.Summary            `json:"summary"`
	// InitialError and Error are DataSet.Evaluate before and after.
	InitialError float64 `json:"initial_error"`
	Error        float64 `json:"error"`
}

// Estimate fits the camera to every pole and road-mark point currently in
// ds, starting from initial and in. The solved weights are written back to
// the store's weight sequence.
func Estimate(ctx context.Context, ds *dataset.DataSet, initial camera.Extrinsics, in camera.Intrinsics, opts Options) (*Result, error) {
	if err := in.CheckValid(); err != nil {
		return nil, err
	}
	points := append(ds.PolePoints(), ds.RoadMarkPoints()...)
	if len(points) == 0 {
		return nil, ErrNoCorrespondences
	}

	problem := solver.NewProblem()
	est := NewEstimator(problem, ds, NewBase(in, opts.LossUpperBound), initial, opts.OptimizeIntrinsics, opts.WeightPenalty)
	for _, p := range points {
		if _, err := est.AddCorrespondence(p); err != nil {
			return nil, err
		}
	}
	monitoring.Diagf("estimate: %d correspondences, loss bound %.0f", len(points), est.CorrespondenceLossUpperBound())

	res := &Result{InitialError: ds.Evaluate(initial, in)}
	summary, err := solver.Solve(ctx, problem, opts.Solver)
	res.Summary = summary
	if err != nil {
		return nil, fmt.Errorf("solve: %w", err)
	}

	res.Extrinsics = est.Extrinsics()
	res.Intrinsics = est.CurrentIntrinsics()
	if err := res.Intrinsics.CheckValid(); err != nil {
		return nil, fmt.Errorf("refined intrinsics: %w", err)
	}
	est.StoreWeights()
	res.Points = est.Points()
	res.Weights = make([]float64, len(res.Points))
	for i, p := range res.Points {
		res.Weights[i] = ds.Weight(p.WeightIndex)
	}
	res.Error = ds.Evaluate(res.Extrinsics, res.Intrinsics)
	monitoring.Opsf("estimate: error %.3f -> %.3f (%s)", res.InitialError, res.Error, summary.Status)
	return res, nil
}

// Calibration is the outcome of a full search-and-estimate pass.
type Calibration struct {
	Candidates int                     `json:"candidates"`
	Scores     []dataset.ScoredMapping `json:"-"`
	Extension  dataset.Mapping         `json:"extension"`
	// UsedFallback is set when enumeration ran out of budget and the
	// extension came from nearest assignment instead.
	UsedFallback bool    `json:"used_fallback"`
	Result       *Result `json:"result"`
}

// Calibrate searches candidate mappings under the initial camera, installs
// the best one as the mapping extension and estimates the camera from the
// merged mapping. When the search exhausts cfg's subset budget it falls back
// to nearest assignment.
func Calibrate(ctx context.Context, ds *dataset.DataSet, initial camera.Extrinsics, in camera.Intrinsics, cfg *config.CalibrationConfig) (*Calibration, error) {
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	search := SearchOptionsFromConfig(cfg)
	out := &Calibration{}

	sets, err := ds.CreateAllMappings(initial, in, search)
	switch {
	case errors.Is(err, dataset.ErrSearchExhausted):
		out.UsedFallback = true
		nearest := ds.AssignNearest(initial, in, search)
		ds.SetMappingExtension(nearest)
		out.Candidates = len(sets)
		out.Scores = []dataset.ScoredMapping{{Mapping: nearest, Error: ds.Evaluate(initial, in)}}
		monitoring.Opsf("calibrate: search exhausted after %d sets, using nearest assignment of %d", len(sets), len(nearest))
	case err != nil:
		return nil, fmt.Errorf("candidate search: %w", err)
	default:
		out.Candidates = len(sets)
		scored, ok := ds.SelectBestMapping(initial, in, sets)
		if !ok {
			return nil, fmt.Errorf("candidate search produced no sets")
		}
		out.Scores = scored
	}
	out.Extension = ds.MappingExtension()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := Estimate(ctx, ds, initial, in, opts)
	if err != nil {
		return nil, err
	}
	out.Result = res
	return out, nil
}

// SearchOptionsFromConfig maps the candidate-search settings.
func SearchOptionsFromConfig(cfg *config.CalibrationConfig) dataset.SearchOptions {
	return dataset.SearchOptions{
		MaxDistance:           cfg.GetMaxDistance(),
		MaxElementsInDistance: cfg.GetMaxElementsInDistance(),
		MaxElementsPerMapping: cfg.GetMaxElementsPerMapping(),
		Sort:                  cfg.GetSort(),
		KeepOnlyLongest:       cfg.GetKeepOnlyLongest(),
		Shuffle:               cfg.GetShuffle(),
		Seed:                  cfg.GetShuffleSeed(),
		MaxDepth:              cfg.GetMaxDepth(),
		MaxSubsets:            cfg.GetMaxSubsets(),
	}
}

// OptionsFromConfig maps the estimation settings.
func OptionsFromConfig(cfg *config.CalibrationConfig) (Options, error) {
	method, err := solver.ParseMethod(cfg.GetSolverMethod())
	if err != nil {
		return Options{}, err
	}
	return Options{
		OptimizeIntrinsics: cfg.GetOptimizeIntrinsics(),
		LossUpperBound:     cfg.GetCorrespondenceLossUpperBound(),
		WeightPenalty:      cfg.GetWeightPenalty(),
		Solver: solver.Settings{
			Method:            method,
			MaxIterations:     cfg.GetSolverMaxIterations(),
			FuncEvaluations:   cfg.GetSolverFunctionEvaluations(),
			FunctionTolerance: cfg.GetSolverFunctionTolerance(),
		},
	}, nil
}

// CameraFromConfig returns the initial pose and intrinsics in cfg.
func CameraFromConfig(cfg *config.CalibrationConfig) (camera.Extrinsics, camera.Intrinsics) {
	t, r := cfg.GetInitialTranslation(), cfg.GetInitialRotation()
	ext := camera.Extrinsics{
		Translation: r3.Vector{X: t[0], Y: t[1], Z: t[2]},
		Rotation:    r3.Vector{X: r[0], Y: r[1], Z: r[2]},
	}
	in := camera.Intrinsics{
		Fx:     cfg.GetFx(),
		Fy:     cfg.GetFy(),
		Ppx:    cfg.GetPpx(),
		Ppy:    cfg.GetPpy(),
		K1:     cfg.GetK1(),
		K2:     cfg.GetK2(),
		Width:  cfg.GetImageWidth(),
		Height: cfg.GetImageHeight(),
	}
	return ext, in
}
