// Package residuals defines the residual terms minimised during pose
// estimation. Every function is pure: it reads parameter values and returns
// the residual vector.
package residuals

import (
	"math"

	"github.com/golang/geo/r2"

	"github.com/banshee-data/static-calibration/internal/calibration/camera"
	"github.com/banshee-data/static-calibration/internal/calibration/objects"
)

// Correspondence is the weighted reprojection residual of one parametric
// point: weight * (expected - projected), where the projected pixel is the
// render of the point's line at lambda. Points behind the camera yield
// (BehindCameraPenalty, BehindCameraPenalty) scaled by weight.
func Correspondence(ext camera.Extrinsics, in camera.Intrinsics, p objects.ParametricPoint, lambda, weight float64) r2.Point {
	px, behind := camera.Render(ext, in, p.PositionAt(lambda))
	if behind {
		return r2.Point{X: camera.BehindCameraPenalty, Y: camera.BehindCameraPenalty}.Mul(weight)
	}
	return p.ExpectedPixel.Sub(px).Mul(weight)
}

// Distance is the signed residual between a value and its target.
func Distance(value, expected float64) float64 {
	return value - expected
}

// DistanceFromInterval is zero inside [lo, hi] and the distance to the
// nearest bound outside it.
func DistanceFromInterval(value, lo, hi float64) float64 {
	switch {
	case value < lo:
		return lo - value
	case value > hi:
		return value - hi
	}
	return 0
}

// Weight penalises a correspondence weight for drifting below one, so the
// solver cannot switch every correspondence off.
func Weight(w, penalty float64) float64 {
	return penalty * (1 - w)
}

// SquaredNorm returns the squared Euclidean norm of a residual vector.
func SquaredNorm(r []float64) float64 {
	s := 0.0
	for _, v := range r {
		s += v * v
	}
	return s
}

// IsFinite reports whether every component is a finite number.
func IsFinite(r []float64) bool {
	for _, v := range r {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
