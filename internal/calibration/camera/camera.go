// Package camera implements the projection model: a rigid world-to-camera
// transform followed by a pinhole projection with optional radial
// distortion.
//
// Coordinate conventions: the camera frame has x to the right, y up and
// looks along -z, so the depth of a camera-space point is -z. Pixels use a
// bottom-left origin (y grows upwards). Rotations are Euler angles in
// degrees applied as Rz*Ry*Rx and map camera axes to world axes.
package camera

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// DefaultMaxDepth is the far limit used when pre-filtering world points by
// camera-space depth.
const DefaultMaxDepth = 1000.0

// BehindCameraPenalty stands in for a pixel distance when a point projects
// from behind the camera, keeping scores and residuals defined everywhere.
const BehindCameraPenalty = 1e5

// IntrinsicsParamCount is the size of the intrinsics parameter block:
// fx, fy, ppx, ppy, k1, k2.
const IntrinsicsParamCount = 6

// ErrInvalidIntrinsics is returned by Intrinsics.CheckValid.
var ErrInvalidIntrinsics = errors.New("invalid camera intrinsics")

// Extrinsics is the camera pose relative to the world frame. Translation is
// the camera centre in world coordinates.
type Extrinsics struct {
	Translation r3.Vector `json:"translation"`
	Rotation    r3.Vector `json:"rotation_deg"`
}

// Intrinsics holds the pinhole parameters and the two radial distortion
// coefficients.
type Intrinsics struct {
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
	K1     float64 `json:"k1,omitempty"`
	K2     float64 `json:"k2,omitempty"`
	Width  int     `json:"width_px,omitempty"`
	Height int     `json:"height_px,omitempty"`
}

// CheckValid reports whether the focal lengths and principal point are usable.
func (in Intrinsics) CheckValid() error {
	if in.Fx <= 0 || in.Fy <= 0 {
		return fmt.Errorf("%w: focal length (%g, %g)", ErrInvalidIntrinsics, in.Fx, in.Fy)
	}
	if in.Ppx < 0 || in.Ppy < 0 {
		return fmt.Errorf("%w: principal point (%g, %g)", ErrInvalidIntrinsics, in.Ppx, in.Ppy)
	}
	if in.Width < 0 || in.Height < 0 {
		return fmt.Errorf("%w: size (%d, %d)", ErrInvalidIntrinsics, in.Width, in.Height)
	}
	return nil
}

// Params returns the solver parameter block for the intrinsics.
func (in Intrinsics) Params() []float64 {
	return []float64{in.Fx, in.Fy, in.Ppx, in.Ppy, in.K1, in.K2}
}

// IntrinsicsFromParams rebuilds intrinsics from a parameter block, keeping
// the image size of base. Missing trailing parameters keep base's values.
func IntrinsicsFromParams(base Intrinsics, p []float64) Intrinsics {
	fields := []*float64{&base.Fx, &base.Fy, &base.Ppx, &base.Ppy, &base.K1, &base.K2}
	for i := 0; i < len(p) && i < len(fields); i++ {
		*fields[i] = p[i]
	}
	return base
}

// rotation returns the camera-to-world rotation as its three column vectors
// (the camera x, y and z axes expressed in world coordinates).
func rotation(deg r3.Vector) (cx, cy, cz r3.Vector) {
	a := deg.X * math.Pi / 180
	b := deg.Y * math.Pi / 180
	g := deg.Z * math.Pi / 180
	sa, ca := math.Sin(a), math.Cos(a)
	sb, cb := math.Sin(b), math.Cos(b)
	sg, cg := math.Sin(g), math.Cos(g)

	// R = Rz(g) * Ry(b) * Rx(a)
	cx = r3.Vector{X: cg * cb, Y: sg * cb, Z: -sb}
	cy = r3.Vector{X: cg*sb*sa - sg*ca, Y: sg*sb*sa + cg*ca, Z: cb * sa}
	cz = r3.Vector{X: cg*sb*ca + sg*sa, Y: sg*sb*ca - cg*sa, Z: cb * ca}
	return cx, cy, cz
}

// RotationMatrix returns the camera-to-world rotation for Euler angles in
// degrees as a row-major 3x3 matrix.
func RotationMatrix(deg r3.Vector) *mat.Dense {
	cx, cy, cz := rotation(deg)
	return mat.NewDense(3, 3, []float64{
		cx.X, cy.X, cz.X,
		cx.Y, cy.Y, cz.Y,
		cx.Z, cy.Z, cz.Z,
	})
}

// IsValidRotation reports whether m is a proper rotation: orthonormal with
// determinant +1 within tol.
func IsValidRotation(m mat.Matrix, tol float64) bool {
	r, c := m.Dims()
	if r != 3 || c != 3 {
		return false
	}
	if math.Abs(mat.Det(m)-1) > tol {
		return false
	}
	var mtm mat.Dense
	mtm.Mul(m.T(), m)
	return mat.EqualApprox(&mtm, eye3, tol)
}

var eye3 = mat.NewDiagDense(3, []float64{1, 1, 1})

// ToCameraSpace transforms a world point into the camera frame.
func ToCameraSpace(ext Extrinsics, p r3.Vector) r3.Vector {
	cx, cy, cz := rotation(ext.Rotation)
	d := p.Sub(ext.Translation)
	return r3.Vector{X: cx.Dot(d), Y: cy.Dot(d), Z: cz.Dot(d)}
}

// ToWorldSpace is the inverse of ToCameraSpace.
func ToWorldSpace(ext Extrinsics, c r3.Vector) r3.Vector {
	cx, cy, cz := rotation(ext.Rotation)
	return cx.Mul(c.X).Add(cy.Mul(c.Y)).Add(cz.Mul(c.Z)).Add(ext.Translation)
}

// Depth returns the distance of a camera-space point in front of the image
// plane. Negative values are behind the camera.
func Depth(c r3.Vector) float64 {
	return -c.Z
}

// InDepthWindow reports whether a world point lies between the camera and
// maxDepth along the viewing direction.
func InDepthWindow(ext Extrinsics, p r3.Vector, maxDepth float64) bool {
	d := Depth(ToCameraSpace(ext, p))
	return d >= 0 && d <= maxDepth
}

// Render projects a world point to a pixel. behindCamera is true when the
// point has negative depth; the returned pixel is then meaningless.
func Render(ext Extrinsics, in Intrinsics, p r3.Vector) (pixel r2.Point, behindCamera bool) {
	c := ToCameraSpace(ext, p)
	d := Depth(c)
	if d < 0 {
		return r2.Point{}, true
	}
	if d == 0 {
		// On the image plane; push it to infinity rather than divide by zero.
		d = math.SmallestNonzeroFloat64
	}
	x, y := distort(in, c.X/d, c.Y/d)
	return r2.Point{X: in.Ppx + in.Fx*x, Y: in.Ppy + in.Fy*y}, false
}

func distort(in Intrinsics, x, y float64) (float64, float64) {
	if in.K1 == 0 && in.K2 == 0 {
		return x, y
	}
	rr := x*x + y*y
	if math.IsInf(rr, 0) || math.IsNaN(rr) {
		// Points at infinity stay there; scaling them would give 0*Inf.
		return x, y
	}
	f := 1 + in.K1*rr + in.K2*rr*rr
	return x * f, y * f
}

// undistort inverts distort by fixed-point iteration.
func undistort(in Intrinsics, x, y float64) (float64, float64) {
	if in.K1 == 0 && in.K2 == 0 {
		return x, y
	}
	ux, uy := x, y
	for i := 0; i < 50; i++ {
		rr := ux*ux + uy*uy
		f := 1 + in.K1*rr + in.K2*rr*rr
		nx, ny := x/f, y/f
		if math.Abs(nx-ux) < 1e-12 && math.Abs(ny-uy) < 1e-12 {
			return nx, ny
		}
		ux, uy = nx, ny
	}
	return ux, uy
}

// Unproject returns the world point that renders to pixel at the given depth.
func Unproject(ext Extrinsics, in Intrinsics, pixel r2.Point, depth float64) r3.Vector {
	x, y := undistort(in, (pixel.X-in.Ppx)/in.Fx, (pixel.Y-in.Ppy)/in.Fy)
	c := r3.Vector{X: x * depth, Y: y * depth, Z: -depth}
	return ToWorldSpace(ext, c)
}
