package camera

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func referenceCamera() (Extrinsics, Intrinsics) {
	return Extrinsics{
			Translation: r3.Vector{X: 0, Y: -10, Z: 5},
			Rotation:    r3.Vector{X: 90, Y: 0, Z: 0},
		}, Intrinsics{
			Fx: 1200, Fy: 1200, Ppx: 960, Ppy: 600, Width: 1920, Height: 1200,
		}
}

func TestRender_ReferenceFixtures(t *testing.T) {
	ext, in := referenceCamera()

	tests := []struct {
		name  string
		world r3.Vector
		want  r2.Point
	}{
		{"origin", r3.Vector{}, r2.Point{X: 960, Y: 0}},
		{"five metres up", r3.Vector{Z: 5}, r2.Point{X: 960, Y: 600}},
		{"ten metres up", r3.Vector{Z: 10}, r2.Point{X: 960, Y: 1200}},
		{"twenty metres ahead", r3.Vector{Y: 20}, r2.Point{X: 960, Y: 400}},
		{"off axis", r3.Vector{X: 4, Y: 20, Z: 5}, r2.Point{X: 1120, Y: 600}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, behind := Render(ext, in, tt.world)
			require.False(t, behind)
			assert.InDelta(t, tt.want.X, got.X, 1e-6)
			assert.InDelta(t, tt.want.Y, got.Y, 1e-6)
		})
	}
}

func TestRender_BehindCamera(t *testing.T) {
	ext, in := referenceCamera()

	_, behind := Render(ext, in, r3.Vector{Y: -20, Z: 5})
	assert.True(t, behind)

	c := ToCameraSpace(ext, r3.Vector{Y: -20, Z: 5})
	assert.Less(t, Depth(c), 0.0)
	assert.False(t, InDepthWindow(ext, r3.Vector{Y: -20, Z: 5}, DefaultMaxDepth))
	assert.False(t, InDepthWindow(ext, r3.Vector{Y: 2000}, DefaultMaxDepth))
	assert.True(t, InDepthWindow(ext, r3.Vector{Y: 20}, DefaultMaxDepth))
}

func TestUnproject_RoundTrip(t *testing.T) {
	ext, in := referenceCamera()
	distorted := in
	distorted.K1 = -0.05
	distorted.K2 = 0.01

	points := []r3.Vector{
		{X: 0, Y: 0, Z: 0},
		{X: 4, Y: 20, Z: 5},
		{X: -3, Y: 35, Z: 1},
		{X: 10, Y: 60, Z: -2},
		{X: -7.5, Y: 12, Z: 8},
	}
	for _, intr := range []Intrinsics{in, distorted} {
		for _, p := range points {
			pixel, behind := Render(ext, intr, p)
			require.False(t, behind)

			depth := Depth(ToCameraSpace(ext, p))
			back := Unproject(ext, intr, pixel, depth)
			assert.InDelta(t, p.X, back.X, 1e-6)
			assert.InDelta(t, p.Y, back.Y, 1e-6)
			assert.InDelta(t, p.Z, back.Z, 1e-6)

			again, _ := Render(ext, intr, back)
			assert.InDelta(t, pixel.X, again.X, 1e-6)
			assert.InDelta(t, pixel.Y, again.Y, 1e-6)
		}
	}
}

func TestRotationMatrix(t *testing.T) {
	for _, deg := range []r3.Vector{{}, {X: 90}, {X: 12, Y: -40, Z: 170}} {
		m := RotationMatrix(deg)
		assert.True(t, IsValidRotation(m, 1e-9), "rotation %v", deg)
	}

	m := RotationMatrix(r3.Vector{X: 90})
	// The camera viewing direction (-z) must point along world +y.
	assert.InDelta(t, 1.0, -m.At(1, 2), 1e-12)
	assert.InDelta(t, 1.0, m.At(2, 1), 1e-12)
}

func TestToWorldSpace_InvertsToCameraSpace(t *testing.T) {
	ext := Extrinsics{Translation: r3.Vector{X: 3, Y: -2, Z: 7}, Rotation: r3.Vector{X: 80, Y: 5, Z: -30}}
	p := r3.Vector{X: 1, Y: 2, Z: 3}
	back := ToWorldSpace(ext, ToCameraSpace(ext, p))
	assert.InDelta(t, 0, back.Sub(p).Norm(), 1e-9)
}

func TestIntrinsics_Params(t *testing.T) {
	_, in := referenceCamera()
	in.K1 = 0.1

	p := in.Params()
	require.Len(t, p, IntrinsicsParamCount)

	p[0] = 1300
	got := IntrinsicsFromParams(in, p)
	assert.Equal(t, 1300.0, got.Fx)
	assert.Equal(t, 0.1, got.K1)
	assert.Equal(t, 1920, got.Width)

	partial := IntrinsicsFromParams(in, []float64{1000, 1000})
	assert.Equal(t, 960.0, partial.Ppx)
}

func TestIntrinsics_CheckValid(t *testing.T) {
	_, in := referenceCamera()
	assert.NoError(t, in.CheckValid())

	bad := in
	bad.Fx = 0
	assert.ErrorIs(t, bad.CheckValid(), ErrInvalidIntrinsics)

	bad = in
	bad.Ppy = -1
	assert.ErrorIs(t, bad.CheckValid(), ErrInvalidIntrinsics)
}

func TestRender_OnImagePlaneIsFinite(t *testing.T) {
	ext, in := referenceCamera()
	// Depth exactly zero: the point sits in the camera's own plane.
	got, behind := Render(ext, in, r3.Vector{X: 1, Y: -10, Z: 5})
	assert.False(t, behind)
	assert.False(t, math.IsNaN(got.X))
}

func TestRender_OnImagePlaneWithDistortionIsNotNaN(t *testing.T) {
	_, in := referenceCamera()
	// Identity pose: camera z is world z, so (0, 2, 0) has depth exactly zero
	// and camera x zero, making one normalised coordinate infinite.
	ext := Extrinsics{}
	for _, k := range []struct{ k1, k2 float64 }{{0.1, 0}, {-0.1, 0.01}, {0, -0.2}} {
		in.K1, in.K2 = k.k1, k.k2
		got, behind := Render(ext, in, r3.Vector{X: 0, Y: 2, Z: 0})
		assert.False(t, behind)
		assert.False(t, math.IsNaN(got.X), "k1=%v k2=%v x=%v", k.k1, k.k2, got.X)
		assert.False(t, math.IsNaN(got.Y), "k1=%v k2=%v y=%v", k.k1, k.k2, got.Y)
	}
}
