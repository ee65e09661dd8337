// Package testutil provides shared test utilities and fixtures.
//
// The reference camera used across the calibration tests lives here so
// every package checks its projections against the same numbers.
package testutil

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/banshee-data/static-calibration/internal/calibration/camera"
)

// ReferenceExtrinsics places the camera 10 units behind the world origin
// along -y, 5 units up, looking along +y.
func ReferenceExtrinsics() camera.Extrinsics {
	return camera.Extrinsics{
		Translation: r3.Vector{X: 0, Y: -10, Z: 5},
		Rotation:    r3.Vector{X: 90, Y: 0, Z: 0},
	}
}

// ReferenceIntrinsics is a 1920x1200 pinhole without distortion.
func ReferenceIntrinsics() camera.Intrinsics {
	return camera.Intrinsics{
		Fx: 1200, Fy: 1200,
		Ppx: 960, Ppy: 600,
		Width: 1920, Height: 1200,
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertPixel fails the test if got is farther than tol from want on either
// axis.
func AssertPixel(t testing.TB, got, want r2.Point, tol float64) {
	t.Helper()
	if math.Abs(got.X-want.X) > tol || math.Abs(got.Y-want.Y) > tol {
		t.Errorf("pixel = (%.6f, %.6f), want (%.6f, %.6f)", got.X, got.Y, want.X, want.Y)
	}
}

// WriteFile writes content to name inside a fresh temporary directory and
// returns the full path.
func WriteFile(t testing.TB, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
