package objects

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoadMark_Geometry(t *testing.T) {
	m := NewRoadMark("rm", r3.Vector{X: 1, Y: 2, Z: 0}, r3.Vector{X: 1, Y: 6, Z: 0})

	assert.Equal(t, "rm", m.ID())
	assert.InDelta(t, 4.0, m.Length(), 1e-12)
	assert.Equal(t, r3.Vector{Y: 1}, m.Axis())
	assert.Equal(t, r3.Vector{X: 1, Y: 4}, m.Mid())
	lo, hi := m.LambdaBounds()
	assert.Equal(t, 0.0, lo)
	assert.InDelta(t, 4.0, hi, 1e-12)
	assert.Equal(t, m.End(), PositionAt(m, hi))
}

func TestRoadMark_ZeroLength(t *testing.T) {
	p := r3.Vector{X: 3, Y: 3}
	m := NewRoadMark("dot", p, p)
	assert.Equal(t, r3.Vector{}, m.Axis())
	lo, hi := m.LambdaBounds()
	assert.Equal(t, lo, hi)
	assert.True(t, PointOn(m, "img", r2.Point{}).Fixed)
}

func TestPole_IsPointShaped(t *testing.T) {
	p := NewPole("p1", r3.Vector{X: 4, Y: 20}, 1.2)
	lo, hi := p.LambdaBounds()
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 0.0, hi)
	assert.Equal(t, 0.0, p.Length())
	assert.Equal(t, p.Origin(), p.Mid())
	assert.Equal(t, 1.2, p.Height)

	pt := PointOn(p, "img", r2.Point{X: 1, Y: 2})
	assert.True(t, pt.Fixed)
	assert.Equal(t, 0.0, pt.Lambda)
	assert.Equal(t, "p1", pt.WorldID)
	assert.Equal(t, "img", pt.ImageID)
	assert.Equal(t, -1, pt.WeightIndex)
}

func TestChainRoadMarks(t *testing.T) {
	a := NewRoadMark("a", r3.Vector{}, r3.Vector{Y: 3})
	b := NewRoadMark("b", r3.Vector{Y: 3.05}, r3.Vector{Y: 6})
	c := NewRoadMark("c", r3.Vector{Y: 6}, r3.Vector{Y: 9})
	far := NewRoadMark("far", r3.Vector{X: 10}, r3.Vector{X: 10, Y: 3})

	got := ChainRoadMarks([]RoadMark{c, far, a, b}, DefaultChainTolerance)
	require.Len(t, got, 2)

	byID := map[string]RoadMark{}
	for _, m := range got {
		byID[m.ID()] = m
	}
	require.Contains(t, byID, "far")
	joined, ok := byID["a"]
	require.True(t, ok, "chain should keep the first mark's id, got %v", got)
	assert.Equal(t, r3.Vector{}, joined.Origin())
	assert.Equal(t, r3.Vector{Y: 9}, joined.End())
}

func TestChainRoadMarks_NoSelfJoin(t *testing.T) {
	// A tiny mark whose end touches its own start must survive unchanged.
	tiny := NewRoadMark("tiny", r3.Vector{}, r3.Vector{X: 0.01})
	got := ChainRoadMarks([]RoadMark{tiny}, DefaultChainTolerance)
	require.Len(t, got, 1)
	assert.Equal(t, tiny, got[0])
}

func TestImageObject_FlipAndMid(t *testing.T) {
	obj := NewImageObject("i", []r2.Point{{X: 10, Y: 0}, {X: 20, Y: 99}}, 100)

	if diff := cmp.Diff([]r2.Point{{X: 10, Y: 99}, {X: 20, Y: 0}}, obj.Pixels()); diff != "" {
		t.Errorf("flipped pixels mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, r2.Point{X: 15, Y: 49.5}, obj.Mid())

	unflipped := NewImageObject("j", []r2.Point{{X: 1, Y: 2}}, 1)
	assert.Equal(t, r2.Point{X: 1, Y: 2}, unflipped.Mid())
}

func TestImageObject_CenterLine(t *testing.T) {
	obj := NewImageObject("i", []r2.Point{
		{X: 10, Y: 5}, {X: 12, Y: 5},
		{X: 11, Y: 4}, {X: 13, Y: 4}, {X: 15, Y: 4},
		{X: 7, Y: 6.2},
	}, 0)

	want := []r2.Point{{X: 13, Y: 4}, {X: 11, Y: 5}, {X: 7, Y: 6}}
	if diff := cmp.Diff(want, obj.CenterLine()); diff != "" {
		t.Errorf("center line mismatch (-want +got):\n%s", diff)
	}
}

func TestImageObject_Empty(t *testing.T) {
	obj := NewImageObject("empty", nil, 1080)
	assert.Equal(t, r2.Point{}, obj.Mid())
	assert.Empty(t, obj.CenterLine())
}

func TestParametricPoint_Position(t *testing.T) {
	p := NewLineCorrespondence(r2.Point{}, r3.Vector{X: 1}, r3.Vector{Z: 1}, 2, 0, 5)
	assert.False(t, p.Fixed)
	assert.Equal(t, r3.Vector{X: 1, Z: 2}, p.Position())
	assert.Equal(t, r3.Vector{X: 1, Z: 5}, p.PositionAt(5))

	fixed := NewPointCorrespondence(r2.Point{X: 1}, r3.Vector{Y: 3})
	assert.True(t, fixed.Fixed)
	assert.Equal(t, r3.Vector{Y: 3}, fixed.Position())
}

func TestPointOn_LineStartsAtCentre(t *testing.T) {
	m := NewRoadMark("rm", r3.Vector{}, r3.Vector{X: 10})
	p := PointOn(m, "img", r2.Point{X: 3, Y: 4})
	assert.False(t, p.Fixed)
	assert.InDelta(t, 5.0, p.Lambda, 1e-12)
	assert.InDelta(t, 10.0, p.LambdaMax, 1e-12)
	assert.Equal(t, r2.Point{X: 3, Y: 4}, p.ExpectedPixel)
}
