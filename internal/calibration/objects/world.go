// Package objects holds the geometric primitives matched during
// calibration: surveyed world objects (poles and road marks), image
// detections, and the parametric points that bind one to the other.
package objects

import (
	"github.com/golang/geo/r3"
)

// DefaultChainTolerance is the distance in metres within which the end of
// one road mark is considered to continue into the start of another.
const DefaultChainTolerance = 0.1

// WorldObject is a surveyed reference object parametrised as
// origin + t*axis for t in LambdaBounds.
type WorldObject interface {
	ID() string
	Origin() r3.Vector
	Axis() r3.Vector
	Length() float64
	LambdaBounds() (min, max float64)
	Mid() r3.Vector
}

// PositionAt returns the point at parameter t along o.
func PositionAt(o WorldObject, t float64) r3.Vector {
	return o.Origin().Add(o.Axis().Mul(t))
}

// Pole is a point-like world object such as a delineator post. Only its
// anchor takes part in matching; Height is survey metadata.
type Pole struct {
	id     string
	anchor r3.Vector
	Height float64
}

// NewPole returns a pole anchored at the given point.
func NewPole(id string, anchor r3.Vector, height float64) Pole {
	return Pole{id: id, anchor: anchor, Height: height}
}

func (p Pole) ID() string                       { return p.id }
func (p Pole) Origin() r3.Vector                { return p.anchor }
func (p Pole) Axis() r3.Vector                  { return r3.Vector{Z: 1} }
func (p Pole) Length() float64                  { return 0 }
func (p Pole) LambdaBounds() (float64, float64) { return 0, 0 }
func (p Pole) Mid() r3.Vector                   { return p.anchor }

// RoadMark is a straight painted line segment.
type RoadMark struct {
	id     string
	start  r3.Vector
	end    r3.Vector
	axis   r3.Vector
	length float64
}

// NewRoadMark returns the segment from start to end. A zero-length mark
// behaves like a point: its axis is zero and its bounds collapse to [0, 0].
func NewRoadMark(id string, start, end r3.Vector) RoadMark {
	d := end.Sub(start)
	length := d.Norm()
	var axis r3.Vector
	if length > 0 {
		axis = d.Mul(1 / length)
	}
	return RoadMark{id: id, start: start, end: end, axis: axis, length: length}
}

func (m RoadMark) ID() string                       { return m.id }
func (m RoadMark) Origin() r3.Vector                { return m.start }
func (m RoadMark) End() r3.Vector                   { return m.end }
func (m RoadMark) Axis() r3.Vector                  { return m.axis }
func (m RoadMark) Length() float64                  { return m.length }
func (m RoadMark) LambdaBounds() (float64, float64) { return 0, m.length }

// Mid returns the centre of the segment.
func (m RoadMark) Mid() r3.Vector {
	return m.start.Add(m.end).Mul(0.5)
}

// ChainRoadMarks joins marks whose end lies within tolerance of another
// mark's start. The joined mark keeps the first mark's id and runs from its
// start to the second mark's end. Joining repeats until no pair touches, so
// a dashed line surveyed piecewise comes back as one mark. A mark is never
// joined with itself.
func ChainRoadMarks(marks []RoadMark, tolerance float64) []RoadMark {
	out := make([]RoadMark, len(marks))
	copy(out, marks)

	for {
		i, j, ok := findTouching(out, tolerance)
		if !ok {
			return out
		}
		joined := NewRoadMark(out[i].id, out[i].start, out[j].end)
		out[i] = joined
		out = append(out[:j], out[j+1:]...)
	}
}

func findTouching(marks []RoadMark, tolerance float64) (int, int, bool) {
	for i := range marks {
		for j := range marks {
			if i == j {
				continue
			}
			if marks[i].end.Distance(marks[j].start) < tolerance {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}
