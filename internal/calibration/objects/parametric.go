package objects

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// ParametricPoint binds one expected pixel to a position along a world
// line. Lambda is the position at which the residual is evaluated; it is a
// free solver parameter unless Fixed.
type ParametricPoint struct {
	ExpectedPixel r2.Point
	LineOrigin    r3.Vector
	LineAxis      r3.Vector
	Lambda        float64
	LambdaMin     float64
	LambdaMax     float64
	Fixed         bool

	WorldID string
	ImageID string

	// WeightIndex addresses the point's weight in the store's weight
	// sequence; -1 until the point is registered with a solver problem.
	WeightIndex int
}

// NewPointCorrespondence returns a fixed point at a world position.
func NewPointCorrespondence(pixel r2.Point, position r3.Vector) ParametricPoint {
	return ParametricPoint{
		ExpectedPixel: pixel,
		LineOrigin:    position,
		Fixed:         true,
		WeightIndex:   -1,
	}
}

// NewLineCorrespondence returns a point on the line origin + lambda*axis
// constrained to [min, max]. The point is fixed when min == max.
func NewLineCorrespondence(pixel r2.Point, origin, axis r3.Vector, lambda, min, max float64) ParametricPoint {
	return ParametricPoint{
		ExpectedPixel: pixel,
		LineOrigin:    origin,
		LineAxis:      axis,
		Lambda:        lambda,
		LambdaMin:     min,
		LambdaMax:     max,
		Fixed:         min == max,
		WeightIndex:   -1,
	}
}

// PointOn returns the parametric point of pixel on a world object. Lambda
// starts at the centre of the object's bounds, so poles give a fixed point
// at lambda 0.
func PointOn(o WorldObject, imageID string, pixel r2.Point) ParametricPoint {
	lo, hi := o.LambdaBounds()
	p := NewLineCorrespondence(pixel, o.Origin(), o.Axis(), (lo+hi)/2, lo, hi)
	p.WorldID = o.ID()
	p.ImageID = imageID
	return p
}

// Position returns the world position at the current lambda.
func (p ParametricPoint) Position() r3.Vector {
	return p.PositionAt(p.Lambda)
}

// PositionAt returns the world position at an arbitrary lambda.
func (p ParametricPoint) PositionAt(lambda float64) r3.Vector {
	return p.LineOrigin.Add(p.LineAxis.Mul(lambda))
}
