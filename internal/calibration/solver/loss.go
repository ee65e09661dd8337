package solver

import "math"

// LossFunction maps the squared norm of a residual block to its
// contribution to the cost.
type LossFunction interface {
	Loss(squaredNorm float64) float64
}

// TrivialLoss is the plain squared norm.
type TrivialLoss struct{}

func (TrivialLoss) Loss(s float64) float64 { return s }

// HuberLoss is quadratic up to Delta and linear beyond it.
type HuberLoss struct {
	Delta float64
}

func (h HuberLoss) Loss(s float64) float64 {
	d2 := h.Delta * h.Delta
	if s <= d2 {
		return s
	}
	return 2*h.Delta*math.Sqrt(s) - d2
}

// ClippedLoss caps a block's squared norm at Bound so a single gross
// mismatch cannot dominate the cost.
type ClippedLoss struct {
	Bound float64
}

func (c ClippedLoss) Loss(s float64) float64 {
	return math.Min(s, c.Bound)
}
