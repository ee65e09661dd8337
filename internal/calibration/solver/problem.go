// Package solver is a small nonlinear least-squares front end over gonum's
// optimize package. A Problem holds named parameter blocks and residual
// blocks; Solve minimises half the summed robust loss of all residual blocks
// over the blocks that are not held constant.
package solver

import (
	"fmt"
	"math"
)

// ParameterBlock is a vector of parameters optimised together.
type ParameterBlock struct {
	name     string
	values   []float64
	constant bool
	// offset into the free parameter vector while a solve is running.
	offset int
}

// Name returns the block's label.
func (b *ParameterBlock) Name() string { return b.name }

// Values returns a copy of the block's current values.
func (b *ParameterBlock) Values() []float64 {
	return append([]float64(nil), b.values...)
}

// Value returns the i-th value of the block.
func (b *ParameterBlock) Value(i int) float64 { return b.values[i] }

// Len is the number of parameters in the block.
func (b *ParameterBlock) Len() int { return len(b.values) }

// SetConstant holds the block at its current values during Solve.
func (b *ParameterBlock) SetConstant(constant bool) { b.constant = constant }

// IsConstant reports whether the block is held fixed.
func (b *ParameterBlock) IsConstant() bool { return b.constant }

// ResidualFunc writes the residual vector for the given block values into
// out. params[i] holds the values of the i-th block passed to
// AddResidualBlock and must not be modified.
type ResidualFunc func(params [][]float64, out []float64)

type residualBlock struct {
	size   int
	loss   LossFunction
	fn     ResidualFunc
	blocks []*ParameterBlock
}

// Problem is a set of parameter blocks and the residual blocks over them.
type Problem struct {
	blocks    []*ParameterBlock
	residuals []residualBlock
}

// NewProblem returns an empty problem.
func NewProblem() *Problem {
	return &Problem{}
}

// AddParameterBlock registers a copy of values under name and returns the
// block handle used to wire residuals and read results.
func (p *Problem) AddParameterBlock(name string, values []float64) *ParameterBlock {
	b := &ParameterBlock{name: name, values: append([]float64(nil), values...)}
	p.blocks = append(p.blocks, b)
	return b
}

// AddResidualBlock registers a residual of the given size over blocks. A nil
// loss is TrivialLoss. It returns the residual block's index.
func (p *Problem) AddResidualBlock(size int, loss LossFunction, fn ResidualFunc, blocks ...*ParameterBlock) (int, error) {
	if size <= 0 {
		return 0, fmt.Errorf("residual size must be positive, got %d", size)
	}
	if fn == nil {
		return 0, fmt.Errorf("residual function is nil")
	}
	for _, b := range blocks {
		if !p.owns(b) {
			return 0, fmt.Errorf("parameter block %q does not belong to this problem", b.Name())
		}
	}
	if loss == nil {
		loss = TrivialLoss{}
	}
	p.residuals = append(p.residuals, residualBlock{size: size, loss: loss, fn: fn, blocks: blocks})
	return len(p.residuals) - 1, nil
}

func (p *Problem) owns(b *ParameterBlock) bool {
	if b == nil {
		return false
	}
	for _, own := range p.blocks {
		if own == b {
			return true
		}
	}
	return false
}

// NumParameterBlocks returns the number of registered parameter blocks.
func (p *Problem) NumParameterBlocks() int { return len(p.blocks) }

// NumResidualBlocks returns the number of registered residual blocks.
func (p *Problem) NumResidualBlocks() int { return len(p.residuals) }

// NumFreeParameters counts the parameters Solve will vary.
func (p *Problem) NumFreeParameters() int {
	n := 0
	for _, b := range p.blocks {
		if !b.constant {
			n += len(b.values)
		}
	}
	return n
}

// Cost evaluates half the summed loss at the blocks' current values.
func (p *Problem) Cost() float64 {
	return p.cost(func(b *ParameterBlock) []float64 { return b.values })
}

// ResidualCost evaluates the loss of residual block i alone.
func (p *Problem) ResidualCost(i int) float64 {
	r := p.residuals[i]
	return 0.5 * r.loss.Loss(r.squaredNorm(func(b *ParameterBlock) []float64 { return b.values }))
}

func (p *Problem) cost(view func(*ParameterBlock) []float64) float64 {
	total := 0.0
	for _, r := range p.residuals {
		total += r.loss.Loss(r.squaredNorm(view))
	}
	return 0.5 * total
}

func (r residualBlock) squaredNorm(view func(*ParameterBlock) []float64) float64 {
	params := make([][]float64, len(r.blocks))
	for i, b := range r.blocks {
		params[i] = view(b)
	}
	out := make([]float64, r.size)
	r.fn(params, out)

	s := 0.0
	for _, v := range out {
		s += v * v
	}
	if math.IsNaN(s) {
		return math.Inf(1)
	}
	return s
}
