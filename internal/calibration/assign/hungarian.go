// Package assign solves the rectangular linear assignment problem used to
// pair image detections with world objects one-to-one.
package assign

import "math"

// Forbidden marks a cost matrix entry that must never be selected. Any cost
// at or above it is treated as forbidden.
const Forbidden = 1e18

// Hungarian returns the minimum-cost assignment for an n×m cost matrix:
// result[i] is the column assigned to row i, or -1 when row i is left
// unassigned (too few columns, or only forbidden entries reachable).
// It runs the Kuhn-Munkres algorithm with row/column potentials in O(d³)
// where d = max(n, m).
func Hungarian(cost [][]float64) []int {
	n := len(cost)
	if n == 0 {
		return nil
	}
	m := len(cost[0])
	result := make([]int, n)
	for i := range result {
		result[i] = -1
	}
	if m == 0 {
		return result
	}

	dim := max(n, m)
	c := make([][]float64, dim)
	for i := range c {
		c[i] = make([]float64, dim)
		for j := range c[i] {
			if i < n && j < m {
				c[i][j] = math.Min(cost[i][j], Forbidden)
			} else {
				c[i][j] = Forbidden
			}
		}
	}

	const inf = math.MaxFloat64 / 2

	// 1-indexed; column 0 is the virtual start of each augmenting path.
	u := make([]float64, dim+1)
	v := make([]float64, dim+1)
	owner := make([]int, dim+1) // owner[j] = row holding column j
	prev := make([]int, dim+1)  // previous column on the augmenting path
	minv := make([]float64, dim+1)
	used := make([]bool, dim+1)

	for i := 1; i <= dim; i++ {
		owner[0] = i
		j0 := 0
		for j := 1; j <= dim; j++ {
			minv[j] = inf
			used[j] = false
		}

		for {
			used[j0] = true
			i0 := owner[j0]
			delta := inf
			j1 := -1
			for j := 1; j <= dim; j++ {
				if used[j] {
					continue
				}
				cur := c[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					prev[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			if j1 < 0 {
				break
			}
			for j := 0; j <= dim; j++ {
				if used[j] {
					u[owner[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if owner[j0] == 0 {
				break
			}
		}

		for j0 != 0 {
			owner[j0] = owner[prev[j0]]
			j0 = prev[j0]
		}
	}

	for j := 1; j <= dim; j++ {
		i := owner[j] - 1
		col := j - 1
		if i < 0 || i >= n || col >= m || cost[i][col] >= Forbidden {
			continue
		}
		result[i] = col
	}
	return result
}

// Gate returns a copy of cost with every entry above limit set to
// Forbidden.
func Gate(cost [][]float64, limit float64) [][]float64 {
	out := make([][]float64, len(cost))
	for i, row := range cost {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			if v > limit {
				v = Forbidden
			}
			out[i][j] = v
		}
	}
	return out
}
