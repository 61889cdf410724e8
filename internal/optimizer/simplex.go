package optimizer

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const simplexTolerance = 1e-10

// SimplexBound solves the LP relaxation with a general simplex solver.
// It gives the same value as HullBound and is kept as an independent check
// of it. When the simplex fails numerically and Fallback is set, the node is
// bounded by Fallback instead.
type SimplexBound struct {
	Fallback Bound
}

// Relax implements Bound. The LP is put in standard form
//
//	minimize   -Σ p·x
//	subject to Σ_k x[g][k] = 1        for every group g
//	           Σ r·x - s = floor - tolerance
//	           x, s >= 0
func (b SimplexBound) Relax(p *Problem, allowed [][]bool) (Relaxation, error) {
	type column struct{ group, item int }
	var columns []column
	for g, group := range p.Groups {
		n := 0
		for k := range group.Items {
			if allowed[g][k] {
				columns = append(columns, column{g, k})
				n++
			}
		}
		if n == 0 {
			return Relaxation{}, nil
		}
	}

	rows := len(p.Groups) + 1
	cols := len(columns) + 1
	a := mat.NewDense(rows, cols, nil)
	c := make([]float64, cols)
	rhs := make([]float64, rows)
	for j, col := range columns {
		item := p.Groups[col.group].Items[col.item]
		a.Set(col.group, j, 1)
		a.Set(rows-1, j, item.Revenue)
		c[j] = -item.Profit
	}
	a.Set(rows-1, cols-1, -1)
	for g := range p.Groups {
		rhs[g] = 1
	}
	rhs[rows-1] = p.RevenueFloor() - p.FeasibilityTolerance()

	optF, optX, err := lp.Simplex(c, a, rhs, simplexTolerance, nil)
	if errors.Is(err, lp.ErrInfeasible) {
		return Relaxation{}, nil
	}
	if err != nil {
		if b.Fallback != nil {
			return b.Fallback.Relax(p, allowed)
		}
		return Relaxation{}, fmt.Errorf("simplex relaxation: %w", err)
	}

	x := make([][]float64, len(p.Groups))
	for g, group := range p.Groups {
		x[g] = make([]float64, len(group.Items))
	}
	for j, col := range columns {
		x[col.group][col.item] = optX[j]
	}
	return Relaxation{Feasible: true, Value: -optF, X: x}, nil
}
