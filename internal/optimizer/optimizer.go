// Package optimizer selects one candidate price per product so that total
// profit is maximized while total revenue stays above a floor. The problem
// is a multiple-choice knapsack with a single linear side constraint and is
// solved exactly by branch and bound over an LP relaxation.
package optimizer

import (
	"context"
	"time"

	"github.com/iwvelando/pricing-optimizer/pkg/constants"
	"github.com/iwvelando/pricing-optimizer/pkg/pricing"
	"go.uber.org/zap"
)

// Solver is the capability of solving a multiple-choice knapsack instance
// with a revenue floor. Implementations must either return a provably optimal
// selection, a selection flagged Suboptimal, or an error.
type Solver interface {
	Solve(ctx context.Context, p *Problem, opts Options) (*Solution, error)
}

// Options bounds the resources of a single solve.
type Options struct {
	TimeLimit time.Duration
	NodeLimit int
	// AcceptSuboptimal returns the incumbent flagged Suboptimal when a limit
	// is hit instead of failing with pricing.ErrSolverTimeout.
	AcceptSuboptimal bool
}

func (o Options) normalized() Options {
	if o.TimeLimit <= 0 {
		o.TimeLimit = constants.DefaultTimeLimit
	}
	if o.NodeLimit <= 0 {
		o.NodeLimit = constants.DefaultNodeLimit
	}
	return o
}

// Solution is a complete selection: Choice holds one item position per group.
type Solution struct {
	Choice     []int
	Objective  float64
	Revenue    float64
	Nodes      int
	Optimal    bool
	Suboptimal bool
	Elapsed    time.Duration
}

// Headroom returns how far the selection's revenue is above the floor.
func (s *Solution) Headroom(p *Problem) float64 {
	return s.Revenue - p.RevenueFloor()
}

// NewSolver returns the bundled branch-and-bound solver using the named LP
// bound (constants.BoundHull or constants.BoundSimplex).
func NewSolver(bound string, logger *zap.Logger) (Solver, error) {
	switch bound {
	case "", constants.BoundHull:
		return NewBranchAndBound(HullBound{}, logger), nil
	case constants.BoundSimplex:
		return NewBranchAndBound(SimplexBound{Fallback: HullBound{}}, logger), nil
	default:
		return nil, pricing.InvalidConfigurationf("optimizer bound %q is not supported", bound)
	}
}

// evaluation is the exact outcome of a complete selection.
type evaluation struct {
	choice  []int
	revenue float64
	profit  float64
	floor   float64
	tol     float64
}

func evaluate(p *Problem, choice []int) evaluation {
	revenue, profit := p.Evaluate(choice)
	return evaluation{
		choice:  choice,
		revenue: revenue,
		profit:  profit,
		floor:   p.RevenueFloor(),
		tol:     p.FeasibilityTolerance(),
	}
}

func (e evaluation) feasible() bool {
	return e.revenue >= e.floor-e.tol
}
