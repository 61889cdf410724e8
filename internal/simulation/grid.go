// Package simulation generates candidate price grids and evaluates each
// candidate under a constant-elasticity demand curve.
package simulation

import (
	"fmt"
	"math"

	"github.com/iwvelando/pricing-optimizer/pkg/constants"
	"github.com/iwvelando/pricing-optimizer/pkg/mathutil"
	"github.com/iwvelando/pricing-optimizer/pkg/pricing"
)

// GridOptions bounds the candidate prices of every product.
type GridOptions struct {
	MinChangePct float64
	MaxChangePct float64
	Steps        int
	// IncludeCurrent snaps the interior point closest to the current price
	// onto it exactly when the range straddles zero.
	IncludeCurrent bool
}

// Validate rejects grids that cannot produce Steps distinct positive prices.
func (g GridOptions) Validate() error {
	if g.Steps < constants.MinSteps {
		return pricing.InvalidConfigurationf("grid steps must be at least %d, got %d", constants.MinSteps, g.Steps)
	}
	if !mathutil.IsFinite(g.MinChangePct) || !mathutil.IsFinite(g.MaxChangePct) {
		return pricing.InvalidConfigurationf("grid bounds must be finite")
	}
	if g.MinChangePct >= g.MaxChangePct {
		return pricing.InvalidConfigurationf("grid minimum change %.4f must be less than maximum %.4f", g.MinChangePct, g.MaxChangePct)
	}
	if g.MinChangePct <= -1 {
		return pricing.InvalidConfigurationf("grid minimum change %.4f would produce non-positive prices", g.MinChangePct)
	}
	return nil
}

// PriceGrid returns Steps strictly increasing prices linearly spaced from
// p0·(1+MinChangePct) to p0·(1+MaxChangePct), both endpoints included.
// The result depends only on its inputs.
func PriceGrid(p0 float64, opts GridOptions) ([]float64, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if !mathutil.IsFinite(p0) || p0 <= 0 {
		return nil, fmt.Errorf("current price %v must be a positive number", p0)
	}

	lo := p0 * (1 + opts.MinChangePct)
	hi := p0 * (1 + opts.MaxChangePct)
	last := opts.Steps - 1

	grid := make([]float64, opts.Steps)
	for i := range grid {
		grid[i] = lo + (hi-lo)*float64(i)/float64(last)
	}
	grid[0] = lo
	grid[last] = hi

	if opts.IncludeCurrent && opts.MinChangePct < 0 && opts.MaxChangePct > 0 && opts.Steps > 2 {
		// The nearest interior point always lies in the gap adjacent to p0,
		// so replacing it keeps the sequence strictly increasing.
		nearest := 1
		for i := 2; i < last; i++ {
			if math.Abs(grid[i]-p0) < math.Abs(grid[nearest]-p0) {
				nearest = i
			}
		}
		grid[nearest] = p0
	}

	return grid, nil
}

// AnchorIndex returns the position of the scenario with the smallest absolute
// price change, preferring the lowest index on ties. It returns -1 for an
// empty slice.
func AnchorIndex(scenarios []pricing.PriceScenario) int {
	anchor := -1
	for i, s := range scenarios {
		if anchor < 0 || math.Abs(s.PctChange) < math.Abs(scenarios[anchor].PctChange) {
			anchor = i
		}
	}
	return anchor
}
