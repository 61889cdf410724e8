package simulation

import (
	"errors"
	"math"
	"testing"

	"github.com/iwvelando/pricing-optimizer/pkg/constants"
	"github.com/iwvelando/pricing-optimizer/pkg/mathutil"
	"github.com/iwvelando/pricing-optimizer/pkg/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func product(id string, price, revenue, profit float64) pricing.Product {
	return pricing.Product{
		ID:      id,
		Price:   price,
		Volume:  revenue / price,
		Revenue: revenue,
		Profit:  profit,
		Cost:    price - profit/(revenue/price),
	}
}

func TestRevenueIndexUnitElastic(t *testing.T) {
	for _, p := range []float64{0.01, 3.7, 8, 10, 12.345, 1e6} {
		assert.Equal(t, 1.0, RevenueIndex(p, 10, -1), "price %v", p)
	}
}

func TestIndicesAtCurrentPrice(t *testing.T) {
	for _, e := range []float64{-3.2, -2, -1, -0.5, 0, 0.4} {
		assert.Equal(t, 1.0, RevenueIndex(10, 10, e), "elasticity %v", e)
		assert.Equal(t, 1.0, ProfitIndex(10, 10, 7, e), "elasticity %v", e)
	}
}

func TestIndicesClosedForm(t *testing.T) {
	assert.InDelta(t, math.Pow(1.1, -1), RevenueIndex(11, 10, -2), 1e-12)
	assert.InDelta(t, 4.0/3.0*math.Pow(1.1, -2), ProfitIndex(11, 10, 7, -2), 1e-12)
	assert.InDelta(t, 1.1, RevenueIndex(11, 10, 0), 1e-12, "zero elasticity keeps volume")
	assert.InDelta(t, 4.0/3.0, ProfitIndex(11, 10, 7, 0), 1e-12)
}

func TestProfitIndexDegenerateMargin(t *testing.T) {
	// cost above price: the baseline margin is clamped to the epsilon
	at := ProfitIndex(10, 10, 12, -1)
	assert.InDelta(t, 1.0, at, 1e-9)

	up := ProfitIndex(11, 10, 12, -1)
	assert.True(t, mathutil.IsFinite(up))
	assert.Greater(t, up, 1.0, "a higher price widens the clamped margin")

	zero := ProfitIndex(10, 10, 10, -1.5)
	assert.InDelta(t, 1.0, zero, 1e-9)
	assert.InDelta(t, (9-(10-constants.MarginEpsilon))/constants.MarginEpsilon*math.Pow(0.9, -1.5), ProfitIndex(9, 10, 10, -1.5), 1e-9)
}

func TestSimulateTwoProducts(t *testing.T) {
	sim := NewSimulator(GridOptions{MinChangePct: -0.1, MaxChangePct: 0.1, Steps: 3, IncludeCurrent: true}, zap.NewNop())
	products := []pricing.Product{
		product("A", 10, 1000, 300),
		product("B", 5, 500, 150),
	}
	estimates := map[string]pricing.ElasticityEstimate{
		"A": {ProductID: "A", Elasticity: -2},
		"B": {ProductID: "B", Elasticity: -0.5},
	}

	grids, exclusions, err := sim.Simulate(products, estimates)
	require.NoError(t, err)
	assert.Empty(t, exclusions)
	require.Len(t, grids, 2)

	for _, grid := range grids {
		require.Len(t, grid.Scenarios, 3)
		assert.Equal(t, 1, grid.Anchor)
		anchor := grid.Scenarios[grid.Anchor]
		assert.Equal(t, 0.0, anchor.PctChange)
		assert.Equal(t, 1.0, anchor.RevenueIndex)
		assert.Equal(t, 1.0, anchor.ProfitIndex)
		assert.InDelta(t, grid.Product.Revenue, anchor.Revenue, 1e-9)
		assert.InDelta(t, grid.Product.Profit, anchor.Profit, 1e-9)
		for i, s := range grid.Scenarios {
			assert.Equal(t, i, s.Index)
			assert.Equal(t, grid.Elasticity.Elasticity, s.Elasticity)
			assert.Equal(t, grid.Product.ID, s.ProductID)
		}
	}

	// With a 30% margin, profit of a constant-elasticity product peaks at
	// cost·e/(1+e), which is 14 for A, so only A's revenue rewards a cut.
	a := grids[0].Scenarios
	assert.Greater(t, a[0].Revenue, a[1].Revenue, "elastic A gains revenue from a price cut")
	assert.Greater(t, a[1].Revenue, a[2].Revenue)
	assert.Greater(t, a[2].Profit, a[1].Profit)
	assert.InDelta(t, 1000/1.1, a[2].Revenue, 1e-9)
	assert.InDelta(t, 300*(4.0/3.0)/1.21, a[2].Profit, 1e-9)

	b := grids[1].Scenarios
	assert.Greater(t, b[2].Profit, b[1].Profit, "inelastic B gains profit from a price rise")
	assert.Greater(t, b[2].Revenue, 500.0)
	assert.Less(t, b[0].Revenue, 500.0)
}

func TestSimulateStronglyElasticFavorsCut(t *testing.T) {
	sim := NewSimulator(GridOptions{MinChangePct: -0.1, MaxChangePct: 0.1, Steps: 3, IncludeCurrent: true}, nil)
	grid, err := sim.SimulateProduct(product("A", 10, 1000, 300), pricing.ElasticityEstimate{ProductID: "A", Elasticity: -4})
	require.NoError(t, err)

	s := grid.Scenarios
	assert.Greater(t, s[0].Profit, s[1].Profit)
	assert.Greater(t, s[1].Profit, s[2].Profit)
	assert.InDelta(t, 1000*math.Pow(0.9, -3), s[0].Revenue, 1e-9)
}

func TestSimulateExclusions(t *testing.T) {
	sim := NewSimulator(GridOptions{MinChangePct: -0.2, MaxChangePct: 0.2, Steps: 5, IncludeCurrent: true}, nil)
	products := []pricing.Product{
		product("A", 10, 1000, 300),
		product("B", 5, 500, 150),
		product("C", 2, 100, 30),
	}
	estimates := map[string]pricing.ElasticityEstimate{
		"A": {ProductID: "A", Elasticity: math.NaN()},
		"C": {ProductID: "C", Elasticity: 0.3},
	}

	grids, exclusions, err := sim.Simulate(products, estimates)
	require.NoError(t, err)
	require.Len(t, grids, 1)
	assert.Equal(t, "C", grids[0].Product.ID, "positive elasticities are still simulated")

	require.Len(t, exclusions, 2)
	assert.Equal(t, "A", exclusions[0].ProductID)
	assert.Equal(t, "B", exclusions[1].ProductID)
	for _, exclusion := range exclusions {
		assert.True(t, errors.Is(exclusion.Reason, pricing.ErrInvalidElasticity))
	}
}

func TestSimulateInvalidGrid(t *testing.T) {
	sim := NewSimulator(GridOptions{MinChangePct: -0.2, MaxChangePct: 0.2, Steps: 1}, nil)
	_, _, err := sim.Simulate([]pricing.Product{product("A", 10, 1000, 300)}, nil)
	assert.True(t, errors.Is(err, pricing.ErrInvalidConfiguration))
}
