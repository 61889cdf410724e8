package simulation

import (
	"fmt"
	"math"

	"github.com/iwvelando/pricing-optimizer/pkg/constants"
	"github.com/iwvelando/pricing-optimizer/pkg/mathutil"
	"github.com/iwvelando/pricing-optimizer/pkg/pricing"
	"go.uber.org/zap"
)

// RevenueIndex returns (p/p0)^(1+e), the ratio of simulated to baseline
// revenue under Q(P) = Q0·(P/P0)^e. Unit elasticity yields exactly 1.
func RevenueIndex(p, p0, e float64) float64 {
	if e == -1 {
		return 1
	}
	return math.Pow(p/p0, 1+e)
}

// ProfitIndex returns ((p-cost)/(p0-cost))·(p/p0)^e, the ratio of simulated
// to baseline profit. A non-positive baseline margin is replaced by
// constants.MarginEpsilon by lowering the cost, so the index is 1 at p0 and
// keeps the sign of the candidate margin.
func ProfitIndex(p, p0, cost, e float64) float64 {
	margin := p0 - cost
	if margin <= 0 {
		margin = constants.MarginEpsilon
		cost = p0 - margin
	}
	return (p - cost) / margin * math.Pow(p/p0, e)
}

// Simulator evaluates every candidate price of every product.
type Simulator struct {
	grid   GridOptions
	logger *zap.Logger
}

// NewSimulator returns a Simulator for the given grid.
func NewSimulator(grid GridOptions, logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{grid: grid, logger: logger}
}

// Simulate builds the scenario grid of each product in order. Products
// without an estimate, or with a non-finite elasticity, are returned as
// exclusions. Positive elasticities are simulated as given and logged.
func (s *Simulator) Simulate(products []pricing.Product, estimates map[string]pricing.ElasticityEstimate) ([]pricing.ScenarioGrid, []pricing.Exclusion, error) {
	if err := s.grid.Validate(); err != nil {
		return nil, nil, err
	}

	grids := make([]pricing.ScenarioGrid, 0, len(products))
	var exclusions []pricing.Exclusion
	for _, product := range products {
		estimate, ok := estimates[product.ID]
		if !ok {
			exclusions = append(exclusions, pricing.Exclusion{
				ProductID: product.ID,
				Reason:    fmt.Errorf("product %s has no elasticity estimate: %w", product.ID, pricing.ErrInvalidElasticity),
			})
			continue
		}
		if !mathutil.IsFinite(estimate.Elasticity) {
			exclusions = append(exclusions, pricing.Exclusion{
				ProductID: product.ID,
				Reason:    fmt.Errorf("product %s elasticity %v: %w", product.ID, estimate.Elasticity, pricing.ErrInvalidElasticity),
			})
			continue
		}
		if estimate.Elasticity > 0 {
			s.logger.Warn("positive elasticity estimate",
				zap.String("op", "simulation.Simulate"),
				zap.String("product", product.ID),
				zap.Float64("elasticity", estimate.Elasticity),
			)
		}

		grid, err := s.SimulateProduct(product, estimate)
		if err != nil {
			return nil, nil, fmt.Errorf("simulating product %s: %w", product.ID, err)
		}
		grids = append(grids, grid)
	}

	s.logger.Debug("simulated scenarios",
		zap.String("op", "simulation.Simulate"),
		zap.Int("products", len(grids)),
		zap.Int("steps", s.grid.Steps),
		zap.Int("excluded", len(exclusions)),
	)
	return grids, exclusions, nil
}

// SimulateProduct evaluates one product over its candidate prices.
func (s *Simulator) SimulateProduct(product pricing.Product, estimate pricing.ElasticityEstimate) (pricing.ScenarioGrid, error) {
	prices, err := PriceGrid(product.Price, s.grid)
	if err != nil {
		return pricing.ScenarioGrid{}, err
	}

	e := estimate.Elasticity
	scenarios := make([]pricing.PriceScenario, len(prices))
	for i, price := range prices {
		revenueIndex := RevenueIndex(price, product.Price, e)
		profitIndex := ProfitIndex(price, product.Price, product.Cost, e)
		scenarios[i] = pricing.PriceScenario{
			ProductID:    product.ID,
			Index:        i,
			Price:        price,
			PctChange:    mathutil.PctChange(product.Price, price),
			Elasticity:   e,
			RevenueIndex: revenueIndex,
			ProfitIndex:  profitIndex,
			Revenue:      revenueIndex * product.Revenue,
			Profit:       profitIndex * product.Profit,
		}
	}

	return pricing.ScenarioGrid{
		Product:    product,
		Elasticity: estimate,
		Scenarios:  scenarios,
		Anchor:     AnchorIndex(scenarios),
	}, nil
}
