// Package testutil provides common utility functions for testing.
package testutil

import (
	"github.com/iwvelando/pricing-optimizer/pkg/pricing"
)

// FindRecommendation finds the recommendation of a product in the results slice.
// Returns a pointer to the recommendation if found, nil otherwise.
func FindRecommendation(recs []pricing.Recommendation, productID string) *pricing.Recommendation {
	for i := range recs {
		if recs[i].ProductID == productID {
			return &recs[i]
		}
	}
	return nil
}

// FindScenarioGrid finds the scenario grid of a product.
// Returns a pointer to the grid if found, nil otherwise.
func FindScenarioGrid(grids []pricing.ScenarioGrid, productID string) *pricing.ScenarioGrid {
	for i := range grids {
		if grids[i].Product.ID == productID {
			return &grids[i]
		}
	}
	return nil
}
