package testutil

import (
	"testing"

	"github.com/iwvelando/pricing-optimizer/pkg/pricing"
)

func TestFindRecommendation(t *testing.T) {
	recs := []pricing.Recommendation{
		{Category: "sdr", ProductID: "A", RecommendedPrice: 11},
		{Category: "sdr", ProductID: "B", RecommendedPrice: 5.5},
	}

	tests := []struct {
		name        string
		productID   string
		expectFound bool
		expectPrice float64
	}{
		{name: "Find first product", productID: "A", expectFound: true, expectPrice: 11},
		{name: "Find second product", productID: "B", expectFound: true, expectPrice: 5.5},
		{name: "Missing product", productID: "Z"},
		{name: "Empty product id", productID: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FindRecommendation(recs, tt.productID)
			if !tt.expectFound {
				if result != nil {
					t.Errorf("FindRecommendation(%q) expected nil, got %+v", tt.productID, result)
				}
				return
			}
			if result == nil {
				t.Fatalf("FindRecommendation(%q) returned nil", tt.productID)
			}
			if result.RecommendedPrice != tt.expectPrice {
				t.Errorf("FindRecommendation(%q) price = %v, want %v", tt.productID, result.RecommendedPrice, tt.expectPrice)
			}
		})
	}

	// The returned pointer aliases the slice element.
	FindRecommendation(recs, "A").RunID = "run-1"
	if recs[0].RunID != "run-1" {
		t.Error("FindRecommendation should return a pointer into the slice")
	}

	if FindRecommendation(nil, "A") != nil {
		t.Error("FindRecommendation on nil slice should return nil")
	}
}

func TestFindScenarioGrid(t *testing.T) {
	grids := []pricing.ScenarioGrid{
		{Product: pricing.Product{ID: "A", Price: 10}, Anchor: 1},
		{Product: pricing.Product{ID: "B", Price: 5}, Anchor: 2},
	}

	grid := FindScenarioGrid(grids, "B")
	if grid == nil || grid.Anchor != 2 {
		t.Fatalf("FindScenarioGrid(B) = %+v, want anchor 2", grid)
	}
	if FindScenarioGrid(grids, "C") != nil {
		t.Error("FindScenarioGrid(C) should return nil")
	}
}
