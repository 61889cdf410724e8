package baseline

import (
	"errors"
	"math"
	"testing"

	"github.com/iwvelando/pricing-optimizer/pkg/constants"
	"github.com/iwvelando/pricing-optimizer/pkg/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func obs(product string, week int, price, volume float64) pricing.PanelObservation {
	return pricing.PanelObservation{
		Category:  "sdr",
		ProductID: product,
		Period:    week,
		LogPrice:  math.Log(price),
		LogVolume: math.Log(volume),
	}
}

func est(product string, e float64) pricing.ElasticityEstimate {
	return pricing.ElasticityEstimate{Category: "sdr", ProductID: product, Elasticity: e}
}

func TestAggregateGeometricMeans(t *testing.T) {
	observations := []pricing.PanelObservation{
		obs("B", 1, 4, 50),
		obs("A", 1, 8, 50),
		obs("A", 2, 12.5, 200),
		obs("B", 2, 6.25, 200),
	}
	agg := NewAggregator(0.7, zap.NewNop())

	result, err := agg.Aggregate(observations, []pricing.ElasticityEstimate{est("B", -0.5), est("A", -2)})
	require.NoError(t, err)
	require.Len(t, result.Products, 2)
	assert.Empty(t, result.Exclusions)
	assert.Empty(t, result.Degenerate)

	a := result.Products[0]
	assert.Equal(t, "A", a.ID, "products are sorted by ID")
	assert.Equal(t, "sdr", a.Category)
	assert.InDelta(t, 10.0, a.Price, 1e-9)
	assert.InDelta(t, 100.0, a.Volume, 1e-9)
	assert.InDelta(t, 1000.0, a.Revenue, 1e-6)
	assert.InDelta(t, 7.0, a.Cost, 1e-9)
	assert.InDelta(t, 300.0, a.Profit, 1e-6)

	b := result.Products[1]
	assert.Equal(t, "B", b.ID)
	assert.InDelta(t, 5.0, b.Price, 1e-9)
	assert.InDelta(t, 500.0, b.Revenue, 1e-6)
	assert.InDelta(t, 150.0, b.Profit, 1e-6)
}

func TestAggregateMissingBaselineData(t *testing.T) {
	observations := []pricing.PanelObservation{
		obs("A", 1, 10, 100),
		{Category: "sdr", ProductID: "C", Period: 1, LogPrice: math.NaN(), LogVolume: 1},
	}
	agg := NewAggregator(0.7, nil)

	result, err := agg.Aggregate(observations, []pricing.ElasticityEstimate{est("A", -1), est("B", -1), est("C", -1)})
	require.NoError(t, err)

	require.Len(t, result.Products, 1)
	assert.Equal(t, "A", result.Products[0].ID)

	require.Len(t, result.Exclusions, 2)
	assert.Equal(t, "B", result.Exclusions[0].ProductID)
	assert.Equal(t, "C", result.Exclusions[1].ProductID)
	for _, exclusion := range result.Exclusions {
		assert.True(t, errors.Is(exclusion.Reason, pricing.ErrMissingBaselineData))
	}
}

func TestAggregateIgnoresProductsWithoutElasticity(t *testing.T) {
	observations := []pricing.PanelObservation{obs("A", 1, 10, 100), obs("Z", 1, 3, 3)}
	agg := NewAggregator(0.7, nil)

	result, err := agg.Aggregate(observations, []pricing.ElasticityEstimate{est("A", -1)})
	require.NoError(t, err)
	require.Len(t, result.Products, 1)
	assert.Equal(t, "A", result.Products[0].ID)
	assert.Empty(t, result.Exclusions)
}

func TestAggregateDegenerateMargin(t *testing.T) {
	agg := NewAggregator(1.2, nil)

	result, err := agg.Aggregate([]pricing.PanelObservation{obs("A", 1, 10, 100)}, []pricing.ElasticityEstimate{est("A", -1)})
	require.NoError(t, err)
	require.Len(t, result.Products, 1)
	assert.Equal(t, []string{"A"}, result.Degenerate)

	product := result.Products[0]
	assert.True(t, product.DegenerateMargin)
	assert.InDelta(t, constants.MarginEpsilon, product.Margin(), 1e-9)
	assert.InDelta(t, 100*constants.MarginEpsilon, product.Profit, 1e-6)
	assert.Greater(t, product.Profit, 0.0)
}

func TestAggregateRejectsInvalidMarginFraction(t *testing.T) {
	for _, fraction := range []float64{-0.1, math.NaN(), math.Inf(1)} {
		agg := NewAggregator(fraction, nil)
		_, err := agg.Aggregate(nil, nil)
		assert.True(t, errors.Is(err, pricing.ErrInvalidConfiguration), "fraction %v", fraction)
	}
}

func TestNewProduct(t *testing.T) {
	p := NewProduct("A", "sdr", 4, 25, 0.5)
	assert.Equal(t, 100.0, p.Revenue)
	assert.Equal(t, 2.0, p.Cost)
	assert.Equal(t, 50.0, p.Profit)
	assert.False(t, p.DegenerateMargin)

	zeroCost := NewProduct("B", "sdr", 4, 25, 0)
	assert.Equal(t, 0.0, zeroCost.Cost)
	assert.Equal(t, zeroCost.Revenue, zeroCost.Profit)
}
