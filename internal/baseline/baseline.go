// Package baseline derives the current state of each product (price, volume,
// revenue and profit) from its historical log-price and log-volume panel.
package baseline

import (
	"fmt"
	"math"
	"sort"

	"github.com/iwvelando/pricing-optimizer/pkg/constants"
	"github.com/iwvelando/pricing-optimizer/pkg/mathutil"
	"github.com/iwvelando/pricing-optimizer/pkg/pricing"
	"go.uber.org/zap"
)

// Result is the outcome of aggregating one category.
type Result struct {
	// Products holds one baseline per product that has both an elasticity
	// and at least one usable panel row, sorted by product ID.
	Products []pricing.Product
	// Exclusions lists products with an elasticity but no usable panel rows.
	Exclusions []pricing.Exclusion
	// Degenerate lists products whose margin was clamped to the epsilon.
	Degenerate []string
}

// Aggregator turns panel observations into product baselines.
type Aggregator struct {
	marginFraction float64
	logger         *zap.Logger
}

// NewAggregator returns an Aggregator assuming unit cost = marginFraction × price.
func NewAggregator(marginFraction float64, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{marginFraction: marginFraction, logger: logger}
}

type accumulator struct {
	sumLogPrice  float64
	sumLogVolume float64
	rows         int
}

// Aggregate computes baselines for every product that carries an elasticity
// estimate. Baseline price and volume are the exponentiated means of the log
// series (geometric means). Panel rows of products without an estimate are
// ignored; estimates without panel rows become exclusions wrapping
// pricing.ErrMissingBaselineData.
func (a *Aggregator) Aggregate(observations []pricing.PanelObservation, estimates []pricing.ElasticityEstimate) (*Result, error) {
	if !mathutil.IsFinite(a.marginFraction) || a.marginFraction < 0 {
		return nil, pricing.InvalidConfigurationf("margin fraction %v must be a non-negative number", a.marginFraction)
	}

	wanted := make(map[string]string, len(estimates))
	for _, est := range estimates {
		wanted[est.ProductID] = est.Category
	}

	sums := make(map[string]*accumulator, len(wanted))
	skipped := 0
	for _, obs := range observations {
		if _, ok := wanted[obs.ProductID]; !ok {
			continue
		}
		if !mathutil.IsFinite(obs.LogPrice) || !mathutil.IsFinite(obs.LogVolume) {
			skipped++
			continue
		}
		acc, ok := sums[obs.ProductID]
		if !ok {
			acc = &accumulator{}
			sums[obs.ProductID] = acc
		}
		acc.sumLogPrice += obs.LogPrice
		acc.sumLogVolume += obs.LogVolume
		acc.rows++
	}
	if skipped > 0 {
		a.logger.Debug("skipped non-finite panel rows",
			zap.String("op", "baseline.Aggregate"),
			zap.Int("rows", skipped),
		)
	}

	ids := make([]string, 0, len(wanted))
	for id := range wanted {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := &Result{}
	for _, id := range ids {
		acc, ok := sums[id]
		if !ok || acc.rows == 0 {
			result.Exclusions = append(result.Exclusions, pricing.Exclusion{
				ProductID: id,
				Reason:    fmt.Errorf("product %s: %w", id, pricing.ErrMissingBaselineData),
			})
			continue
		}

		n := float64(acc.rows)
		price := math.Exp(acc.sumLogPrice / n)
		volume := math.Exp(acc.sumLogVolume / n)
		if !mathutil.IsFinite(price) || !mathutil.IsFinite(volume) || price <= 0 {
			result.Exclusions = append(result.Exclusions, pricing.Exclusion{
				ProductID: id,
				Reason:    fmt.Errorf("product %s: baseline price %v is unusable: %w", id, price, pricing.ErrMissingBaselineData),
			})
			continue
		}

		product := NewProduct(id, wanted[id], price, volume, a.marginFraction)
		if product.DegenerateMargin {
			result.Degenerate = append(result.Degenerate, id)
			a.logger.Warn("non-positive baseline margin clamped",
				zap.String("op", "baseline.Aggregate"),
				zap.String("product", id),
				zap.Float64("price", price),
				zap.Float64("marginFraction", a.marginFraction),
				zap.Error(pricing.ErrDegenerateMargin),
			)
		}
		result.Products = append(result.Products, product)
	}

	return result, nil
}

// NewProduct builds a product baseline from its current price and volume.
// When marginFraction leaves no positive margin the cost is lowered so that
// Price-Cost equals constants.MarginEpsilon and DegenerateMargin is set.
func NewProduct(id, category string, price, volume, marginFraction float64) pricing.Product {
	cost := marginFraction * price
	degenerate := false
	if price-cost <= 0 {
		cost = price - constants.MarginEpsilon
		degenerate = true
	}
	return pricing.Product{
		ID:               id,
		Category:         category,
		Price:            price,
		Volume:           volume,
		Revenue:          volume * price,
		Profit:           volume * (price - cost),
		Cost:             cost,
		DegenerateMargin: degenerate,
	}
}
