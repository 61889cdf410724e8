// Package storage reads the elasticity catalog and historical panel that feed
// an optimization run and persists the resulting recommendations.
package storage

import (
	"context"

	"github.com/iwvelando/pricing-optimizer/pkg/pricing"
)

// ElasticitySource returns the calibrated elasticities of a category.
type ElasticitySource interface {
	Elasticities(ctx context.Context, category string) ([]pricing.ElasticityEstimate, error)
}

// PanelSource returns the historical log-price and log-volume rows of a category.
type PanelSource interface {
	Panel(ctx context.Context, category string) ([]pricing.PanelObservation, error)
}

// Source is a complete input provider for the pipeline.
type Source interface {
	ElasticitySource
	PanelSource
}

// ElasticityLookup resolves the elasticity of a single product. It returns
// pricing.ErrNotFound when the product has no estimate.
type ElasticityLookup interface {
	Elasticity(ctx context.Context, category, productID string) (*pricing.ElasticityEstimate, error)
}

// Catalog is a Source that also answers single-product lookups.
type Catalog interface {
	Source
	ElasticityLookup
}

// RecommendationStore persists the recommendations of a category.
type RecommendationStore interface {
	// ReplaceRecommendations atomically swaps every stored recommendation of
	// the category for recs.
	ReplaceRecommendations(ctx context.Context, category string, recs []pricing.Recommendation) error
	Recommendations(ctx context.Context, category string) ([]pricing.Recommendation, error)
	// Recommendation returns pricing.ErrNotFound when no row matches.
	Recommendation(ctx context.Context, category, productID string) (*pricing.Recommendation, error)
}

// RunLog keeps the audit trail of optimization runs.
type RunLog interface {
	RecordRun(ctx context.Context, run pricing.Run) error
	Runs(ctx context.Context, category string, limit int) ([]pricing.Run, error)
}
