package storage

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/iwvelando/pricing-optimizer/pkg/pricing"
	"gopkg.in/yaml.v3"
)

// FixtureProduct is a shorthand for a product with one baseline period:
// it expands into a catalog row and a single panel row at Price and Volume.
type FixtureProduct struct {
	Category   string  `yaml:"category_id"`
	ProductID  string  `yaml:"upc_id"`
	Elasticity float64 `yaml:"elasticity"`
	Price      float64 `yaml:"price"`
	Volume     float64 `yaml:"volume"`
}

// Fixture is an in-memory Source loaded from YAML. It backs the command line
// when no database has been seeded and is used to seed one.
type Fixture struct {
	ElasticityRows []pricing.ElasticityEstimate `yaml:"elasticities"`
	PanelRows      []pricing.PanelObservation   `yaml:"panel"`
	Products       []FixtureProduct             `yaml:"products"`
}

// LoadFixture reads and expands a YAML fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading fixture %s: %w", path, err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes a YAML fixture document.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("error decoding fixture: %w", err)
	}
	if err := f.expand(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *Fixture) expand() error {
	for _, p := range f.Products {
		if p.Category == "" || p.ProductID == "" {
			return fmt.Errorf("fixture product needs category_id and upc_id")
		}
		if p.Price <= 0 || p.Volume <= 0 {
			return fmt.Errorf("fixture product %s/%s: price and volume must be positive", p.Category, p.ProductID)
		}
		f.ElasticityRows = append(f.ElasticityRows, pricing.ElasticityEstimate{
			Category:   p.Category,
			ProductID:  p.ProductID,
			Elasticity: p.Elasticity,
		})
		f.PanelRows = append(f.PanelRows, pricing.PanelObservation{
			Category:  p.Category,
			ProductID: p.ProductID,
			Period:    1,
			LogPrice:  math.Log(p.Price),
			LogVolume: math.Log(p.Volume),
		})
	}
	f.Products = nil
	return nil
}

// Categories returns the distinct categories in the catalog, sorted.
func (f *Fixture) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range f.ElasticityRows {
		if !seen[e.Category] {
			seen[e.Category] = true
			out = append(out, e.Category)
		}
	}
	sort.Strings(out)
	return out
}

// Elasticities implements ElasticitySource.
func (f *Fixture) Elasticities(ctx context.Context, category string) ([]pricing.ElasticityEstimate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []pricing.ElasticityEstimate
	for _, e := range f.ElasticityRows {
		if e.Category == category {
			out = append(out, e)
		}
	}
	return out, nil
}

// Elasticity implements ElasticityLookup.
func (f *Fixture) Elasticity(ctx context.Context, category, productID string) (*pricing.ElasticityEstimate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, e := range f.ElasticityRows {
		if e.Category == category && e.ProductID == productID {
			e := e
			return &e, nil
		}
	}
	return nil, fmt.Errorf("elasticity %s/%s: %w", category, productID, pricing.ErrNotFound)
}

// Panel implements PanelSource.
func (f *Fixture) Panel(ctx context.Context, category string) ([]pricing.PanelObservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []pricing.PanelObservation
	for _, o := range f.PanelRows {
		if o.Category == category {
			out = append(out, o)
		}
	}
	return out, nil
}

// Seed writes the fixture into a SQL store.
func (f *Fixture) Seed(ctx context.Context, s *SQLStore) error {
	if err := s.SeedElasticities(ctx, f.ElasticityRows); err != nil {
		return err
	}
	return s.SeedPanel(ctx, f.PanelRows)
}

var _ Catalog = (*Fixture)(nil)
