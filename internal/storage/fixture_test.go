package storage

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/iwvelando/pricing-optimizer/pkg/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureYAML = `
products:
  - {category_id: sdr, upc_id: A, elasticity: -2.0, price: 10, volume: 100}
  - {category_id: sdr, upc_id: B, elasticity: -0.5, price: 5, volume: 100}
elasticities:
  - {category_id: snacks, upc_id: S1, elasticity: -1.2, ci_lower: -1.5, ci_upper: -0.9}
panel:
  - {category_id: snacks, upc_id: S1, week_id: 1, log_price: 1.0, log_sales: 4.0}
  - {category_id: snacks, upc_id: S1, week_id: 2, log_price: 1.1, log_sales: 3.9}
`

func TestParseFixture(t *testing.T) {
	ctx := context.Background()
	f, err := ParseFixture([]byte(fixtureYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"sdr", "snacks"}, f.Categories())

	estimates, err := f.Elasticities(ctx, "sdr")
	require.NoError(t, err)
	require.Len(t, estimates, 2)
	assert.Equal(t, -2.0, estimates[0].Elasticity)

	panel, err := f.Panel(ctx, "sdr")
	require.NoError(t, err)
	require.Len(t, panel, 2)
	assert.InDelta(t, 10.0, math.Exp(panel[0].LogPrice), 1e-9)
	assert.InDelta(t, 100.0, math.Exp(panel[0].LogVolume), 1e-9)

	snacks, err := f.Panel(ctx, "snacks")
	require.NoError(t, err)
	assert.Len(t, snacks, 2)

	e, err := f.Elasticity(ctx, "snacks", "S1")
	require.NoError(t, err)
	assert.Equal(t, -1.5, e.CILower)

	_, err = f.Elasticity(ctx, "snacks", "S2")
	assert.ErrorIs(t, err, pricing.ErrNotFound)
}

func TestParseFixtureErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"malformed", "products: [::"},
		{"missing id", "products:\n  - {category_id: sdr, price: 1, volume: 1}\n"},
		{"non-positive price", "products:\n  - {category_id: sdr, upc_id: A, price: 0, volume: 1}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFixture([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadFixtureAndSeed(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixtureYAML), 0o600))

	f, err := LoadFixture(path)
	require.NoError(t, err)

	s := newTestStore(t)
	require.NoError(t, f.Seed(ctx, s))

	estimates, err := s.Elasticities(ctx, "sdr")
	require.NoError(t, err)
	assert.Len(t, estimates, 2)

	panel, err := s.Panel(ctx, "snacks")
	require.NoError(t, err)
	assert.Len(t, panel, 2)

	_, err = LoadFixture(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFixtureHonoursCancellation(t *testing.T) {
	f, err := ParseFixture([]byte(fixtureYAML))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Panel(ctx, "sdr")
	assert.ErrorIs(t, err, context.Canceled)
}
