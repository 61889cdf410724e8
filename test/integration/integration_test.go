package integration

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"

	"github.com/iwvelando/pricing-optimizer/internal/config"
	"github.com/iwvelando/pricing-optimizer/internal/pipeline"
	"github.com/iwvelando/pricing-optimizer/internal/storage"
	"github.com/iwvelando/pricing-optimizer/pkg/output"
	"github.com/iwvelando/pricing-optimizer/pkg/pricing"
	"github.com/iwvelando/pricing-optimizer/pkg/testutil"
	"github.com/iwvelando/pricing-optimizer/pkg/validation"
	"go.uber.org/zap"
)

// setup loads the test configuration and seeds an in-memory store from the
// test fixture exactly as the seed command does.
func setup(t *testing.T) (*config.Configuration, *storage.SQLStore) {
	t.Helper()
	ctx := context.Background()

	conf, err := config.LoadConfiguration("../test_config.yaml")
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	if err := conf.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	fixture, err := storage.LoadFixture("../test_fixture.yaml")
	if err != nil {
		t.Fatalf("LoadFixture() error = %v", err)
	}
	v := validation.InputValidator{Elasticities: fixture.ElasticityRows, Panel: fixture.PanelRows}
	if warnings := v.ValidateAll(); len(warnings) != 0 {
		t.Fatalf("Expected a clean fixture, got warnings %v", warnings)
	}

	store, err := storage.Open(ctx, conf.Database.Driver, conf.Database.DSN, zap.NewNop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := fixture.Seed(ctx, store); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	return conf, store
}

// TestOptimizeConfiguredCategories runs every configured category end to end.
func TestOptimizeConfiguredCategories(t *testing.T) {
	ctx := context.Background()
	conf, store := setup(t)

	runner, err := pipeline.NewRunner(conf.Optimizer, pipeline.Dependencies{
		Source: store,
		Store:  store,
		Runs:   store,
		Logger: zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	categories := conf.Optimizer.CategoryList()
	if len(categories) != 2 {
		t.Fatalf("Expected 2 configured categories, got %v", categories)
	}
	reports, err := runner.RunAll(ctx, categories, conf.Pipeline.Parallelism)
	if err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}

	expectedProducts := map[string]int{"sdr": 2, "snacks": 3}
	for i, report := range reports {
		category := categories[i]
		if report.Run.Status != pricing.RunSucceeded {
			t.Errorf("%s: expected succeeded run, got %s", category, report.Run.Status)
		}
		if len(report.Recommendations) != expectedProducts[category] {
			t.Fatalf("%s: expected %d recommendations, got %d", category, expectedProducts[category], len(report.Recommendations))
		}
		if report.Summary.Revenue < report.Summary.Floor*(1-1e-9) {
			t.Errorf("%s: planned revenue %.4f is below floor %.4f", category, report.Summary.Revenue, report.Summary.Floor)
		}
		if report.Summary.Objective < report.Summary.BaselineProfit*(1-1e-9) {
			t.Errorf("%s: planned profit %.4f is below baseline %.4f", category, report.Summary.Objective, report.Summary.BaselineProfit)
		}
		for _, rec := range report.Recommendations {
			if rec.PctChange < conf.Optimizer.MinChangePct-1e-9 || rec.PctChange > conf.Optimizer.MaxChangePct+1e-9 {
				t.Errorf("%s/%s: change %.4f outside configured bounds", category, rec.ProductID, rec.PctChange)
			}
			if rec.RunID != report.Run.ID {
				t.Errorf("%s/%s: run id %q does not match run %q", category, rec.ProductID, rec.RunID, report.Run.ID)
			}
		}

		stored, err := store.Recommendations(ctx, category)
		if err != nil {
			t.Fatalf("Recommendations() error = %v", err)
		}
		if len(stored) != len(report.Recommendations) {
			t.Errorf("%s: stored %d recommendations, report has %d", category, len(stored), len(report.Recommendations))
		}
	}

	sdr := reports[0]
	a := testutil.FindRecommendation(sdr.Recommendations, "A")
	b := testutil.FindRecommendation(sdr.Recommendations, "B")
	if a == nil || b == nil {
		t.Fatalf("Expected recommendations for A and B, got %+v", sdr.Recommendations)
	}
	if math.Abs(a.RecommendedPrice-11) > 1e-9 || math.Abs(b.RecommendedPrice-5.5) > 1e-9 {
		t.Errorf("Expected A at 11 and B at 5.5, got %.2f and %.2f", a.RecommendedPrice, b.RecommendedPrice)
	}

	var buf bytes.Buffer
	if err := output.Write(&buf, conf.Output.Format, reports); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	for _, category := range categories {
		if !strings.Contains(buf.String(), "Recommendations for category "+category) {
			t.Errorf("Pretty output is missing category %s", category)
		}
	}
}

// TestRerunIsIdempotent checks that a second run replaces rather than appends.
func TestRerunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conf, store := setup(t)

	runner, err := pipeline.NewRunner(conf.Optimizer, pipeline.Dependencies{Source: store, Store: store, Runs: store, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	first, err := runner.Run(ctx, "snacks")
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	second, err := runner.Run(ctx, "snacks")
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	stored, err := store.Recommendations(ctx, "snacks")
	if err != nil {
		t.Fatalf("Recommendations() error = %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("Expected 3 stored recommendations after rerun, got %d", len(stored))
	}
	for i := range stored {
		if stored[i].RunID != second.Run.ID {
			t.Errorf("Stored row %s belongs to run %s, want %s", stored[i].ProductID, stored[i].RunID, second.Run.ID)
		}
		if stored[i].RecommendedPrice != first.Recommendations[i].RecommendedPrice {
			t.Errorf("Rerun changed the price of %s", stored[i].ProductID)
		}
	}

	runs, err := store.Runs(ctx, "snacks", 0)
	if err != nil {
		t.Fatalf("Runs() error = %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("Expected 2 audited runs, got %d", len(runs))
	}
}

// TestSimulateScenarioGrid checks the simulated grid of a multi-week product.
func TestSimulateScenarioGrid(t *testing.T) {
	conf, store := setup(t)

	runner, err := pipeline.NewRunner(conf.Optimizer, pipeline.Dependencies{Source: store, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	report, err := runner.Simulate(context.Background(), "snacks")
	if err != nil {
		t.Fatalf("Simulate() error = %v", err)
	}

	grid := testutil.FindScenarioGrid(report.Scenarios, "S3")
	if grid == nil {
		t.Fatalf("Expected a scenario grid for S3")
	}
	if len(grid.Scenarios) != conf.Optimizer.Steps {
		t.Fatalf("Expected %d scenarios, got %d", conf.Optimizer.Steps, len(grid.Scenarios))
	}
	anchor := grid.Scenarios[grid.Anchor]
	if math.Abs(anchor.RevenueIndex-1) > 1e-9 || math.Abs(anchor.ProfitIndex-1) > 1e-9 {
		t.Errorf("Anchor indices should be 1, got %.6f and %.6f", anchor.RevenueIndex, anchor.ProfitIndex)
	}
	// S3 is elastic, so revenue falls as price rises.
	for i := 1; i < len(grid.Scenarios); i++ {
		if grid.Scenarios[i].RevenueIndex >= grid.Scenarios[i-1].RevenueIndex {
			t.Errorf("Revenue index of S3 should decrease with price at step %d", i)
		}
	}
}
