// Package pipeline runs the optimization of a category end to end: it loads
// the elasticity catalog and the panel, derives baselines, simulates the
// candidate prices, solves the assortment problem and persists the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/iwvelando/pricing-optimizer/internal/baseline"
	"github.com/iwvelando/pricing-optimizer/internal/config"
	"github.com/iwvelando/pricing-optimizer/internal/optimizer"
	"github.com/iwvelando/pricing-optimizer/internal/simulation"
	"github.com/iwvelando/pricing-optimizer/internal/storage"
	"github.com/iwvelando/pricing-optimizer/pkg/optimization"
	"github.com/iwvelando/pricing-optimizer/pkg/pricing"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Dependencies are the collaborators of a Runner. Store and Runs are
// optional: without a Store nothing is persisted, without Runs no audit
// row is written. A nil Solver is built from the configured bound.
type Dependencies struct {
	Source storage.Source
	Store  storage.RecommendationStore
	Runs   storage.RunLog
	Solver optimizer.Solver
	Logger *zap.Logger
}

// Runner executes category runs with one optimizer configuration.
type Runner struct {
	cfg    config.OptimizerConfig
	source storage.Source
	store  storage.RecommendationStore
	runs   storage.RunLog
	solver optimizer.Solver
	logger *zap.Logger

	now   func() time.Time
	newID func() string
}

// Report is everything a run produced.
type Report struct {
	Run             pricing.Run
	Recommendations []pricing.Recommendation
	Exclusions      []pricing.Exclusion
	Degenerate      []string
	Scenarios       []pricing.ScenarioGrid
	Summary         optimization.Summary
}

// NewRunner validates cfg and returns a Runner. Invalid configuration is
// rejected here, before any I/O.
func NewRunner(cfg config.OptimizerConfig, deps Dependencies) (*Runner, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Source == nil {
		return nil, fmt.Errorf("pipeline requires an input source")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	solver := deps.Solver
	if solver == nil {
		var err error
		if solver, err = optimizer.NewSolver(cfg.Bound, logger); err != nil {
			return nil, err
		}
	}
	return &Runner{
		cfg:    cfg,
		source: deps.Source,
		store:  deps.Store,
		runs:   deps.Runs,
		solver: solver,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}, nil
}

func (r *Runner) grid() simulation.GridOptions {
	return simulation.GridOptions{
		MinChangePct:   r.cfg.MinChangePct,
		MaxChangePct:   r.cfg.MaxChangePct,
		Steps:          r.cfg.Steps,
		IncludeCurrent: r.cfg.IncludeCurrent,
	}
}

// Simulate loads a category and evaluates every candidate price without
// solving or persisting anything.
func (r *Runner) Simulate(ctx context.Context, category string) (*Report, error) {
	report := &Report{Run: pricing.Run{Category: category}}
	if err := r.prepare(ctx, category, report); err != nil {
		return nil, err
	}
	report.Summary = summarize(report, nil, nil)
	return report, nil
}

// Run optimizes a category. Recommendations are persisted only after the
// solver has returned a valid selection; a failed, infeasible or cancelled
// run leaves the stored recommendations untouched. The returned Report is
// non-nil even on error and carries the audit record.
func (r *Runner) Run(ctx context.Context, category string) (*Report, error) {
	report := &Report{Run: pricing.Run{
		ID:        r.newID(),
		Category:  category,
		StartedAt: r.now(),
	}}

	err := r.run(ctx, category, report)
	r.finish(ctx, report, err)
	return report, err
}

func (r *Runner) run(ctx context.Context, category string, report *Report) error {
	if err := r.prepare(ctx, category, report); err != nil {
		return err
	}
	report.Summary = summarize(report, nil, nil)

	problem, err := optimizer.NewProblem(category, report.Scenarios, r.cfg.MinRevenuePct)
	if err != nil {
		return err
	}
	solution, err := r.solver.Solve(ctx, problem, optimizer.Options{
		TimeLimit:        r.cfg.TimeLimit,
		NodeLimit:        r.cfg.NodeLimit,
		AcceptSuboptimal: r.cfg.AcceptSuboptimal,
	})
	if err != nil {
		return err
	}

	report.Recommendations = recommendations(report.Scenarios, solution.Choice, report.Run.ID)
	report.Summary = summarize(report, problem, solution)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("category %s: run cancelled before persisting: %w", category, err)
	}
	if r.store != nil {
		if err := r.store.ReplaceRecommendations(ctx, category, report.Recommendations); err != nil {
			return fmt.Errorf("category %s: persisting recommendations: %w", category, err)
		}
	}
	return nil
}

// prepare loads the inputs of a category and fills the baseline and scenario
// parts of report.
func (r *Runner) prepare(ctx context.Context, category string, report *Report) error {
	if err := config.ValidateCategory(category); err != nil {
		return err
	}

	estimates, err := r.source.Elasticities(ctx, category)
	if err != nil {
		return fmt.Errorf("category %s: loading elasticities: %w", category, err)
	}
	if len(estimates) == 0 {
		return fmt.Errorf("category %s has no elasticity estimates: %w", category, pricing.ErrMissingBaselineData)
	}
	panel, err := r.source.Panel(ctx, category)
	if err != nil {
		return fmt.Errorf("category %s: loading panel: %w", category, err)
	}

	base, err := baseline.NewAggregator(r.cfg.MarginFraction, r.logger).Aggregate(panel, estimates)
	if err != nil {
		return fmt.Errorf("category %s: %w", category, err)
	}
	report.Exclusions = append(report.Exclusions, base.Exclusions...)
	report.Degenerate = base.Degenerate

	byProduct := make(map[string]pricing.ElasticityEstimate, len(estimates))
	for _, e := range estimates {
		byProduct[e.ProductID] = e
	}
	grids, exclusions, err := simulation.NewSimulator(r.grid(), r.logger).Simulate(base.Products, byProduct)
	if err != nil {
		return fmt.Errorf("category %s: %w", category, err)
	}
	report.Exclusions = append(report.Exclusions, exclusions...)
	sort.SliceStable(report.Exclusions, func(i, j int) bool {
		return report.Exclusions[i].ProductID < report.Exclusions[j].ProductID
	})
	report.Scenarios = grids

	for _, ex := range report.Exclusions {
		r.logger.Warn("product excluded",
			zap.String("op", "pipeline.Run"),
			zap.String("category", category),
			zap.String("product", ex.ProductID),
			zap.Error(ex.Reason),
		)
	}
	if len(grids) == 0 {
		return fmt.Errorf("category %s: no product has both an elasticity and baseline data: %w", category, pricing.ErrMissingBaselineData)
	}
	return nil
}

func (r *Runner) finish(ctx context.Context, report *Report, err error) {
	run := &report.Run
	run.FinishedAt = r.now()
	run.Status = Status(err)
	run.Products = len(report.Scenarios)
	run.Excluded = len(report.Exclusions)
	run.BaselineRevenue = report.Summary.BaselineRevenue
	run.BaselineProfit = report.Summary.BaselineProfit
	run.Revenue = report.Summary.Revenue
	run.Objective = report.Summary.Objective
	run.Nodes = report.Summary.Nodes
	run.Suboptimal = report.Summary.Suboptimal
	if err != nil {
		run.Message = err.Error()
	}

	fields := []zap.Field{
		zap.String("op", "pipeline.Run"),
		zap.String("category", run.Category),
		zap.String("runID", run.ID),
		zap.String("status", string(run.Status)),
		zap.Duration("elapsed", run.FinishedAt.Sub(run.StartedAt)),
	}
	if err != nil {
		r.logger.Error("run failed", append(fields, zap.Error(err))...)
	} else {
		r.logger.Info("run complete", append(fields,
			zap.Int("products", run.Products),
			zap.Int("excluded", run.Excluded),
			zap.Float64("baselineRevenue", run.BaselineRevenue),
			zap.Float64("revenue", run.Revenue),
			zap.Float64("revenueChange", report.Summary.RevenueChange()),
			zap.Float64("objective", run.Objective),
			zap.Float64("profitLift", report.Summary.ProfitLift()),
		)...)
	}

	if r.runs == nil {
		return
	}
	// The audit row is written even when the run itself was cancelled.
	if auditErr := r.runs.RecordRun(context.WithoutCancel(ctx), *run); auditErr != nil {
		r.logger.Error("recording run failed",
			zap.String("op", "pipeline.Run"),
			zap.String("runID", run.ID),
			zap.Error(auditErr),
		)
	}
}

// Status maps a run error to its audit status.
func Status(err error) pricing.RunStatus {
	switch {
	case err == nil:
		return pricing.RunSucceeded
	case errors.Is(err, pricing.ErrInfeasible):
		return pricing.RunInfeasible
	case errors.Is(err, pricing.ErrSolverTimeout):
		return pricing.RunTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return pricing.RunCancelled
	default:
		return pricing.RunFailed
	}
}

// recommendations carries unrounded amounts so stored rows agree with the
// solution. Rounding to cents happens only when rendering.
func recommendations(grids []pricing.ScenarioGrid, choice []int, runID string) []pricing.Recommendation {
	recs := make([]pricing.Recommendation, len(grids))
	for g, grid := range grids {
		s := grid.Scenarios[choice[g]]
		recs[g] = pricing.Recommendation{
			Category:         grid.Product.Category,
			ProductID:        grid.Product.ID,
			BaselinePrice:    grid.Product.Price,
			RecommendedPrice: s.Price,
			PctChange:        s.PctChange,
			PredictedRevenue: s.Revenue,
			PredictedProfit:  s.Profit,
			Elasticity:       grid.Elasticity.Elasticity,
			RunID:            runID,
		}
	}
	return recs
}

func summarize(report *Report, problem *optimizer.Problem, solution *optimizer.Solution) optimization.Summary {
	s := optimization.Summary{
		Category: report.Run.Category,
		Products: len(report.Scenarios),
		Excluded: len(report.Exclusions),
	}
	for _, grid := range report.Scenarios {
		s.BaselineRevenue += grid.Product.Revenue
		s.BaselineProfit += grid.Product.Profit
	}
	for _, id := range report.Degenerate {
		s.Notes = append(s.Notes, fmt.Sprintf("margin of %s clamped to the minimum", id))
	}
	if problem == nil || solution == nil {
		return s
	}
	s.Floor = problem.RevenueFloor()
	s.Revenue = solution.Revenue
	s.Objective = solution.Objective
	s.Headroom = solution.Headroom(problem)
	s.Nodes = solution.Nodes
	s.Optimal = solution.Optimal
	s.Suboptimal = solution.Suboptimal
	if s.Suboptimal {
		s.Notes = append(s.Notes, "solver limit reached; selection is the best found, not proven optimal")
	}
	return s
}

// RunAll optimizes categories concurrently, at most parallelism at a time.
// Reports are returned in input order. The first failure cancels the runs
// still in flight; reports of runs that did finish are still returned.
func (r *Runner) RunAll(ctx context.Context, categories []string, parallelism int) ([]*Report, error) {
	if parallelism <= 0 {
		parallelism = 1
	}
	reports := make([]*Report, len(categories))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, category := range categories {
		i, category := i, category
		g.Go(func() error {
			report, err := r.Run(gctx, category)
			reports[i] = report
			return err
		})
	}
	err := g.Wait()
	return reports, err
}
