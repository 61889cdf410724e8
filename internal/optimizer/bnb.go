package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/iwvelando/pricing-optimizer/pkg/constants"
	"github.com/iwvelando/pricing-optimizer/pkg/mathutil"
	"github.com/iwvelando/pricing-optimizer/pkg/pricing"
	"go.uber.org/zap"
)

var (
	errNodeLimit = errors.New("node limit reached")
	errTimeLimit = errors.New("time limit reached")
	errFound     = errors.New("selection found")
)

const (
	// fracEps is the distance from 0 or 1 under which an LP value is integral.
	fracEps = 1e-7
	// ctxCheckInterval is how many nodes are explored between context checks.
	ctxCheckInterval = 64
)

// BranchAndBound is the bundled exact Solver. It explores the selection tree
// depth first, bounding every node with an LP relaxation and branching on the
// most fractional variable. Among optimal selections it returns the one whose
// per-product (|pct change|, grid index) keys are lexicographically smallest.
type BranchAndBound struct {
	bound  Bound
	logger *zap.Logger
}

// NewBranchAndBound returns a solver using bound for pruning; a nil bound
// defaults to HullBound.
func NewBranchAndBound(bound Bound, logger *zap.Logger) *BranchAndBound {
	if bound == nil {
		bound = HullBound{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BranchAndBound{bound: bound, logger: logger}
}

type search struct {
	ctx       context.Context
	p         *Problem
	bound     Bound
	inc       incremental
	allowed   [][]bool
	deadline  time.Time
	nodes     int
	nodeLimit int

	best    []int
	bestObj float64
	hasBest bool

	// When findAny is set the search stops at the first selection whose
	// profit reaches target.
	findAny bool
	target  float64
	found   []int
}

// Solve implements Solver.
func (b *BranchAndBound) Solve(ctx context.Context, p *Problem, opts Options) (*Solution, error) {
	started := time.Now()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("category %s: solve cancelled: %w", p.Category, err)
	}
	opts = opts.normalized()

	if maxRevenue := p.MaxRevenue(); !p.MeetsFloor(maxRevenue) {
		anchor := evaluate(p, p.AnchorChoice())
		err := &pricing.InfeasibleError{
			Category:      p.Category,
			Required:      p.RevenueFloor(),
			MaxAttainable: maxRevenue,
			AnchorRevenue: anchor.revenue,
		}
		b.logger.Warn("revenue floor cannot be met",
			zap.String("op", "optimizer.Solve"),
			zap.String("category", p.Category),
			zap.Float64("floor", err.Required),
			zap.Float64("maxRevenue", maxRevenue),
			zap.Float64("anchorRevenue", anchor.revenue),
		)
		return nil, err
	}

	bound := b.bound
	if _, ok := bound.(HullBound); ok {
		bound = newHullCache(len(p.Groups))
	}
	s := &search{
		ctx:       ctx,
		p:         p,
		bound:     bound,
		allowed:   make([][]bool, len(p.Groups)),
		deadline:  started.Add(opts.TimeLimit),
		nodeLimit: opts.NodeLimit,
	}
	s.inc, _ = bound.(incremental)
	for g, group := range p.Groups {
		s.allowed[g] = make([]bool, len(group.Items))
		for k := range s.allowed[g] {
			s.allowed[g][k] = true
		}
	}
	for _, seed := range [][]int{p.MaxProfitChoice(), p.AnchorChoice()} {
		if e := evaluate(p, seed); e.feasible() {
			s.offer(seed, e.profit)
		}
	}

	removed, err := s.fixByReducedCost()
	if err == nil {
		b.logger.Debug("root reduction",
			zap.String("op", "optimizer.Solve"),
			zap.String("category", p.Category),
			zap.Int("removed", removed),
			zap.Float64("incumbent", s.bestObj),
		)
		err = s.explore()
	}
	switch {
	case err == nil:
	case errors.Is(err, errNodeLimit), errors.Is(err, errTimeLimit):
		if !s.hasBest || !opts.AcceptSuboptimal {
			b.logger.Warn("solver limit reached",
				zap.String("op", "optimizer.Solve"),
				zap.String("category", p.Category),
				zap.Int("nodes", s.nodes),
				zap.Bool("incumbent", s.hasBest),
				zap.Error(err),
			)
			return nil, fmt.Errorf("category %s: %w: %v after %d nodes", p.Category, pricing.ErrSolverTimeout, err, s.nodes)
		}
		solution := s.solution(started)
		solution.Suboptimal = true
		b.logger.Warn("returning suboptimal incumbent",
			zap.String("op", "optimizer.Solve"),
			zap.String("category", p.Category),
			zap.Int("nodes", s.nodes),
			zap.Float64("objective", solution.Objective),
			zap.Error(err),
		)
		return solution, nil
	case ctx.Err() != nil:
		return nil, fmt.Errorf("category %s: solve cancelled: %w", p.Category, err)
	default:
		return nil, fmt.Errorf("category %s: %w", p.Category, err)
	}

	if !s.hasBest {
		return nil, &pricing.InfeasibleError{
			Category:      p.Category,
			Required:      p.RevenueFloor(),
			MaxAttainable: p.MaxRevenue(),
			AnchorRevenue: evaluate(p, p.AnchorChoice()).revenue,
		}
	}

	// A fresh node budget for tie-breaking; the deadline is shared.
	s.nodeLimit = s.nodes + opts.NodeLimit
	if _, err := s.fixByReducedCost(); err != nil {
		return nil, fmt.Errorf("category %s: %w", p.Category, err)
	}
	if err := s.canonicalize(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("category %s: solve cancelled: %w", p.Category, err)
		}
		if !errors.Is(err, errNodeLimit) && !errors.Is(err, errTimeLimit) {
			return nil, fmt.Errorf("category %s: %w", p.Category, err)
		}
		b.logger.Warn("tie-breaking stopped early; selection is optimal but may not be canonical",
			zap.String("op", "optimizer.Solve"),
			zap.String("category", p.Category),
			zap.Int("nodes", s.nodes),
			zap.Error(err),
		)
	}

	solution := s.solution(started)
	solution.Optimal = true
	b.logger.Info("optimization complete",
		zap.String("op", "optimizer.Solve"),
		zap.String("category", p.Category),
		zap.Int("products", len(p.Groups)),
		zap.Float64("objective", solution.Objective),
		zap.Float64("revenue", solution.Revenue),
		zap.Float64("floor", p.RevenueFloor()),
		zap.Float64("headroom", solution.Headroom(p)),
		zap.Int("nodes", solution.Nodes),
		zap.Duration("elapsed", solution.Elapsed),
	)
	return solution, nil
}

func (s *search) solution(started time.Time) *Solution {
	e := evaluate(s.p, s.best)
	return &Solution{
		Choice:    append([]int(nil), s.best...),
		Objective: e.profit,
		Revenue:   e.revenue,
		Nodes:     s.nodes,
		Elapsed:   time.Since(started),
	}
}

func (s *search) checkLimits() error {
	if s.nodes > s.nodeLimit {
		return errNodeLimit
	}
	if s.nodes%ctxCheckInterval == 0 {
		if err := s.ctx.Err(); err != nil {
			return err
		}
	}
	if time.Now().After(s.deadline) {
		return errTimeLimit
	}
	return nil
}

func objectiveTolerance(v float64) float64 {
	return constants.ObjectiveTolerance * mathutil.Scale(v)
}

func (s *search) prune(bound float64) bool {
	if s.findAny {
		return bound < s.target-objectiveTolerance(s.target)
	}
	return s.hasBest && bound <= s.bestObj+objectiveTolerance(s.bestObj)
}

func (s *search) offer(choice []int, profit float64) error {
	if s.findAny {
		if profit >= s.target-objectiveTolerance(s.target) {
			s.found = append([]int(nil), choice...)
			return errFound
		}
		return nil
	}
	if !s.hasBest || profit > s.bestObj+objectiveTolerance(s.bestObj) {
		s.best = append(s.best[:0], choice...)
		s.bestObj = profit
		s.hasBest = true
	}
	return nil
}

// touched reports a change to the allowed row of group g.
func (s *search) touched(g int) {
	if s.inc != nil {
		s.inc.Changed(g)
	}
}

// tryRounding offers the selection that takes, in every group, the
// highest-revenue item in the support of x. Revenue can only rise over the
// relaxation, so the selection meets the floor whenever the relaxation does.
func (s *search) tryRounding(x [][]float64) error {
	choice := roundUp(s.p, x)
	if e := evaluate(s.p, choice); e.feasible() {
		return s.offer(choice, e.profit)
	}
	return nil
}

// fixByReducedCost removes every item that cannot be part of a selection
// whose profit reaches the incumbent. The test is the Lagrangian bound of the
// floor at the root multiplier with the item fixed, which is valid for any
// non-negative multiplier. Items of tied selections are kept.
func (s *search) fixByReducedCost() (int, error) {
	relax, err := s.bound.Relax(s.p, s.allowed)
	if err != nil || !relax.Feasible {
		return 0, err
	}
	if err := s.tryRounding(relax.X); err != nil {
		return 0, err
	}
	if !s.hasBest {
		return 0, nil
	}

	lambda := relax.Multiplier
	ub := -lambda * (s.p.RevenueFloor() - s.p.FeasibilityTolerance())
	peaks := make([]float64, len(s.p.Groups))
	for g, group := range s.p.Groups {
		peaks[g] = math.Inf(-1)
		for k, it := range group.Items {
			if s.allowed[g][k] {
				peaks[g] = math.Max(peaks[g], it.Profit+lambda*it.Revenue)
			}
		}
		ub += peaks[g]
	}

	cutoff := s.bestObj - objectiveTolerance(s.bestObj)
	removed := 0
	for g, group := range s.p.Groups {
		changed := false
		for k, it := range group.Items {
			if s.allowed[g][k] && k != s.best[g] && ub-peaks[g]+it.Profit+lambda*it.Revenue < cutoff {
				s.allowed[g][k] = false
				changed = true
				removed++
			}
		}
		if changed {
			s.touched(g)
		}
	}
	return removed, nil
}

func (s *search) explore() error {
	s.nodes++
	if err := s.checkLimits(); err != nil {
		return err
	}

	relax, err := s.bound.Relax(s.p, s.allowed)
	if err != nil {
		return err
	}
	if !relax.Feasible || s.prune(relax.Value) {
		return nil
	}

	g, k, fractional := mostFractional(relax.X, s.allowed)
	if !fractional {
		choice := roundChoice(relax.X)
		if e := evaluate(s.p, choice); e.feasible() {
			return s.offer(choice, e.profit)
		}
		return nil
	}
	if err := s.tryRounding(relax.X); err != nil {
		return err
	}
	if s.prune(relax.Value) {
		return nil
	}

	saved := append([]bool(nil), s.allowed[g]...)
	for j := range s.allowed[g] {
		s.allowed[g][j] = j == k
	}
	s.touched(g)
	err = s.explore()
	copy(s.allowed[g], saved)
	s.touched(g)
	if err != nil {
		return err
	}

	s.allowed[g][k] = false
	s.touched(g)
	err = s.explore()
	s.allowed[g][k] = true
	s.touched(g)
	return err
}

// canonicalize walks the groups in order and, for each, fixes the most
// preferred candidate that still admits a selection with the optimal profit.
func (s *search) canonicalize() error {
	target := s.bestObj
	choice := append([]int(nil), s.best...)
	defer func() {
		s.best = choice
		s.bestObj = evaluate(s.p, choice).profit
	}()

	for g, group := range s.p.Groups {
		for _, k := range group.preferenceOrder() {
			if !s.allowed[g][k] {
				continue
			}
			saved := append([]bool(nil), s.allowed[g]...)
			for j := range s.allowed[g] {
				s.allowed[g][j] = j == k
			}
			s.touched(g)
			if k == choice[g] {
				break
			}

			found, err := s.findAtLeast(target)
			if err != nil {
				return err
			}
			if found != nil {
				choice = found
				break
			}
			copy(s.allowed[g], saved)
			s.touched(g)
		}
	}
	return nil
}

func (s *search) findAtLeast(target float64) ([]int, error) {
	s.findAny, s.target, s.found = true, target, nil
	defer func() { s.findAny = false }()

	err := s.explore()
	if errors.Is(err, errFound) {
		return s.found, nil
	}
	return nil, err
}

func mostFractional(x [][]float64, allowed [][]bool) (int, int, bool) {
	bg, bk := -1, -1
	bestDist := math.Inf(1)
	for g := range x {
		for k, v := range x[g] {
			if !allowed[g][k] || v <= fracEps || v >= 1-fracEps {
				continue
			}
			if d := math.Abs(v - 0.5); d < bestDist {
				bg, bk, bestDist = g, k, d
			}
		}
	}
	return bg, bk, bg >= 0
}

func roundChoice(x [][]float64) []int {
	choice := make([]int, len(x))
	for g := range x {
		for k, v := range x[g] {
			if v > x[g][choice[g]] {
				choice[g] = k
			}
		}
	}
	return choice
}

// roundUp picks, in every group, the highest-revenue item with positive
// weight in x.
func roundUp(p *Problem, x [][]float64) []int {
	choice := roundChoice(x)
	for g := range x {
		items := p.Groups[g].Items
		for k, v := range x[g] {
			if v > fracEps && items[k].Revenue > items[choice[g]].Revenue {
				choice[g] = k
			}
		}
	}
	return choice
}
