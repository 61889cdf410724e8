package optimizer

import (
	"fmt"
	"math"
	"sort"

	"github.com/iwvelando/pricing-optimizer/pkg/constants"
	"github.com/iwvelando/pricing-optimizer/pkg/mathutil"
	"github.com/iwvelando/pricing-optimizer/pkg/pricing"
)

// Item is one candidate of a group: a price scenario with its absolute outcome.
type Item struct {
	Index     int
	PctChange float64
	Revenue   float64
	Profit    float64
}

// Group holds the candidates of one product; exactly one is chosen.
type Group struct {
	ProductID string
	Items     []Item
	// Anchor is the no-change candidate.
	Anchor int
}

// Problem is a multiple-choice knapsack with a single revenue floor:
// choose one item per group maximizing total profit subject to
// total revenue >= Threshold × BaselineRevenue.
type Problem struct {
	Category        string
	Groups          []Group
	BaselineRevenue float64
	Threshold       float64
}

// NewProblem builds the optimization instance of a category from its
// simulated scenario grids.
func NewProblem(category string, grids []pricing.ScenarioGrid, threshold float64) (*Problem, error) {
	p := &Problem{
		Category:  category,
		Groups:    make([]Group, 0, len(grids)),
		Threshold: threshold,
	}
	for _, grid := range grids {
		group := Group{
			ProductID: grid.Product.ID,
			Items:     make([]Item, len(grid.Scenarios)),
			Anchor:    grid.Anchor,
		}
		for i, s := range grid.Scenarios {
			group.Items[i] = Item{
				Index:     s.Index,
				PctChange: s.PctChange,
				Revenue:   s.Revenue,
				Profit:    s.Profit,
			}
		}
		p.Groups = append(p.Groups, group)
		p.BaselineRevenue += grid.Product.Revenue
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the structural assumptions of the solver.
func (p *Problem) Validate() error {
	if p == nil {
		return fmt.Errorf("problem cannot be nil")
	}
	if len(p.Groups) == 0 {
		return fmt.Errorf("category %s: no products to optimize", p.Category)
	}
	if !mathutil.IsFinite(p.Threshold) || p.Threshold <= 0 {
		return pricing.InvalidConfigurationf("revenue threshold %v must be positive", p.Threshold)
	}
	if !mathutil.IsFinite(p.BaselineRevenue) || p.BaselineRevenue < 0 {
		return fmt.Errorf("category %s: baseline revenue %v is not usable", p.Category, p.BaselineRevenue)
	}
	for _, g := range p.Groups {
		if len(g.Items) == 0 {
			return fmt.Errorf("product %s has no candidate prices", g.ProductID)
		}
		if g.Anchor < 0 || g.Anchor >= len(g.Items) {
			return fmt.Errorf("product %s anchor %d is out of range", g.ProductID, g.Anchor)
		}
		for _, it := range g.Items {
			if !mathutil.IsFinite(it.Revenue) || !mathutil.IsFinite(it.Profit) {
				return fmt.Errorf("product %s candidate %d has a non-finite outcome", g.ProductID, it.Index)
			}
		}
	}
	return nil
}

// RevenueFloor returns the minimum total revenue of a feasible selection.
func (p *Problem) RevenueFloor() float64 {
	return p.Threshold * p.BaselineRevenue
}

// FeasibilityTolerance is the absolute slack allowed below the revenue floor.
func (p *Problem) FeasibilityTolerance() float64 {
	return constants.FeasibilityTolerance * mathutil.Scale(p.RevenueFloor())
}

// MeetsFloor reports whether revenue satisfies the floor within tolerance.
func (p *Problem) MeetsFloor(revenue float64) bool {
	return revenue >= p.RevenueFloor()-p.FeasibilityTolerance()
}

// Evaluate returns the total revenue and profit of a selection given as one
// item position per group.
func (p *Problem) Evaluate(choice []int) (revenue, profit float64) {
	for g, k := range choice {
		item := p.Groups[g].Items[k]
		revenue += item.Revenue
		profit += item.Profit
	}
	return revenue, profit
}

// AnchorChoice selects the no-change candidate of every group.
func (p *Problem) AnchorChoice() []int {
	choice := make([]int, len(p.Groups))
	for g, group := range p.Groups {
		choice[g] = group.Anchor
	}
	return choice
}

// MaxProfitChoice selects each group's most profitable candidate, ignoring
// the floor. Ties prefer higher revenue, then the lower position.
func (p *Problem) MaxProfitChoice() []int {
	choice := make([]int, len(p.Groups))
	for g, group := range p.Groups {
		best := 0
		for k, it := range group.Items {
			b := group.Items[best]
			if it.Profit > b.Profit || (it.Profit == b.Profit && it.Revenue > b.Revenue) {
				best = k
			}
		}
		choice[g] = best
	}
	return choice
}

// MaxRevenue returns the largest revenue any selection can reach.
func (p *Problem) MaxRevenue() float64 {
	total := 0.0
	for _, group := range p.Groups {
		best := math.Inf(-1)
		for _, it := range group.Items {
			best = math.Max(best, it.Revenue)
		}
		total += best
	}
	return total
}

// preferenceOrder lists the positions of a group from most to least
// preferred on ties: smallest absolute change first, then lowest index.
func (g Group) preferenceOrder() []int {
	order := make([]int, len(g.Items))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return g.prefers(order[i], order[j])
	})
	return order
}

func (g Group) prefers(a, b int) bool {
	pa, pb := math.Abs(g.Items[a].PctChange), math.Abs(g.Items[b].PctChange)
	if pa != pb {
		return pa < pb
	}
	return g.Items[a].Index < g.Items[b].Index
}
