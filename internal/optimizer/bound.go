package optimizer

import (
	"container/heap"
	"math"
)

// Relaxation is the optimum of the LP relaxation of a node, where every
// x[g][k] may take any value in [0, 1] and each group sums to one.
type Relaxation struct {
	Feasible bool
	Value    float64
	X        [][]float64
	// Multiplier is the dual price of the revenue floor: the profit given up
	// per unit of revenue at the optimum. Zero when unknown or not binding.
	Multiplier float64
}

// Bound solves the LP relaxation of a problem restricted to the allowed items.
type Bound interface {
	Relax(p *Problem, allowed [][]bool) (Relaxation, error)
}

// incremental is a Bound that keeps per-group state between the nodes of one
// search. The search calls Changed whenever the allowed row of a group changes.
type incremental interface {
	Bound
	Changed(g int)
}

// HullBound solves the LP relaxation exactly. Starting from each group's most
// profitable allowed item it walks the upper concave hull of every group
// towards higher revenue, taking hull segments in decreasing order of
// profit per unit of revenue until the floor is met.
type HullBound struct{}

type segment struct {
	group    int
	from, to int
	revenue  float64
	profit   float64
	slope    float64
}

// groupHull is the LP view of one group: its most profitable allowed item
// and the hull edges leading from it towards higher revenue, by decreasing slope.
type groupHull struct {
	start    int
	segments []segment
}

func buildHull(g int, group Group, allowed []bool) (groupHull, bool) {
	best := -1
	for k, it := range group.Items {
		if !allowed[k] {
			continue
		}
		if best < 0 {
			best = k
			continue
		}
		b := group.Items[best]
		if it.Profit > b.Profit || (it.Profit == b.Profit && it.Revenue > b.Revenue) {
			best = k
		}
	}
	if best < 0 {
		return groupHull{}, false
	}
	return groupHull{start: best, segments: hullSegments(g, group, allowed, best)}, true
}

// Relax implements Bound.
func (HullBound) Relax(p *Problem, allowed [][]bool) (Relaxation, error) {
	hulls := make([]groupHull, len(p.Groups))
	for g, group := range p.Groups {
		h, ok := buildHull(g, group, allowed[g])
		if !ok {
			return Relaxation{}, nil
		}
		hulls[g] = h
	}
	return relaxHulls(p, hulls), nil
}

// hullCache is a HullBound for a single search. Hulls are built once per
// group and rebuilt only for groups reported through Changed.
type hullCache struct {
	hulls []groupHull
	ok    []bool
	stale []bool
}

func newHullCache(groups int) *hullCache {
	c := &hullCache{
		hulls: make([]groupHull, groups),
		ok:    make([]bool, groups),
		stale: make([]bool, groups),
	}
	for g := range c.stale {
		c.stale[g] = true
	}
	return c
}

// Changed implements incremental.
func (c *hullCache) Changed(g int) {
	c.stale[g] = true
}

// Relax implements Bound.
func (c *hullCache) Relax(p *Problem, allowed [][]bool) (Relaxation, error) {
	for g, group := range p.Groups {
		if c.stale[g] {
			c.hulls[g], c.ok[g] = buildHull(g, group, allowed[g])
			c.stale[g] = false
		}
		if !c.ok[g] {
			return Relaxation{}, nil
		}
	}
	return relaxHulls(p, c.hulls), nil
}

// relaxHulls runs the greedy over the hull segments of every group. Slopes
// fall along each group's hull, so a heap over the next segment of each group
// yields the segments in global slope order without sorting them all.
func relaxHulls(p *Problem, hulls []groupHull) Relaxation {
	x := make([][]float64, len(p.Groups))
	value, revenue := 0.0, 0.0
	for g, group := range p.Groups {
		x[g] = make([]float64, len(group.Items))
		start := hulls[g].start
		x[g][start] = 1
		value += group.Items[start].Profit
		revenue += group.Items[start].Revenue
	}

	tol := p.FeasibilityTolerance()
	need := p.RevenueFloor() - revenue
	if need <= tol {
		return Relaxation{Feasible: true, Value: value, X: x}
	}

	frontier := make(segmentHeap, 0, len(hulls))
	for g, h := range hulls {
		if len(h.segments) > 0 {
			frontier = append(frontier, hullCursor{group: g, slope: h.segments[0].slope})
		}
	}
	heap.Init(&frontier)

	multiplier := 0.0
	for need > tol && frontier.Len() > 0 {
		cur := &frontier[0]
		s := hulls[cur.group].segments[cur.next]
		t := 1.0
		if s.revenue > need {
			t = need / s.revenue
		}
		x[s.group][s.from] -= t
		x[s.group][s.to] += t
		value += t * s.profit
		need -= t * s.revenue
		multiplier = math.Max(0, -s.slope)

		cur.next++
		if cur.next < len(hulls[cur.group].segments) {
			cur.slope = hulls[cur.group].segments[cur.next].slope
			heap.Fix(&frontier, 0)
		} else {
			heap.Pop(&frontier)
		}
	}
	if need > tol {
		return Relaxation{}
	}
	return Relaxation{Feasible: true, Value: value, X: x, Multiplier: multiplier}
}

// hullCursor points at the next unused segment of a group's hull.
type hullCursor struct {
	group int
	next  int
	slope float64
}

// segmentHeap orders cursors by decreasing slope, then by group.
type segmentHeap []hullCursor

func (h segmentHeap) Len() int { return len(h) }
func (h segmentHeap) Less(i, j int) bool {
	if h[i].slope != h[j].slope {
		return h[i].slope > h[j].slope
	}
	return h[i].group < h[j].group
}
func (h segmentHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *segmentHeap) Push(v any)   { *h = append(*h, v.(hullCursor)) }
func (h *segmentHeap) Pop() any {
	old := *h
	v := old[len(old)-1]
	*h = old[:len(old)-1]
	return v
}

// hullSegments returns the edges of the upper concave hull of a group in
// (revenue, profit) space from the start item towards the highest revenue.
// Collinear points are skipped in favour of the farthest one.
func hullSegments(g int, group Group, allowed []bool, start int) []segment {
	var out []segment
	current := start
	for {
		cur := group.Items[current]
		next := -1
		bestSlope := 0.0
		for k, it := range group.Items {
			if !allowed[k] || it.Revenue <= cur.Revenue {
				continue
			}
			slope := (it.Profit - cur.Profit) / (it.Revenue - cur.Revenue)
			if next < 0 || slope > bestSlope || (slope == bestSlope && it.Revenue > group.Items[next].Revenue) {
				next = k
				bestSlope = slope
			}
		}
		if next < 0 {
			return out
		}
		out = append(out, segment{
			group:   g,
			from:    current,
			to:      next,
			revenue: group.Items[next].Revenue - cur.Revenue,
			profit:  group.Items[next].Profit - cur.Profit,
			slope:   bestSlope,
		})
		current = next
	}
}
