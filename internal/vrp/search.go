package vrp

import (
	"context"
	"math"
	"sort"
	"time"
)

const eps = 1e-9

type search struct {
	ctx      context.Context
	p        *Problem
	n        int
	deadline time.Time
	demand   []int64
	depot    []bool
	routes   [][]int
	loads    []int64
	skipped  []int
	pen      []int32
	lambda   float64
}

func newSearch(ctx context.Context, p *Problem, deadline time.Time) *search {
	s := &search{
		ctx:      ctx,
		p:        p,
		n:        p.NodeCount,
		deadline: deadline,
		demand:   make([]int64, p.NodeCount),
		depot:    make([]bool, p.NodeCount),
		routes:   make([][]int, p.Vehicles),
		loads:    make([]int64, p.Vehicles),
		pen:      make([]int32, p.NodeCount*p.NodeCount),
	}
	for v := 0; v < p.Vehicles; v++ {
		s.depot[p.Starts[v]], s.depot[p.Ends[v]] = true, true
	}
	for i := 0; i < s.n; i++ {
		if !s.depot[i] {
			s.demand[i] = p.Demand(i)
		}
	}
	return s
}

func (s *search) expired() bool {
	return !time.Now().Before(s.deadline) || s.ctx.Err() != nil
}

func (s *search) customerCount() int {
	c := 0
	for _, d := range s.depot {
		if !d {
			c++
		}
	}
	return c
}

// aug is the penalty-augmented arc cost used while descending.
func (s *search) aug(i, j int) float64 {
	return float64(s.p.ArcCost[i][j]) + s.lambda*float64(s.pen[i*s.n+j])
}

// at returns the node at position k of route v with index skip removed;
// -1 is the start depot and the reduced length is the end depot.
func (s *search) at(v int, r []int, k, skip int) int {
	size := len(r)
	if skip >= 0 {
		size--
	}
	if k < 0 {
		return s.p.Starts[v]
	}
	if k >= size {
		return s.p.Ends[v]
	}
	if skip >= 0 && k >= skip {
		k++
	}
	return r[k]
}

func (s *search) maxLoad() int64 {
	var m int64
	for _, l := range s.loads {
		m = max(m, l)
	}
	return m
}

// maxLoadWith is the largest load after vehicles v and w take new loads.
func (s *search) maxLoadWith(v int, lv int64, w int, lw int64) int64 {
	var m int64
	for i, l := range s.loads {
		switch i {
		case v:
			l = lv
		case w:
			l = lw
		}
		m = max(m, l)
	}
	return m
}

func (s *search) routeArcs(v int, r []int) int64 {
	prev := s.p.Starts[v]
	var total int64
	for _, u := range r {
		total += s.p.ArcCost[prev][u]
		prev = u
	}
	return total + s.p.ArcCost[prev][s.p.Ends[v]]
}

func (s *search) routeAug(v int, r []int) float64 {
	prev := s.p.Starts[v]
	total := 0.0
	for _, u := range r {
		total += s.aug(prev, u)
		prev = u
	}
	return total + s.aug(prev, s.p.Ends[v])
}

func (s *search) cost() int64 {
	var arcs int64
	for v, r := range s.routes {
		arcs += s.routeArcs(v, r)
	}
	return arcs + s.p.SpanCoefficient*s.maxLoad() + s.p.SkipPenalty*int64(len(s.skipped))
}

func (s *search) snapshot() Solution {
	sol := Solution{
		Routes:  make([][]int, len(s.routes)),
		Loads:   append([]int64(nil), s.loads...),
		MaxLoad: s.maxLoad(),
		Cost:    s.cost(),
		Skipped: append([]int(nil), s.skipped...),
	}
	for v, r := range s.routes {
		sol.Routes[v] = append([]int{}, r...)
		sol.ArcCost += s.routeArcs(v, r)
	}
	return sol
}

func insertAt(r []int, k, u int) []int {
	r = append(r, 0)
	copy(r[k+1:], r[k:])
	r[k] = u
	return r
}

func removeAt(r []int, k int) []int {
	return append(r[:k], r[k+1:]...)
}

type insertion struct {
	node, vehicle, pos int
	delta              float64
}

// cheapestInsertion finds the best feasible position for u; ok is false when no vehicle has room.
func (s *search) cheapestInsertion(u int) (insertion, bool) {
	cur := float64(s.p.SpanCoefficient * s.maxLoad())
	best := insertion{node: u, delta: math.Inf(1)}
	for v, r := range s.routes {
		lv := s.loads[v] + s.demand[u]
		if lv > s.p.Capacity[v] {
			continue
		}
		span := float64(s.p.SpanCoefficient*s.maxLoadWith(v, lv, -1, 0)) - cur
		for k := 0; k <= len(r); k++ {
			c, d := s.at(v, r, k-1, -1), s.at(v, r, k, -1)
			delta := s.aug(c, u) + s.aug(u, d) - s.aug(c, d) + span
			if delta < best.delta {
				best.vehicle, best.pos, best.delta = v, k, delta
			}
		}
	}
	return best, !math.IsInf(best.delta, 1)
}

func (s *search) insert(in insertion) {
	s.routes[in.vehicle] = insertAt(s.routes[in.vehicle], in.pos, in.node)
	s.loads[in.vehicle] += s.demand[in.node]
}

// construct builds the first solution by parallel cheapest insertion: every
// round inserts the globally cheapest (customer, vehicle, position). Customers
// that fit nowhere stay skipped. It returns false when the budget ran out first.
func (s *search) construct() bool {
	var pending []int
	for i := 0; i < s.n; i++ {
		if !s.depot[i] {
			pending = append(pending, i)
		}
	}
	for len(pending) > 0 {
		if s.expired() {
			return false
		}
		best, bi := insertion{delta: math.Inf(1)}, -1
		for i, u := range pending {
			if in, ok := s.cheapestInsertion(u); ok && in.delta < best.delta {
				best, bi = in, i
			}
		}
		if bi == -1 {
			s.skipped = append(s.skipped, pending...)
			break
		}
		s.insert(best)
		pending = append(pending[:bi], pending[bi+1:]...)
	}
	sort.Ints(s.skipped)
	return true
}

// descend applies first-improvement moves on the augmented cost until none is left.
func (s *search) descend() {
	for !s.expired() {
		if s.insertSkipped() || s.relocate() || s.exchange() || s.twoOpt() {
			continue
		}
		return
	}
}

func (s *search) insertSkipped() bool {
	for i, u := range s.skipped {
		if in, ok := s.cheapestInsertion(u); ok {
			s.insert(in)
			s.skipped = append(s.skipped[:i], s.skipped[i+1:]...)
			return true
		}
	}
	return false
}

// relocate moves one customer to another position on any route.
func (s *search) relocate() bool {
	cur := float64(s.p.SpanCoefficient * s.maxLoad())
	for v := range s.routes {
		if s.expired() {
			return false
		}
		r := s.routes[v]
		for i, u := range r {
			a, b := s.at(v, r, i-1, -1), s.at(v, r, i+1, -1)
			removal := s.aug(a, b) - s.aug(a, u) - s.aug(u, b)
			du := s.demand[u]
			for w, rw := range s.routes {
				skip, span := -1, 0.0
				if w == v {
					skip = i
				} else {
					lw := s.loads[w] + du
					if lw > s.p.Capacity[w] {
						continue
					}
					span = float64(s.p.SpanCoefficient*s.maxLoadWith(v, s.loads[v]-du, w, lw)) - cur
				}
				size := len(rw)
				if skip >= 0 {
					size--
				}
				for k := 0; k <= size; k++ {
					if w == v && k == i {
						continue
					}
					c, d := s.at(w, rw, k-1, skip), s.at(w, rw, k, skip)
					if removal+s.aug(c, u)+s.aug(u, d)-s.aug(c, d)+span < -eps {
						s.routes[v] = removeAt(s.routes[v], i)
						s.loads[v] -= du
						s.insert(insertion{node: u, vehicle: w, pos: k})
						return true
					}
				}
			}
		}
	}
	return false
}

// exchange swaps two customers on different routes.
func (s *search) exchange() bool {
	cur := float64(s.p.SpanCoefficient * s.maxLoad())
	for v := range s.routes {
		if s.expired() {
			return false
		}
		rv := s.routes[v]
		for w := v + 1; w < len(s.routes); w++ {
			rw := s.routes[w]
			for i, u := range rv {
				a, b := s.at(v, rv, i-1, -1), s.at(v, rv, i+1, -1)
				for j, x := range rw {
					lv := s.loads[v] - s.demand[u] + s.demand[x]
					lw := s.loads[w] - s.demand[x] + s.demand[u]
					if lv > s.p.Capacity[v] || lw > s.p.Capacity[w] {
						continue
					}
					c, d := s.at(w, rw, j-1, -1), s.at(w, rw, j+1, -1)
					delta := s.aug(a, x) + s.aug(x, b) - s.aug(a, u) - s.aug(u, b) +
						s.aug(c, u) + s.aug(u, d) - s.aug(c, x) - s.aug(x, d) +
						float64(s.p.SpanCoefficient*s.maxLoadWith(v, lv, w, lw)) - cur
					if delta < -eps {
						rv[i], rw[j] = x, u
						s.loads[v], s.loads[w] = lv, lw
						return true
					}
				}
			}
		}
	}
	return false
}

// twoOpt reverses a segment inside one route.
func (s *search) twoOpt() bool {
	for v, r := range s.routes {
		if s.expired() {
			return false
		}
		if len(r) < 3 {
			continue
		}
		before := s.routeAug(v, r)
		for i := 0; i < len(r)-1; i++ {
			for k := i + 1; k < len(r); k++ {
				reverse(r, i, k)
				if s.routeAug(v, r) < before-eps {
					return true
				}
				reverse(r, i, k)
			}
		}
	}
	return false
}

func reverse(r []int, i, k int) {
	for ; i < k; i, k = i+1, k-1 {
		r[i], r[k] = r[k], r[i]
	}
}

// penalize raises the penalty of the used arcs with the highest utility
// cost/(1+penalty). It returns false when no arc has positive utility.
func (s *search) penalize() bool {
	type arc struct{ i, j int }
	var used []arc
	for v, r := range s.routes {
		prev := s.p.Starts[v]
		for _, u := range r {
			used = append(used, arc{prev, u})
			prev = u
		}
		used = append(used, arc{prev, s.p.Ends[v]})
	}
	best := 0.0
	for _, a := range used {
		best = math.Max(best, float64(s.p.ArcCost[a.i][a.j])/float64(1+s.pen[a.i*s.n+a.j]))
	}
	if best <= 0 {
		return false
	}
	for _, a := range used {
		if float64(s.p.ArcCost[a.i][a.j])/float64(1+s.pen[a.i*s.n+a.j]) >= best-eps {
			s.pen[a.i*s.n+a.j]++
		}
	}
	return true
}
