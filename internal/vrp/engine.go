// Package vrp is a small multi-depot vehicle routing solver over integer arc
// costs with a single unary capacity dimension.
package vrp

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoSolution means no assignment visiting every node within capacity was found in the budget.
	ErrNoSolution = errors.New("vrp: no feasible solution within time budget")
	// ErrInvalidProblem reports a malformed model.
	ErrInvalidProblem = errors.New("vrp: invalid problem")
)

const (
	DefaultSkipPenalty       = 1_000_000
	DefaultLambdaCoefficient = 0.1
)

// Problem is a routing model. Nodes listed in Starts or Ends are depots; every
// other node is a customer that must be visited once.
type Problem struct {
	NodeCount int
	Vehicles  int
	Starts    []int
	Ends      []int
	// ArcCost[i][j] is the cost of driving from node i to node j.
	ArcCost [][]int64
	// Demand is the unary consumption of a node, accumulated along a route.
	Demand   func(node int) int64
	Capacity []int64
	// SkipPenalty is charged per unvisited customer.
	SkipPenalty int64
	// SpanCoefficient weights the largest route load in the objective.
	SpanCoefficient   int64
	TimeBudget        time.Duration
	IterationsLimit   int
	LambdaCoefficient float64
}

func (p *Problem) validate() error {
	switch {
	case p.NodeCount <= 0:
		return fmt.Errorf("%w: node count %d", ErrInvalidProblem, p.NodeCount)
	case p.Vehicles <= 0:
		return fmt.Errorf("%w: vehicle count %d", ErrInvalidProblem, p.Vehicles)
	case len(p.Starts) != p.Vehicles || len(p.Ends) != p.Vehicles || len(p.Capacity) != p.Vehicles:
		return fmt.Errorf("%w: starts, ends and capacity need one entry per vehicle", ErrInvalidProblem)
	case len(p.ArcCost) != p.NodeCount:
		return fmt.Errorf("%w: arc matrix has %d rows", ErrInvalidProblem, len(p.ArcCost))
	case p.Demand == nil:
		return fmt.Errorf("%w: missing demand callback", ErrInvalidProblem)
	}
	for i, row := range p.ArcCost {
		if len(row) != p.NodeCount {
			return fmt.Errorf("%w: arc row %d has %d columns", ErrInvalidProblem, i, len(row))
		}
	}
	for v := 0; v < p.Vehicles; v++ {
		if p.Starts[v] < 0 || p.Starts[v] >= p.NodeCount || p.Ends[v] < 0 || p.Ends[v] >= p.NodeCount {
			return fmt.Errorf("%w: vehicle %d depot out of range", ErrInvalidProblem, v)
		}
	}
	return nil
}

// Solution is one visitation order per vehicle, customers only.
type Solution struct {
	Routes  [][]int `json:"routes"`
	Loads   []int64 `json:"loads"`
	ArcCost int64   `json:"arcCost"`
	MaxLoad int64   `json:"maxLoad"`
	Cost    int64   `json:"cost"`
	Skipped []int   `json:"skipped,omitempty"`
}

// Metrics describe a solve.
type Metrics struct {
	Iterations     int           `json:"iterations"`
	LocalOptima    int           `json:"localOptima"`
	Improvements   int           `json:"improvements"`
	PenaltyUpdates int           `json:"penaltyUpdates"`
	InitialCost    int64         `json:"initialCost"`
	BestCost       int64         `json:"bestCost"`
	Elapsed        time.Duration `json:"elapsedNs"`
}

// Solver is the routing contract the planner depends on.
type Solver interface {
	Solve(ctx context.Context, p Problem) (Solution, Metrics, error)
}

// Engine is the built-in solver: parallel cheapest insertion followed by
// guided local search until the budget runs out.
type Engine struct{}

func (Engine) Solve(ctx context.Context, p Problem) (Solution, Metrics, error) { return Solve(ctx, p) }

// Solve runs the engine. It blocks for at most about TimeBudget and returns
// the best solution found; a solution that still skips customers comes back
// together with ErrNoSolution.
func Solve(ctx context.Context, p Problem) (Solution, Metrics, error) {
	began := time.Now()
	if err := p.validate(); err != nil {
		return Solution{}, Metrics{}, err
	}
	if p.SkipPenalty <= 0 {
		p.SkipPenalty = DefaultSkipPenalty
	}
	if p.SpanCoefficient <= 0 {
		p.SpanCoefficient = 1
	}
	if p.LambdaCoefficient <= 0 {
		p.LambdaCoefficient = DefaultLambdaCoefficient
	}
	s := newSearch(ctx, &p, began.Add(p.TimeBudget))
	var m Metrics
	if !s.construct() {
		m.Elapsed = time.Since(began)
		return Solution{}, m, ErrNoSolution
	}
	m.InitialCost = s.cost()
	best := s.snapshot()
	m.BestCost = best.Cost
	for !s.expired() {
		if p.IterationsLimit > 0 && m.Iterations >= p.IterationsLimit {
			break
		}
		m.Iterations++
		s.descend()
		m.LocalOptima++
		if c := s.cost(); c < best.Cost {
			best = s.snapshot()
			m.BestCost = c
			m.Improvements++
		}
		if s.lambda == 0 {
			s.lambda = p.LambdaCoefficient * float64(s.cost()) / float64(max(1, s.customerCount()))
			if s.lambda == 0 {
				s.lambda = p.LambdaCoefficient
			}
		}
		if !s.penalize() {
			break
		}
		m.PenaltyUpdates++
	}
	m.Elapsed = time.Since(began)
	if len(best.Skipped) > 0 {
		return best, m, ErrNoSolution
	}
	return best, m, nil
}
