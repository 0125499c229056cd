// Package routing plans lines by solving the job set as a multi-depot
// vehicle routing problem, one vehicle per line.
package routing

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"lineplan/internal/assign"
	"lineplan/internal/metrics"
	"lineplan/internal/schedule"
	"lineplan/internal/vrp"
)

// Scale converts minutes to integer solver units.
const Scale = 100

// ErrNoSolution is returned when the solver found no complete assignment.
var ErrNoSolution = vrp.ErrNoSolution

// Config bounds the routing run.
type Config struct {
	HorizonMinutes  float64       `json:"horizonMinutes" yaml:"line_budget_minutes"`
	TimeLimit       time.Duration `json:"timeLimit" yaml:"time_limit"`
	IterationsLimit int           `json:"iterationsLimit,omitempty" yaml:"iterations_limit"`
}

// DefaultConfig is a 240 minute line budget and a 30 second search.
func DefaultConfig() Config {
	return Config{HorizonMinutes: 240, TimeLimit: 30 * time.Second}
}

// LineReport is the per-line route summary.
type LineReport struct {
	Line              int     `json:"line"`
	Jobs              int     `json:"jobs"`
	ProcessingMinutes float64 `json:"processingMinutes"`
	ChangeoverMinutes float64 `json:"changeoverMinutes"`
	RouteMinutes      float64 `json:"routeMinutes"`
	Utilization       float64 `json:"utilization"`
	WithinBudget      bool    `json:"withinBudget"`
}

// Result of a routing plan.
type Result struct {
	Schedule *schedule.Schedule `json:"schedule"`
	Lines    []LineReport       `json:"lines"`
	Solver   vrp.Metrics        `json:"solver"`
}

// Router adapts the job set to a vrp.Solver.
type Router struct {
	solver vrp.Solver
	cfg    Config
}

// New returns a router; a nil solver uses the built-in engine.
func New(solver vrp.Solver, cfg Config) *Router {
	if solver == nil {
		solver = vrp.Engine{}
	}
	def := DefaultConfig()
	if cfg.HorizonMinutes <= 0 {
		cfg.HorizonMinutes = def.HorizonMinutes
	}
	if cfg.TimeLimit <= 0 {
		cfg.TimeLimit = def.TimeLimit
	}
	return &Router{solver: solver, cfg: cfg}
}

func units(minutes float64) int64 { return int64(math.Round(minutes * Scale)) }

// Model builds the routing problem: nodes 0..lines-1 are the line depots,
// job k is node lines+k. Depot arcs cost nothing, job arcs cost the changeover,
// and each job consumes its processing time against the line budget.
func (r *Router) Model(jobs []string, times schedule.ProcessingTimes, co schedule.Changeover, lines int) vrp.Problem {
	n := lines + len(jobs)
	arc := make([][]int64, n)
	for i := range arc {
		arc[i] = make([]int64, n)
		if i < lines {
			continue
		}
		for j := lines; j < n; j++ {
			if i != j {
				arc[i][j] = units(co.Time(jobs[i-lines], jobs[j-lines]))
			}
		}
	}
	demand := make([]int64, n)
	for k, j := range jobs {
		demand[lines+k] = units(times.ProcessingTime(j))
	}
	depots := make([]int, lines)
	capacity := make([]int64, lines)
	for v := range depots {
		depots[v] = v
		capacity[v] = units(r.cfg.HorizonMinutes)
	}
	return vrp.Problem{
		NodeCount:       n,
		Vehicles:        lines,
		Starts:          depots,
		Ends:            depots,
		ArcCost:         arc,
		Demand:          func(node int) int64 { return demand[node] },
		Capacity:        capacity,
		SkipPenalty:     vrp.DefaultSkipPenalty,
		TimeBudget:      r.cfg.TimeLimit,
		IterationsLimit: r.cfg.IterationsLimit,
	}
}

// Plan solves the routing model and maps routes back to a schedule. A
// solver that cannot place every job yields an error matching ErrNoSolution.
func (r *Router) Plan(ctx context.Context, jobs []string, times schedule.ProcessingTimes, co schedule.Changeover, lines int) (Result, error) {
	if lines <= 0 {
		return Result{}, fmt.Errorf("%w: got %d", assign.ErrInvalidLineCount, lines)
	}
	if len(jobs) == 0 {
		return Result{Schedule: schedule.New(lines), Lines: r.report(schedule.New(lines), times, co)}, nil
	}
	sol, m, err := r.solver.Solve(ctx, r.Model(jobs, times, co, lines))
	if err != nil {
		metrics.SolverOutcomes.WithLabelValues("no_solution").Inc()
		log.Printf("warn: routing: %d jobs on %d lines: %v", len(jobs), lines, err)
		return Result{Solver: m}, fmt.Errorf("routing: %w", err)
	}
	metrics.SolverOutcomes.WithLabelValues("solved").Inc()
	s := schedule.New(lines)
	for v, route := range sol.Routes {
		for _, node := range route {
			s.Append(v, jobs[node-lines])
		}
	}
	log.Printf("routing: solved %d jobs on %d lines cost=%d iterations=%d", len(jobs), lines, sol.Cost, m.Iterations)
	return Result{Schedule: s, Lines: r.report(s, times, co), Solver: m}, nil
}

func (r *Router) report(s *schedule.Schedule, times schedule.ProcessingTimes, co schedule.Changeover) []LineReport {
	out := make([]LineReport, s.NumLines())
	for li, l := range s.Lines {
		rep := LineReport{Line: li, Jobs: len(l)}
		for i, j := range l {
			rep.ProcessingMinutes += times.ProcessingTime(j)
			if i > 0 {
				rep.ChangeoverMinutes += co.Time(l[i-1], j)
			}
		}
		rep.RouteMinutes = rep.ProcessingMinutes + rep.ChangeoverMinutes
		rep.Utilization = rep.RouteMinutes / r.cfg.HorizonMinutes * 100
		rep.WithinBudget = rep.RouteMinutes <= r.cfg.HorizonMinutes
		out[li] = rep
	}
	return out
}
