// Package assign builds first schedules from a job set using pluggable strategies.
package assign

import (
	"errors"
	"fmt"
	"sort"

	"lineplan/internal/affinity"
	"lineplan/internal/orders"
	"lineplan/internal/schedule"
)

// Strategy names a selectable initial assignment.
type Strategy string

const (
	ClusterRoundRobin      Strategy = "cluster"
	SeedAndGrow            Strategy = "seed-grow"
	FrequencyAntiCollision Strategy = "frequency"
	WorkloadBalancedGreedy Strategy = "workload"
	NetworkZigzag          Strategy = "network"
)

// Strategies lists every known strategy.
var Strategies = []Strategy{ClusterRoundRobin, SeedAndGrow, FrequencyAntiCollision, WorkloadBalancedGreedy, NetworkZigzag}

var (
	ErrInvalidLineCount = errors.New("assign: line count must be positive")
	ErrUnknownStrategy  = errors.New("assign: unknown strategy")
)

// Input is what every strategy sees. Jobs are in catalog order, which is the tie-break order.
type Input struct {
	Jobs       []string
	Affinity   affinity.Model
	Orders     []orders.Order
	Times      schedule.ProcessingTimes
	Changeover schedule.Changeover
}

// Assigner produces a complete schedule over in.Jobs.
type Assigner interface {
	Strategy() Strategy
	Assign(in Input, lines int) (*schedule.Schedule, error)
}

// Options tune strategies that take parameters.
type Options struct {
	// ClusterCount overrides the number of clusters; 0 means one per line.
	ClusterCount int
}

// New returns the assigner for s.
func New(s Strategy, opts Options) (Assigner, error) {
	switch s {
	case ClusterRoundRobin:
		return clusterAssigner{clusters: opts.ClusterCount}, nil
	case SeedAndGrow:
		return seedAssigner{}, nil
	case FrequencyAntiCollision:
		return frequencyAssigner{}, nil
	case WorkloadBalancedGreedy:
		return workloadAssigner{}, nil
	case NetworkZigzag:
		return networkAssigner{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// ParseStrategy accepts a strategy name.
func ParseStrategy(name string) (Strategy, error) {
	for _, s := range Strategies {
		if string(s) == name {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

func checkLines(lines int) error {
	if lines <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidLineCount, lines)
	}
	return nil
}

func affinityOf(in Input, a, b string) float64 {
	if in.Affinity == nil || a == b {
		return 0
	}
	return in.Affinity.Affinity(a, b)
}

// totalAffinity sums the affinity of job to every job in others.
func totalAffinity(in Input, job string, others []string) float64 {
	s := 0.0
	for _, o := range others {
		s += affinityOf(in, job, o)
	}
	return s
}

// argmax returns the index of the highest score; the first wins ties.
func argmax(n int, score func(i int) float64) int {
	best, bestScore := -1, 0.0
	for i := 0; i < n; i++ {
		s := score(i)
		if best == -1 || s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

// loads tracks per-line busy time including changeovers.
type loads struct {
	in   Input
	time []float64
	last []string
}

func newLoads(in Input, lines int) *loads {
	return &loads{in: in, time: make([]float64, lines), last: make([]string, lines)}
}

func (l *loads) cost(line int, job string) float64 {
	c := l.in.Times.ProcessingTime(job)
	if l.last[line] != "" && l.in.Changeover != nil {
		c += l.in.Changeover.Time(l.last[line], job)
	}
	return c
}

func (l *loads) add(s *schedule.Schedule, line int, job string) {
	l.time[line] += l.cost(line, job)
	l.last[line] = job
	s.Append(line, job)
}

// leastLoaded returns the least loaded line among candidates (all lines when nil); lowest index wins ties.
func (l *loads) leastLoaded(skip map[int]bool) int {
	best := -1
	for i, t := range l.time {
		if skip[i] {
			continue
		}
		if best == -1 || t < l.time[best] {
			best = i
		}
	}
	return best
}

// stableRank sorts jobs by score descending keeping input order on ties.
func stableRank(jobs []string, score func(string) float64) []string {
	out := append([]string(nil), jobs...)
	sort.SliceStable(out, func(i, j int) bool { return score(out[i]) > score(out[j]) })
	return out
}

func remove(list []string, drop map[string]bool) []string {
	out := list[:0:0]
	for _, j := range list {
		if !drop[j] {
			out = append(out, j)
		}
	}
	return out
}
