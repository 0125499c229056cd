package opt

import (
	"context"
	"log"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"lineplan/internal/metrics"
	"lineplan/internal/schedule"
)

// Config caps the search loops.
type Config struct {
	BalanceRounds int `json:"balanceRounds" yaml:"balance_rounds"`
	ReorderPasses int `json:"reorderPasses" yaml:"reorder_passes"`
	Workers       int `json:"workers,omitempty" yaml:"workers"`
}

// DefaultConfig is 20 balancing rounds and 5 reorder passes per line.
func DefaultConfig() Config {
	return Config{BalanceRounds: 20, ReorderPasses: 5}
}

// Scorer evaluates complete schedules.
type Scorer interface {
	Evaluate(s *schedule.Schedule) schedule.Evaluation
}

// Step describes one accepted change.
type Step struct {
	Round     int     `json:"round"`
	Kind      string  `json:"kind"`
	Objective float64 `json:"objective"`
	Job       string  `json:"job,omitempty"`
	From      int     `json:"from"`
	To        int     `json:"to"`
}

// Result of an optimization run. Trace holds the objective after every
// accepted step, starting with the input objective.
type Result struct {
	Schedule  *schedule.Schedule `json:"schedule"`
	Initial   float64            `json:"initial"`
	Final     float64            `json:"final"`
	Trace     []float64          `json:"trace"`
	Steps     []Step             `json:"steps"`
	Rounds    int                `json:"rounds"`
	Transfers int                `json:"transfers"`
}

// Optimizer improves schedules by intra-line reordering and inter-line transfers.
type Optimizer struct {
	eval     Scorer
	times    schedule.ProcessingTimes
	co       schedule.Changeover
	cfg      Config
	progress func(Step)
}

func New(eval Scorer, times schedule.ProcessingTimes, co schedule.Changeover, cfg Config) *Optimizer {
	def := DefaultConfig()
	if cfg.BalanceRounds <= 0 {
		cfg.BalanceRounds = def.BalanceRounds
	}
	if cfg.ReorderPasses <= 0 {
		cfg.ReorderPasses = def.ReorderPasses
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return &Optimizer{eval: eval, times: times, co: co, cfg: cfg}
}

// OnProgress registers fn to be called after each accepted step.
func (o *Optimizer) OnProgress(fn func(Step)) { o.progress = fn }

func (o *Optimizer) objective(s *schedule.Schedule) float64 {
	return o.eval.Evaluate(s).Metrics.Objective
}

// Optimize never mutates s. On context cancellation it returns the best
// schedule reached so far together with the context error.
func (o *Optimizer) Optimize(ctx context.Context, s *schedule.Schedule) (Result, error) {
	cur := s.Clone()
	curObj := o.objective(cur)
	res := Result{Initial: curObj, Trace: []float64{curObj}}
	accept := func(st Step) {
		res.Trace = append(res.Trace, st.Objective)
		res.Steps = append(res.Steps, st)
		if o.progress != nil {
			o.progress(st)
		}
	}

	all := make([]int, cur.NumLines())
	for i := range all {
		all[i] = i
	}
	next, obj, steps, err := o.reorder(ctx, cur, curObj, all)
	cur, curObj = next, obj
	for _, st := range steps {
		accept(st)
	}
	if err != nil {
		return o.finish(res, cur, curObj), err
	}

	for round := 1; round <= o.cfg.BalanceRounds; round++ {
		if err := ctx.Err(); err != nil {
			return o.finish(res, cur, curObj), err
		}
		res.Rounds = round
		next, obj, mv, ok := o.balance(cur, curObj)
		if !ok {
			break
		}
		cur, curObj = next, obj
		res.Transfers++
		mv.Round, mv.Objective = round, obj
		accept(mv)
		log.Printf("opt: round=%d moved %q line %d -> %d objective=%.3f", round, mv.Job, mv.From, mv.To, obj)

		next, obj, steps, err := o.reorder(ctx, cur, curObj, []int{mv.From, mv.To})
		cur, curObj = next, obj
		for _, st := range steps {
			st.Round = round
			accept(st)
		}
		if err != nil {
			return o.finish(res, cur, curObj), err
		}
	}
	return o.finish(res, cur, curObj), nil
}

func (o *Optimizer) finish(res Result, s *schedule.Schedule, obj float64) Result {
	res.Schedule, res.Final = s, obj
	return res
}

// reorder runs ReorderLine on the given lines concurrently, then accepts each
// line's new order on its own, in the order given, when it does not raise the
// current objective. It returns one step per accepted line.
func (o *Optimizer) reorder(ctx context.Context, s *schedule.Schedule, obj float64, lines []int) (*schedule.Schedule, float64, []Step, error) {
	reordered := make([][]string, len(lines))
	swaps := make([]int, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)
	for i, li := range lines {
		i, li := i, li
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			reordered[i], swaps[i] = ReorderLine(s.Lines[li], o.co, o.cfg.ReorderPasses)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return s, obj, nil, err
	}
	cur, curObj := s, obj
	var steps []Step
	for i, li := range lines {
		if swaps[i] == 0 {
			continue
		}
		cand := cur.Clone()
		cand.Lines[li] = reordered[i]
		candObj := o.objective(cand)
		if candObj > curObj {
			metrics.OptimizerMoves.WithLabelValues("reorder", "rejected").Inc()
			continue
		}
		metrics.OptimizerMoves.WithLabelValues("reorder", "accepted").Inc()
		cur, curObj = cand, candObj
		steps = append(steps, Step{Kind: "reorder", Objective: candObj, From: li, To: li})
	}
	return cur, curObj, steps, nil
}

// ReorderLine swaps non-adjacent positions to cut the line's total changeover.
// Each pass applies the single best improving swap; it stops after passes
// passes or when a pass finds nothing. It returns the new order and the number
// of swaps applied; the input is not modified.
func ReorderLine(line []string, co schedule.Changeover, passes int) ([]string, int) {
	best := append([]string(nil), line...)
	bestCost := schedule.LineChangeover(best, co)
	swaps := 0
	for pass := 0; pass < passes; pass++ {
		bi, bj, bc := -1, -1, bestCost
		for i := 0; i < len(best); i++ {
			for j := i + 2; j < len(best); j++ {
				best[i], best[j] = best[j], best[i]
				c := schedule.LineChangeover(best, co)
				best[i], best[j] = best[j], best[i]
				if c+1e-9 < bc {
					bi, bj, bc = i, j, c
				}
			}
		}
		if bi == -1 {
			break
		}
		best[bi], best[bj] = best[bj], best[bi]
		bestCost = bc
		swaps++
	}
	return best, swaps
}

// balance tries to move the heaviest job of the longest active line into the
// shortest active line. It returns ok only for a strict improvement.
func (o *Optimizer) balance(s *schedule.Schedule, obj float64) (*schedule.Schedule, float64, Step, bool) {
	active := s.ActiveLines()
	if len(active) < 2 {
		return s, obj, Step{}, false
	}
	lc := o.eval.Evaluate(s).Metrics.LineCompletion
	longest, shortest := active[0], active[0]
	for _, li := range active[1:] {
		if lc[li] > lc[longest] {
			longest = li
		}
		if lc[li] < lc[shortest] {
			shortest = li
		}
	}
	if longest == shortest {
		return s, obj, Step{}, false
	}
	src := s.Lines[longest]
	pos := o.heaviest(src)
	var best *schedule.Schedule
	bestObj := obj
	for _, at := range CandidatePositions(len(s.Lines[shortest])) {
		cand := s.Clone()
		cand.Move(longest, pos, shortest, at)
		if c := o.objective(cand); c+1e-9 < bestObj {
			best, bestObj = cand, c
		}
	}
	if best == nil {
		metrics.OptimizerMoves.WithLabelValues("transfer", "rejected").Inc()
		return s, obj, Step{}, false
	}
	metrics.OptimizerMoves.WithLabelValues("transfer", "accepted").Inc()
	return best, bestObj, Step{Kind: "transfer", Job: src[pos], From: longest, To: shortest}, true
}

// heaviest returns the position with the greatest burden: processing time plus
// the changeovers to its neighbors. The first position wins ties.
func (o *Optimizer) heaviest(line []string) int {
	best, bestBurden := 0, -1.0
	for i := range line {
		b := Burden(line, i, o.times, o.co)
		if b > bestBurden {
			best, bestBurden = i, b
		}
	}
	return best
}

// Burden of the job at position i.
func Burden(line []string, i int, times schedule.ProcessingTimes, co schedule.Changeover) float64 {
	b := times.ProcessingTime(line[i])
	if i > 0 {
		b += co.Time(line[i-1], line[i])
	}
	if i+1 < len(line) {
		b += co.Time(line[i], line[i+1])
	}
	return b
}

// CandidatePositions are the insertion points tried in a destination of length n:
// start, middle and end, plus one in from each end when n > 3.
func CandidatePositions(n int) []int {
	set := map[int]bool{0: true, n / 2: true, n: true}
	if n > 3 {
		set[1], set[n-1] = true, true
	}
	out := make([]int, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}
