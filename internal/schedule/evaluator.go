package schedule

import (
	"math"
	"sort"

	"lineplan/internal/orders"
)

// ProcessingTimes yields a job's total processing minutes.
type ProcessingTimes interface {
	ProcessingTime(job string) float64
}

// Changeover yields the switch minutes between consecutive jobs.
type Changeover interface {
	Time(prev, next string) float64
}

// Weights of the objective terms. The last three are off unless set.
type Weights struct {
	MaxCompletion    float64 `json:"maxCompletion" yaml:"max_completion"`
	IntervalVariance float64 `json:"intervalVariance" yaml:"interval_variance"`
	TotalChangeover  float64 `json:"totalChangeover,omitempty" yaml:"total_changeover"`
	LineBalance      float64 `json:"lineBalance,omitempty" yaml:"line_balance"`
	TimeLimitPenalty float64 `json:"timeLimitPenalty,omitempty" yaml:"time_limit_penalty"`
	TimeLimit        float64 `json:"timeLimitMinutes,omitempty" yaml:"time_limit_minutes"`
}

// DefaultWeights is 0.4 × max completion + 0.6 × interval variance.
func DefaultWeights() Weights {
	return Weights{MaxCompletion: 0.4, IntervalVariance: 0.6, TimeLimit: 240}
}

// Timing is one scheduled job occurrence.
type Timing struct {
	Job        string  `json:"job"`
	Line       int     `json:"line"`
	Seq        int     `json:"seq"`
	Processing float64 `json:"processing"`
	Changeover float64 `json:"changeover"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
}

// Metrics summarize an evaluated schedule.
type Metrics struct {
	Makespan           float64            `json:"makespan"`
	LineCompletion     []float64          `json:"lineCompletion"`
	OrderCompletion    map[string]float64 `json:"orderCompletion"`
	MaxOrderCompletion float64            `json:"maxOrderCompletion"`
	IntervalVariance   float64            `json:"intervalVariance"`
	TotalChangeover    float64            `json:"totalChangeover"`
	LineBalanceStdDev  float64            `json:"lineBalanceStdDev"`
	Objective          float64            `json:"objective"`
}

// Evaluation is the full result of scoring a schedule.
type Evaluation struct {
	Timings []Timing `json:"timings"`
	Metrics Metrics  `json:"metrics"`
}

// Evaluator scores schedules against a fixed job and order set.
type Evaluator struct {
	times  ProcessingTimes
	co     Changeover
	orders []orders.Order
	w      Weights
}

func NewEvaluator(times ProcessingTimes, co Changeover, ords []orders.Order, w Weights) *Evaluator {
	return &Evaluator{times: times, co: co, orders: ords, w: w}
}

func (e *Evaluator) Weights() Weights { return e.w }

// TimeLine walks one line: the first job starts at 0, each next job starts
// after the previous end plus the changeover between them.
func (e *Evaluator) TimeLine(line int, jobs []string) []Timing {
	out := make([]Timing, len(jobs))
	end := 0.0
	for i, j := range jobs {
		co := 0.0
		if i > 0 {
			co = e.co.Time(jobs[i-1], j)
		}
		p := e.times.ProcessingTime(j)
		start := end + co
		end = start + p
		out[i] = Timing{Job: j, Line: line, Seq: i, Processing: p, Changeover: co, Start: start, End: end}
	}
	return out
}

// LineCompletion is the last job's end, 0 for an empty line.
func (e *Evaluator) LineCompletion(jobs []string) float64 {
	t := e.TimeLine(0, jobs)
	if len(t) == 0 {
		return 0
	}
	return t[len(t)-1].End
}

// LineChangeover sums the changeovers between consecutive jobs.
func LineChangeover(jobs []string, co Changeover) float64 {
	total := 0.0
	for i := 1; i < len(jobs); i++ {
		total += co.Time(jobs[i-1], jobs[i])
	}
	return total
}

// Evaluate recomputes every timing and metric of s.
func (e *Evaluator) Evaluate(s *Schedule) Evaluation {
	var ev Evaluation
	m := &ev.Metrics
	m.LineCompletion = make([]float64, len(s.Lines))
	ends := map[string]float64{}
	for li, jobs := range s.Lines {
		tl := e.TimeLine(li, jobs)
		ev.Timings = append(ev.Timings, tl...)
		for _, t := range tl {
			m.TotalChangeover += t.Changeover
			if cur, ok := ends[t.Job]; !ok || t.End > cur {
				ends[t.Job] = t.End
			}
		}
		if len(tl) > 0 {
			m.LineCompletion[li] = tl[len(tl)-1].End
		}
		m.Makespan = math.Max(m.Makespan, m.LineCompletion[li])
	}
	m.OrderCompletion = make(map[string]float64, len(e.orders))
	completions := make([]float64, 0, len(e.orders))
	for _, o := range e.orders {
		c := 0.0
		for _, j := range o.Jobs {
			c = math.Max(c, ends[j])
		}
		m.OrderCompletion[o.ID] = c
		completions = append(completions, c)
		m.MaxOrderCompletion = math.Max(m.MaxOrderCompletion, c)
	}
	m.IntervalVariance = IntervalVariance(completions)
	m.LineBalanceStdDev = activeStdDev(m.LineCompletion)
	m.Objective = e.objective(m, len(completions))
	return ev
}

// Objective is shorthand for Evaluate(s).Metrics.Objective.
func (e *Evaluator) Objective(s *Schedule) float64 { return e.Evaluate(s).Metrics.Objective }

func (e *Evaluator) objective(m *Metrics, orderCount int) float64 {
	if orderCount == 0 {
		return math.Inf(1)
	}
	obj := e.w.MaxCompletion*m.MaxOrderCompletion + e.w.IntervalVariance*m.IntervalVariance
	if e.w.TotalChangeover != 0 {
		obj += e.w.TotalChangeover * m.TotalChangeover
	}
	if e.w.LineBalance != 0 {
		obj += e.w.LineBalance * m.LineBalanceStdDev
	}
	if e.w.TimeLimitPenalty != 0 {
		over := 0.0
		for _, c := range m.LineCompletion {
			over += math.Max(0, c-e.w.TimeLimit) * 10
		}
		obj += e.w.TimeLimitPenalty * over
	}
	return obj
}

// IntervalVariance is the population variance of the gaps between sorted
// completion times; fewer than two gaps give 0.
func IntervalVariance(completions []float64) float64 {
	if len(completions) < 3 {
		return 0
	}
	sorted := append([]float64(nil), completions...)
	sort.Float64s(sorted)
	gaps := make([]float64, len(sorted)-1)
	mean := 0.0
	for i := 1; i < len(sorted); i++ {
		gaps[i-1] = sorted[i] - sorted[i-1]
		mean += gaps[i-1]
	}
	mean /= float64(len(gaps))
	v := 0.0
	for _, g := range gaps {
		v += (g - mean) * (g - mean)
	}
	return v / float64(len(gaps))
}

func activeStdDev(lines []float64) float64 {
	var active []float64
	for _, c := range lines {
		if c > 0 {
			active = append(active, c)
		}
	}
	if len(active) == 0 {
		return 0
	}
	mean := 0.0
	for _, c := range active {
		mean += c
	}
	mean /= float64(len(active))
	v := 0.0
	for _, c := range active {
		v += (c - mean) * (c - mean)
	}
	return math.Sqrt(v / float64(len(active)))
}
