package opt

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lineplan/internal/affinity"
	"lineplan/internal/assign"
	"lineplan/internal/changeover"
	"lineplan/internal/orders"
	"lineplan/internal/schedule"
)

type fixedTimes map[string]float64

func (f fixedTimes) ProcessingTime(job string) float64 { return f[job] }

type zeroChangeover struct{}

func (zeroChangeover) Time(string, string) float64 { return 0 }

func newOptimizer(times fixedTimes, co schedule.Changeover, ords []orders.Order) *Optimizer {
	eval := schedule.NewEvaluator(times, co, ords, schedule.DefaultWeights())
	return New(eval, times, co, DefaultConfig())
}

func TestTieIsRejected(t *testing.T) {
	times := fixedTimes{"A": 5, "B": 5, "C": 5}
	o := newOptimizer(times, zeroChangeover{}, []orders.Order{{ID: "o", Jobs: []string{"A", "B", "C"}}})
	s := &schedule.Schedule{Lines: [][]string{{"A", "B"}, {"C"}}}
	res, err := o.Optimize(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, s.Lines, res.Schedule.Lines)
	assert.InDelta(t, 4.0, res.Final, 1e-12)
	assert.Equal(t, 0, res.Transfers)
	assert.Len(t, res.Trace, 1)
}

func TestBalancingMovesHeaviestJob(t *testing.T) {
	times := fixedTimes{"A": 5, "B": 5, "C": 5, "D": 5}
	ords := []orders.Order{{ID: "1", Jobs: []string{"A"}}, {ID: "2", Jobs: []string{"B"}}, {ID: "3", Jobs: []string{"C"}}, {ID: "4", Jobs: []string{"D"}}}
	o := newOptimizer(times, zeroChangeover{}, ords)
	res, err := o.Optimize(context.Background(), &schedule.Schedule{Lines: [][]string{{"A", "B", "C"}, {"D"}}})
	require.NoError(t, err)
	assert.Less(t, res.Final, res.Initial)
	assert.Equal(t, 1, res.Transfers)
	assert.Equal(t, "A", res.Steps[0].Job)
	assert.Equal(t, [][]string{{"B", "C"}, {"A", "D"}}, res.Schedule.Lines)
}

func TestSingleActiveLineIsNoop(t *testing.T) {
	times := fixedTimes{"A": 5, "B": 5}
	o := newOptimizer(times, zeroChangeover{}, []orders.Order{{ID: "1", Jobs: []string{"A"}}, {ID: "2", Jobs: []string{"B"}}})
	s := &schedule.Schedule{Lines: [][]string{{"A", "B"}, {}, {}}}
	res, err := o.Optimize(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, s.Lines, res.Schedule.Lines)
	assert.Equal(t, 0, res.Transfers)
}

func TestNoOrdersStaysInfinite(t *testing.T) {
	times := fixedTimes{"A": 5, "B": 5}
	o := newOptimizer(times, zeroChangeover{}, nil)
	res, err := o.Optimize(context.Background(), &schedule.Schedule{Lines: [][]string{{"A", "B"}, {}}})
	require.NoError(t, err)
	assert.True(t, math.IsInf(res.Final, 1))
}

func TestReorderLine(t *testing.T) {
	co, err := changeover.FromTable([]string{"a", "b", "c", "d"}, [][]float64{
		{0, 9, 1, 9},
		{9, 0, 9, 1},
		{1, 9, 0, 9},
		{9, 1, 9, 0},
	}, 5)
	require.NoError(t, err)
	line := []string{"a", "b", "c", "d"}
	got, swaps := ReorderLine(line, co, 5)
	assert.Equal(t, []string{"a", "b", "c", "d"}, line)
	assert.Equal(t, []string{"d", "b", "c", "a"}, got)
	assert.Equal(t, 1, swaps)
	assert.Less(t, schedule.LineChangeover(got, co), schedule.LineChangeover(line, co))

	again, swaps := ReorderLine(got, co, 5)
	assert.Equal(t, got, again)
	assert.Equal(t, 0, swaps)

	short, swaps := ReorderLine([]string{"a", "b"}, co, 5)
	assert.Equal(t, []string{"a", "b"}, short)
	assert.Equal(t, 0, swaps)
}

// pinnedScorer scores line 0 by its changeover and charges a large penalty when
// line 1 leaves its original order. All lines report the same completion.
type pinnedScorer struct {
	co    schedule.Changeover
	first string
}

func (p pinnedScorer) Evaluate(s *schedule.Schedule) schedule.Evaluation {
	obj := schedule.LineChangeover(s.Lines[0], p.co)
	if s.Lines[1][0] != p.first {
		obj += 100
	}
	lc := make([]float64, len(s.Lines))
	for i := range lc {
		lc[i] = 10
	}
	return schedule.Evaluation{Metrics: schedule.Metrics{Objective: obj, LineCompletion: lc}}
}

func TestReorderAcceptsLinesIndependently(t *testing.T) {
	pattern := [][]float64{{0, 9, 1, 9}, {9, 0, 9, 1}, {1, 9, 0, 9}, {9, 1, 9, 0}}
	names := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	rows := make([][]float64, len(names))
	for i := range rows {
		rows[i] = make([]float64, len(names))
		for j := range rows[i] {
			switch {
			case i/4 == j/4:
				rows[i][j] = pattern[i%4][j%4]
			default:
				rows[i][j] = 9
			}
		}
	}
	co, err := changeover.FromTable(names, rows, 9)
	require.NoError(t, err)
	times := fixedTimes{}
	for _, n := range names {
		times[n] = 1
	}
	o := New(pinnedScorer{co: co, first: "e"}, times, co, DefaultConfig())
	s := &schedule.Schedule{Lines: [][]string{{"a", "b", "c", "d"}, {"e", "f", "g", "h"}}}

	res, err := o.Optimize(context.Background(), s)
	require.NoError(t, err)
	assert.InDelta(t, 27.0, res.Initial, 1e-12)
	assert.InDelta(t, 11.0, res.Final, 1e-12)
	assert.Equal(t, [][]string{{"d", "b", "c", "a"}, {"e", "f", "g", "h"}}, res.Schedule.Lines)
	require.Len(t, res.Steps, 1)
	assert.Equal(t, Step{Kind: "reorder", Objective: 11, From: 0, To: 0}, res.Steps[0])
	assert.Equal(t, []float64{27, 11}, res.Trace)
}

func TestCandidatePositions(t *testing.T) {
	assert.Equal(t, []int{0}, CandidatePositions(0))
	assert.Equal(t, []int{0, 1}, CandidatePositions(1))
	assert.Equal(t, []int{0, 1, 3}, CandidatePositions(3))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, CandidatePositions(4))
	assert.Equal(t, []int{0, 1, 5, 9, 10}, CandidatePositions(10))
}

func TestBurden(t *testing.T) {
	co, err := changeover.FromTable([]string{"a", "b", "c"}, [][]float64{{0, 1, 2}, {1, 0, 3}, {2, 3, 0}}, 5)
	require.NoError(t, err)
	times := fixedTimes{"a": 1, "b": 2, "c": 3}
	line := []string{"a", "b", "c"}
	assert.Equal(t, 2.0, Burden(line, 0, times, co))
	assert.Equal(t, 6.0, Burden(line, 1, times, co))
	assert.Equal(t, 6.0, Burden(line, 2, times, co))
}

func randomInstance(r *rand.Rand, n int) ([]string, fixedTimes, *changeover.Model, []orders.Order) {
	jobs := make([]string, n)
	times := fixedTimes{}
	for i := range jobs {
		jobs[i] = fmt.Sprintf("j%02d", i)
		times[jobs[i]] = 1 + r.Float64()*6
	}
	var ords []orders.Order
	for o := 0; o < n*2; o++ {
		k := 1 + r.Intn(4)
		var js []string
		for i := 0; i < k; i++ {
			js = append(js, jobs[r.Intn(n)])
		}
		ords = append(ords, orders.Order{ID: fmt.Sprint(o), Jobs: js})
	}
	ords = orders.GroupByOrder(flatten(ords))
	co, _ := affinity.BuildCooccurrence(context.Background(), jobs, ords, 2)
	return jobs, times, changeover.FromDistance(jobs, co, changeover.DefaultParams()), ords
}

func flatten(ords []orders.Order) []orders.Record {
	var out []orders.Record
	for _, o := range ords {
		for _, j := range o.Jobs {
			out = append(out, orders.Record{OrderID: o.ID, Job: j, Quantity: 1})
		}
	}
	return out
}

func TestOptimizeIsMonotoneAndComplete(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for trial := 0; trial < 4; trial++ {
		jobs, times, co, ords := randomInstance(r, 18)
		aff, err := affinity.BuildCooccurrence(context.Background(), jobs, ords, 0)
		require.NoError(t, err)
		in := assign.Input{Jobs: jobs, Affinity: aff, Orders: ords, Times: times, Changeover: co}
		for _, st := range assign.Strategies {
			a, err := assign.New(st, assign.Options{})
			require.NoError(t, err)
			s, err := a.Assign(in, 4)
			require.NoError(t, err)
			res, err := newOptimizer(times, co, ords).Optimize(context.Background(), s)
			require.NoError(t, err)
			require.NoError(t, res.Schedule.Validate(jobs), st)
			for i := 1; i < len(res.Trace); i++ {
				assert.LessOrEqual(t, res.Trace[i], res.Trace[i-1], "%s step %d", st, i)
			}
			assert.LessOrEqual(t, res.Final, res.Initial)
			assert.LessOrEqual(t, res.Rounds, DefaultConfig().BalanceRounds)
		}
	}
}

func TestOptimizeHonoursCancellation(t *testing.T) {
	times := fixedTimes{"A": 5, "B": 5, "C": 5}
	o := newOptimizer(times, zeroChangeover{}, []orders.Order{{ID: "1", Jobs: []string{"A"}}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &schedule.Schedule{Lines: [][]string{{"A", "B", "C"}, {}}}
	res, err := o.Optimize(ctx, s)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res.Schedule)
	assert.NoError(t, res.Schedule.Validate([]string{"A", "B", "C"}))
}

func TestProgressCallback(t *testing.T) {
	times := fixedTimes{"A": 5, "B": 5, "C": 5, "D": 5}
	ords := []orders.Order{{ID: "1", Jobs: []string{"A"}}, {ID: "2", Jobs: []string{"B"}}, {ID: "3", Jobs: []string{"C"}}, {ID: "4", Jobs: []string{"D"}}}
	o := newOptimizer(times, zeroChangeover{}, ords)
	var got []Step
	o.OnProgress(func(s Step) { got = append(got, s) })
	res, err := o.Optimize(context.Background(), &schedule.Schedule{Lines: [][]string{{"A", "B", "C"}, {"D"}}})
	require.NoError(t, err)
	assert.Equal(t, res.Steps, got)
}

func TestMetricsStore(t *testing.T) {
	RecordMetrics("2026-10-14", RunMetrics{Strategy: "workload", Final: 9})
	RecordMetrics("2026-10-14", RunMetrics{Strategy: "cluster", Final: 7})
	RecordMetrics("2026-10-15", RunMetrics{Strategy: "cluster", Final: 1})
	got := GetMetrics("2026-10-14")
	require.Len(t, got, 2)
	assert.Equal(t, "cluster", got[0].Strategy)
	assert.False(t, got[0].RecordedAt.IsZero())
}
