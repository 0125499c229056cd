package routing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lineplan/internal/assign"
	"lineplan/internal/changeover"
	"lineplan/internal/vrp"
)

type fixedTimes map[string]float64

func (f fixedTimes) ProcessingTime(job string) float64 { return f[job] }

func fixture(t *testing.T) ([]string, fixedTimes, *changeover.Model) {
	t.Helper()
	jobs := []string{"X", "Y", "Z", "W"}
	co, err := changeover.FromTable(jobs, [][]float64{
		{0, 5, 2, 4},
		{5, 0, 2, 4},
		{2, 2, 0, 4},
		{4, 4, 4, 0},
	}, 3)
	require.NoError(t, err)
	return jobs, fixedTimes{"X": 2, "Y": 3, "Z": 1, "W": 2.5}, co
}

func TestModelShape(t *testing.T) {
	jobs, times, co := fixture(t)
	r := New(nil, Config{HorizonMinutes: 60})
	p := r.Model(jobs, times, co, 2)
	assert.Equal(t, 6, p.NodeCount)
	assert.Equal(t, []int{0, 1}, p.Starts)
	assert.Equal(t, []int{0, 1}, p.Ends)
	assert.Equal(t, []int64{6000, 6000}, p.Capacity)
	assert.Equal(t, int64(0), p.ArcCost[0][2])
	assert.Equal(t, int64(0), p.ArcCost[3][1])
	assert.Equal(t, int64(500), p.ArcCost[2][3])
	assert.Equal(t, int64(0), p.ArcCost[2][2])
	assert.Equal(t, int64(250), p.Demand(5))
	assert.Equal(t, int64(vrp.DefaultSkipPenalty), p.SkipPenalty)
}

func TestPlanCoversEveryJob(t *testing.T) {
	jobs, times, co := fixture(t)
	r := New(nil, Config{HorizonMinutes: 60, TimeLimit: 200 * time.Millisecond, IterationsLimit: 20})
	res, err := r.Plan(context.Background(), jobs, times, co, 2)
	require.NoError(t, err)
	require.NoError(t, res.Schedule.Validate(jobs))
	require.Len(t, res.Lines, 2)
	total := 0
	for _, l := range res.Lines {
		total += l.Jobs
		assert.True(t, l.WithinBudget)
	}
	assert.Equal(t, 4, total)
}

func TestPlanNoSolution(t *testing.T) {
	jobs, times, co := fixture(t)
	r := New(nil, Config{HorizonMinutes: 2, TimeLimit: 100 * time.Millisecond, IterationsLimit: 5})
	_, err := r.Plan(context.Background(), jobs, times, co, 1)
	assert.True(t, errors.Is(err, ErrNoSolution))
}

func TestPlanRejectsLines(t *testing.T) {
	jobs, times, co := fixture(t)
	_, err := New(nil, Config{}).Plan(context.Background(), jobs, times, co, 0)
	assert.ErrorIs(t, err, assign.ErrInvalidLineCount)

	res, err := New(nil, Config{}).Plan(context.Background(), nil, times, co, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Schedule.Len())
}

type stubSolver struct{ routes [][]int }

func (s stubSolver) Solve(context.Context, vrp.Problem) (vrp.Solution, vrp.Metrics, error) {
	return vrp.Solution{Routes: s.routes}, vrp.Metrics{Iterations: 1}, nil
}

func TestPlanMapsRoutes(t *testing.T) {
	jobs, times, co := fixture(t)
	r := New(stubSolver{routes: [][]int{{4, 2}, {3, 5}}}, Config{HorizonMinutes: 10})
	res, err := r.Plan(context.Background(), jobs, times, co, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Z", "X"}, {"Y", "W"}}, res.Schedule.Lines)
	assert.InDelta(t, 5.0, res.Lines[0].RouteMinutes, 1e-9)
	assert.InDelta(t, 50.0, res.Lines[0].Utilization, 1e-9)
	assert.InDelta(t, 9.5, res.Lines[1].RouteMinutes, 1e-9)
}
