package affinity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lineplan/internal/orders"
)

func sampleOrders() []orders.Order {
	return []orders.Order{
		{ID: "1", Jobs: []string{"a", "b", "c"}},
		{ID: "2", Jobs: []string{"a", "b"}},
		{ID: "3", Jobs: []string{"c", "d"}},
		{ID: "4", Jobs: []string{"a", "b", "a"}},
		{ID: "5", Jobs: []string{"zz"}},
	}
}

func TestCooccurrenceCounts(t *testing.T) {
	names := []string{"a", "b", "c", "d"}
	for _, workers := range []int{1, 2, 3, 8} {
		c, err := BuildCooccurrence(context.Background(), names, sampleOrders(), workers)
		require.NoError(t, err)
		assert.Equal(t, 3, c.Count("a", "b"), "workers=%d", workers)
		assert.Equal(t, 3, c.Count("b", "a"))
		assert.Equal(t, 1, c.Count("a", "c"))
		assert.Equal(t, 1, c.Count("c", "d"))
		assert.Equal(t, 0, c.Count("a", "d"))
		assert.Equal(t, 0, c.Count("a", "a"))
		assert.Equal(t, 0, c.Count("a", "zz"))
		assert.Equal(t, 3, c.Max())
	}
}

func TestCooccurrenceDistance(t *testing.T) {
	c, err := BuildCooccurrence(context.Background(), []string{"a", "b", "c", "d"}, sampleOrders(), 0)
	require.NoError(t, err)
	d, ok := c.Distance("a", "b")
	require.True(t, ok)
	assert.Equal(t, 0.0, d)
	d, _ = c.Distance("a", "c")
	assert.InDelta(t, 2.0/3.0, d, 1e-9)
	d, _ = c.Distance("a", "a")
	assert.Equal(t, 0.0, d)
	_, ok = c.Distance("a", "missing")
	assert.False(t, ok)

	empty, err := BuildCooccurrence(context.Background(), []string{"x", "y"}, nil, 4)
	require.NoError(t, err)
	d, _ = empty.Distance("x", "y")
	assert.Equal(t, 1.0, d)
}

func TestCooccurrenceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := BuildCooccurrence(ctx, []string{"a", "b"}, sampleOrders(), 2)
	assert.ErrorIs(t, err, context.Canceled)
}

type fixedProvider struct {
	dist [][]float64
	err  error
}

func (f fixedProvider) Distances(context.Context, []string) ([][]float64, error) {
	return f.dist, f.err
}

func TestEmbeddingDistanceValidation(t *testing.T) {
	names := []string{"a", "b"}
	good := [][]float64{{0, 0.4}, {0.4, 0}}
	e, err := FromProvider(context.Background(), fixedProvider{dist: good}, names)
	require.NoError(t, err)
	assert.Equal(t, KindEmbedding, e.Kind())
	d, ok := e.Distance("b", "a")
	require.True(t, ok)
	assert.Equal(t, 0.4, d)
	assert.InDelta(t, 0.6, e.Affinity("a", "b"), 1e-9)

	cases := map[string][][]float64{
		"rows":       {{0, 1}},
		"negative":   {{0, -1}, {-1, 0}},
		"asymmetric": {{0, 0.2}, {0.5, 0}},
		"diagonal":   {{0.3, 0.2}, {0.2, 0}},
	}
	for name, dist := range cases {
		_, err := NewEmbeddingDistance(names, dist)
		assert.ErrorIs(t, err, ErrInvalidMatrix, name)
	}

	boom := errors.New("boom")
	_, err = FromProvider(context.Background(), fixedProvider{err: boom}, names)
	assert.ErrorIs(t, err, boom)
}

func TestDenseDistance(t *testing.T) {
	e, err := NewEmbeddingDistance([]string{"a", "b"}, [][]float64{{0, 0.25}, {0.25, 0}})
	require.NoError(t, err)
	got := DenseDistance(e, []string{"a", "b", "c"})
	assert.Equal(t, [][]float64{{0, 0.25, 1}, {0.25, 0, 1}, {1, 1, 0}}, got)
}
