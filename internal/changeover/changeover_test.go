package changeover

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lineplan/internal/affinity"
	"lineplan/internal/orders"
)

func TestFromDistance(t *testing.T) {
	ords := []orders.Order{{ID: "1", Jobs: []string{"a", "b"}}, {ID: "2", Jobs: []string{"a", "b"}}, {ID: "3", Jobs: []string{"a", "c"}}}
	co, err := affinity.BuildCooccurrence(context.Background(), []string{"a", "b", "c"}, ords, 1)
	require.NoError(t, err)
	m := FromDistance([]string{"a", "b", "c"}, co, DefaultParams())

	assert.Equal(t, 0.0, m.Time("a", "a"))
	assert.Equal(t, 2.0, m.Time("a", "b"))
	assert.Equal(t, 3.0, m.Time("a", "c"))
	assert.Equal(t, 4.0, m.Time("b", "c"))
	assert.Equal(t, m.Time("c", "b"), m.Time("b", "c"))
	assert.Equal(t, DefaultUnknownMinutes, m.Time("a", "nope"))
	assert.Equal(t, 0.0, m.Time("nope", "nope"))
}

func TestFromTableDirected(t *testing.T) {
	m, err := FromTable([]string{"x", "y"}, [][]float64{{9, 5}, {1, 0}}, 4)
	require.NoError(t, err)
	assert.Equal(t, 0.0, m.Time("x", "x"))
	assert.Equal(t, 5.0, m.Time("x", "y"))
	assert.Equal(t, 1.0, m.Time("y", "x"))
	assert.Equal(t, 4.0, m.Time("x", "z"))

	_, err = FromTable([]string{"x"}, [][]float64{{0, 1}}, 4)
	assert.Error(t, err)
	_, err = FromTable([]string{"x", "y"}, [][]float64{{0, -1}, {1, 0}}, 4)
	assert.Error(t, err)
}
