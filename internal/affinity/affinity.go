// Package affinity scores how related two jobs are, either from historical
// co-ordering or from an externally supplied semantic distance matrix.
package affinity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"lineplan/internal/orders"
)

// Kind tags a model variant.
type Kind string

const (
	KindCooccurrence Kind = "cooccurrence"
	KindEmbedding    Kind = "embedding"
)

// ErrInvalidMatrix is returned when a distance matrix breaks the provider contract.
var ErrInvalidMatrix = errors.New("affinity: invalid distance matrix")

// Model produces a symmetric relatedness value for any job pair.
// Affinity grows with relatedness; Distance is its normalized complement.
type Model interface {
	Kind() Kind
	Names() []string
	Affinity(a, b string) float64
	Distance(a, b string) (float64, bool)
}

// matrix is a dense square matrix keyed by job name.
type matrix struct {
	names []string
	index map[string]int
	vals  []float64
}

func newMatrix(names []string) *matrix {
	m := &matrix{names: append([]string(nil), names...), index: make(map[string]int, len(names))}
	for i, n := range m.names {
		m.index[n] = i
	}
	m.vals = make([]float64, len(names)*len(names))
	return m
}

func (m *matrix) at(i, j int) float64 { return m.vals[i*len(m.names)+j] }

func (m *matrix) pair(a, b string) (int, int, bool) {
	i, ok := m.index[a]
	if !ok {
		return 0, 0, false
	}
	j, ok := m.index[b]
	return i, j, ok
}

// Cooccurrence counts how often each job pair appears in the same order.
type Cooccurrence struct {
	m   *matrix
	max float64
}

// BuildCooccurrence counts pairs over orders. Orders are sharded across
// workers and the shard counts summed; workers <= 0 uses GOMAXPROCS.
// Jobs outside names are ignored.
func BuildCooccurrence(ctx context.Context, names []string, ords []orders.Order, workers int) (*Cooccurrence, error) {
	m := newMatrix(names)
	n := len(names)
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(ords) {
		workers = len(ords)
	}
	if workers < 1 {
		workers = 1
	}
	shards := make([][]float64, workers)
	g, gctx := errgroup.WithContext(ctx)
	per := (len(ords) + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo := min(w*per, len(ords))
		hi := min(lo+per, len(ords))
		w := w
		g.Go(func() error {
			local := make([]float64, n*n)
			for _, o := range ords[lo:hi] {
				if err := gctx.Err(); err != nil {
					return err
				}
				idx := make([]int, 0, len(o.Jobs))
				seen := map[int]bool{}
				for _, j := range o.Jobs {
					if i, ok := m.index[j]; ok && !seen[i] {
						seen[i] = true
						idx = append(idx, i)
					}
				}
				for a := 0; a < len(idx); a++ {
					for b := a + 1; b < len(idx); b++ {
						local[idx[a]*n+idx[b]]++
						local[idx[b]*n+idx[a]]++
					}
				}
			}
			shards[w] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("build co-occurrence: %w", err)
	}
	c := &Cooccurrence{m: m}
	for _, s := range shards {
		for i, v := range s {
			m.vals[i] += v
		}
	}
	for _, v := range m.vals {
		c.max = math.Max(c.max, v)
	}
	return c, nil
}

func (c *Cooccurrence) Kind() Kind      { return KindCooccurrence }
func (c *Cooccurrence) Names() []string { return append([]string(nil), c.m.names...) }

// Count returns the number of orders containing both jobs.
func (c *Cooccurrence) Count(a, b string) int {
	i, j, ok := c.m.pair(a, b)
	if !ok {
		return 0
	}
	return int(c.m.at(i, j))
}

// Max is the largest pair count.
func (c *Cooccurrence) Max() int { return int(c.max) }

func (c *Cooccurrence) Affinity(a, b string) float64 { return float64(c.Count(a, b)) }

// Distance is 1 − count/max. With no co-ordered pairs every distinct pair is 1.
func (c *Cooccurrence) Distance(a, b string) (float64, bool) {
	i, j, ok := c.m.pair(a, b)
	if !ok {
		return 0, false
	}
	if i == j {
		return 0, true
	}
	if c.max == 0 {
		return 1, true
	}
	return 1 - c.m.at(i, j)/c.max, true
}

// DistanceProvider supplies a job × job semantic distance matrix in the order of names.
type DistanceProvider interface {
	Distances(ctx context.Context, names []string) ([][]float64, error)
}

// EmbeddingDistance wraps a validated provider distance matrix.
type EmbeddingDistance struct {
	m *matrix
}

const symmetryTolerance = 1e-6

// NewEmbeddingDistance validates dist against names: square, same size,
// non-negative, symmetric and zero on the diagonal.
func NewEmbeddingDistance(names []string, dist [][]float64) (*EmbeddingDistance, error) {
	if len(dist) != len(names) {
		return nil, fmt.Errorf("%w: %d rows for %d jobs", ErrInvalidMatrix, len(dist), len(names))
	}
	m := newMatrix(names)
	n := len(names)
	for i, row := range dist {
		if len(row) != n {
			return nil, fmt.Errorf("%w: row %d has %d columns", ErrInvalidMatrix, i, len(row))
		}
		for j, v := range row {
			switch {
			case math.IsNaN(v) || v < 0:
				return nil, fmt.Errorf("%w: negative or NaN at (%d,%d)", ErrInvalidMatrix, i, j)
			case i == j && v > symmetryTolerance:
				return nil, fmt.Errorf("%w: non-zero diagonal at %d", ErrInvalidMatrix, i)
			case math.Abs(v-dist[j][i]) > symmetryTolerance:
				return nil, fmt.Errorf("%w: asymmetric at (%d,%d)", ErrInvalidMatrix, i, j)
			}
			if i != j {
				m.vals[i*n+j] = v
			}
		}
	}
	return &EmbeddingDistance{m: m}, nil
}

// FromProvider asks p for the distances of names and validates the result.
func FromProvider(ctx context.Context, p DistanceProvider, names []string) (*EmbeddingDistance, error) {
	dist, err := p.Distances(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("embedding distances: %w", err)
	}
	return NewEmbeddingDistance(names, dist)
}

func (e *EmbeddingDistance) Kind() Kind      { return KindEmbedding }
func (e *EmbeddingDistance) Names() []string { return append([]string(nil), e.m.names...) }

func (e *EmbeddingDistance) Distance(a, b string) (float64, bool) {
	i, j, ok := e.m.pair(a, b)
	if !ok {
		return 0, false
	}
	return e.m.at(i, j), true
}

// Affinity is the cosine similarity 1 − distance; unknown pairs score 0.
func (e *EmbeddingDistance) Affinity(a, b string) float64 {
	d, ok := e.Distance(a, b)
	if !ok || a == b {
		return 0
	}
	return 1 - d
}

// DenseDistance materializes the model's distances over names. Unknown pairs get 1.
func DenseDistance(m Model, names []string) [][]float64 {
	out := make([][]float64, len(names))
	for i, a := range names {
		out[i] = make([]float64, len(names))
		for j, b := range names {
			if i == j {
				continue
			}
			d, ok := m.Distance(a, b)
			if !ok {
				d = 1
			}
			out[i][j] = d
		}
	}
	return out
}
