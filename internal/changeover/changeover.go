// Package changeover converts job distances into line changeover minutes.
package changeover

import (
	"fmt"
	"log"
	"sync"

	"lineplan/internal/metrics"
)

const (
	DefaultBaseMinutes          = 2.0
	DefaultMaxAdditionalMinutes = 2.0
	DefaultUnknownMinutes       = 3.0
)

// Params configure the distance → minutes conversion.
type Params struct {
	BaseMinutes          float64
	MaxAdditionalMinutes float64
	DefaultMinutes       float64
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{
		BaseMinutes:          DefaultBaseMinutes,
		MaxAdditionalMinutes: DefaultMaxAdditionalMinutes,
		DefaultMinutes:       DefaultUnknownMinutes,
	}
}

// Distancer yields a distance for a job pair; affinity models satisfy it.
type Distancer interface {
	Distance(a, b string) (float64, bool)
}

// Model is a directed changeover matrix. The diagonal is always zero.
type Model struct {
	names  []string
	index  map[string]int
	vals   []float64
	known  []bool
	def    float64
	warned sync.Map
}

func newModel(names []string, def float64) *Model {
	n := len(names)
	m := &Model{
		names: append([]string(nil), names...),
		index: make(map[string]int, n),
		vals:  make([]float64, n*n),
		known: make([]bool, n*n),
		def:   def,
	}
	for i, name := range m.names {
		m.index[name] = i
	}
	return m
}

// FromDistance computes base + distance × maxAdditional for every pair of names.
func FromDistance(names []string, d Distancer, p Params) *Model {
	m := newModel(names, p.DefaultMinutes)
	n := len(names)
	for i, a := range names {
		for j, b := range names {
			if i == j {
				m.known[i*n+j] = true
				continue
			}
			dist, ok := d.Distance(a, b)
			if !ok {
				continue
			}
			m.vals[i*n+j] = p.BaseMinutes + dist*p.MaxAdditionalMinutes
			m.known[i*n+j] = true
		}
	}
	return m
}

// FromTable wraps an externally supplied matrix, rows[i][j] being the minutes from
// names[i] to names[j]. Diagonal entries are forced to zero.
func FromTable(names []string, rows [][]float64, def float64) (*Model, error) {
	if len(rows) != len(names) {
		return nil, fmt.Errorf("changeover table: %d rows for %d jobs", len(rows), len(names))
	}
	m := newModel(names, def)
	n := len(names)
	for i, row := range rows {
		if len(row) != n {
			return nil, fmt.Errorf("changeover table: row %d has %d columns", i, len(row))
		}
		for j, v := range row {
			if v < 0 {
				return nil, fmt.Errorf("changeover table: negative value at (%d,%d)", i, j)
			}
			if i != j {
				m.vals[i*n+j] = v
			}
			m.known[i*n+j] = true
		}
	}
	return m, nil
}

// Time returns the minutes to switch from prev to next. Pairs outside the
// matrix return the default and log a warning once per pair.
func (m *Model) Time(prev, next string) float64 {
	if prev == next {
		return 0
	}
	i, ok1 := m.index[prev]
	j, ok2 := m.index[next]
	if ok1 && ok2 && m.known[i*len(m.names)+j] {
		return m.vals[i*len(m.names)+j]
	}
	metrics.ChangeoverFallbacks.Inc()
	if _, dup := m.warned.LoadOrStore(prev+"\x00"+next, true); !dup {
		log.Printf("warn: changeover: no value for %q -> %q, using default %.2f min", prev, next, m.def)
	}
	return m.def
}

// Default is the fallback changeover minutes.
func (m *Model) Default() float64 { return m.def }

// Names returns the jobs covered by the matrix.
func (m *Model) Names() []string { return append([]string(nil), m.names...) }

// Table is an externally supplied matrix; Rows[i][j] is the minutes from Names[i] to Names[j].
type Table struct {
	Names []string
	Rows  [][]float64
}

// Model builds the changeover model for the table.
func (t Table) Model(def float64) (*Model, error) { return FromTable(t.Names, t.Rows, def) }
