// Package catalog holds the jobs of a planning run and their processing times.
package catalog

import (
	"log"
	"sort"

	"lineplan/internal/metrics"
)

const (
	// DefaultUnitMinutes is the processing time added per ordered unit.
	DefaultUnitMinutes = 0.01
	// DefaultBaseMinutes is used when the cooking-time lookup has no entry for a job.
	DefaultBaseMinutes = 3.0
)

// Job is an immutable production job.
type Job struct {
	name     string
	base     float64
	quantity int
	unit     float64
}

// NewJob builds a job. Negative quantities are treated as zero.
func NewJob(name string, base float64, quantity int, unit float64) Job {
	if quantity < 0 {
		quantity = 0
	}
	return Job{name: name, base: base, quantity: quantity, unit: unit}
}

func (j Job) Name() string      { return j.name }
func (j Job) Base() float64     { return j.base }
func (j Job) Quantity() int     { return j.quantity }
func (j Job) UnitTime() float64 { return j.unit }

// ProcessingTime is base + quantity × unit time.
func (j Job) ProcessingTime() float64 { return j.base + float64(j.quantity)*j.unit }

// Lookup maps a job to its base processing minutes.
type Lookup interface {
	BaseMinutes(job string) (float64, bool)
}

// Options tune catalog construction.
type Options struct {
	UnitMinutes        float64
	DefaultBaseMinutes float64
}

// withDefaults fills the zero Options with the production defaults. Any other
// value is used as given, so a unit time of zero really means zero.
func (o Options) withDefaults() Options {
	if o == (Options{}) {
		return Options{UnitMinutes: DefaultUnitMinutes, DefaultBaseMinutes: DefaultBaseMinutes}
	}
	return o
}

// Catalog is the read-only job set of one planning run.
type Catalog struct {
	jobs      []Job
	index     map[string]int
	fallbacks []string
	lookup    Lookup
	opts      Options
}

// New builds a catalog for every job in quantities, sorted by name.
func New(quantities map[string]int, lookup Lookup, opts Options) *Catalog {
	names := make([]string, 0, len(quantities))
	for n := range quantities {
		names = append(names, n)
	}
	sort.Strings(names)
	c := &Catalog{index: make(map[string]int, len(names)), lookup: lookup, opts: opts.withDefaults()}
	for _, n := range names {
		j, found := c.Resolve(n, quantities[n])
		if !found {
			c.fallbacks = append(c.fallbacks, n)
		}
		c.index[n] = len(c.jobs)
		c.jobs = append(c.jobs, j)
	}
	return c
}

// Resolve builds a job through the lookup. When the lookup has no entry the
// default base is used, a warning is logged and found is false.
func (c *Catalog) Resolve(name string, quantity int) (Job, bool) {
	base, ok := 0.0, false
	if c.lookup != nil {
		base, ok = c.lookup.BaseMinutes(name)
	}
	if !ok {
		base = c.opts.DefaultBaseMinutes
		metrics.CookTimeLookups.WithLabelValues("fallback").Inc()
		log.Printf("warn: catalog: no cooking time for %q, using default %.2f min", name, base)
	} else {
		metrics.CookTimeLookups.WithLabelValues("found").Inc()
	}
	return NewJob(name, base, quantity, c.opts.UnitMinutes), ok
}

// Jobs returns the jobs in catalog order.
func (c *Catalog) Jobs() []Job { return append([]Job(nil), c.jobs...) }

// Names returns job names in catalog order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.jobs))
	for i, j := range c.jobs {
		out[i] = j.name
	}
	return out
}

func (c *Catalog) Len() int { return len(c.jobs) }

func (c *Catalog) Job(name string) (Job, bool) {
	i, ok := c.index[name]
	if !ok {
		return Job{}, false
	}
	return c.jobs[i], true
}

// ProcessingTime returns the job's total processing time. A job outside the
// catalog is resolved with quantity zero.
func (c *Catalog) ProcessingTime(name string) float64 {
	if j, ok := c.Job(name); ok {
		return j.ProcessingTime()
	}
	j, _ := c.Resolve(name, 0)
	return j.ProcessingTime()
}

// Fallbacks lists the catalog jobs whose base time came from the default.
func (c *Catalog) Fallbacks() []string { return append([]string(nil), c.fallbacks...) }
