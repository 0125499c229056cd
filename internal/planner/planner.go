// Package planner runs the full planning pipeline: catalog, affinity and
// changeover models, an initial assignment, then either local search or the
// routing solver.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"lineplan/internal/affinity"
	"lineplan/internal/assign"
	"lineplan/internal/catalog"
	"lineplan/internal/changeover"
	"lineplan/internal/config"
	"lineplan/internal/metrics"
	"lineplan/internal/opt"
	"lineplan/internal/orders"
	"lineplan/internal/routing"
	"lineplan/internal/schedule"
	"lineplan/internal/vrp"
)

// Mode selects the solution path.
type Mode string

const (
	ModeHeuristic Mode = "heuristic"
	ModeRouting   Mode = "routing"
)

var (
	ErrNoRecords   = errors.New("planner: no order records")
	ErrUnknownMode = errors.New("planner: unknown mode")
)

// Request describes one planning run. Zero fields take the configured values.
type Request struct {
	// ID is assigned when empty.
	ID       string
	PlanDate string
	Records  []orders.Record
	Strategy string
	Mode     Mode
	Lines    int
	// NoFallback makes a routing failure fatal instead of falling back to the heuristic.
	NoFallback bool
}

// Plan is the stored outcome of a run.
type Plan struct {
	ID              string               `json:"id"`
	PlanDate        string               `json:"planDate,omitempty"`
	Strategy        string               `json:"strategy"`
	Mode            Mode                 `json:"mode"`
	Lines           int                  `json:"lines"`
	Affinity        affinity.Kind        `json:"affinity"`
	Schedule        *schedule.Schedule   `json:"schedule"`
	Initial         schedule.Metrics     `json:"initial"`
	Final           schedule.Metrics     `json:"final"`
	Timings         []schedule.Timing    `json:"timings"`
	Buckets         []schedule.Bucket    `json:"buckets"`
	Summary         schedule.LineSummary `json:"summary"`
	Milestones      []schedule.Milestone `json:"milestones"`
	Throughput      float64              `json:"throughputPerHour"`
	ImprovementRate float64              `json:"improvementRate"`
	Trace           []float64            `json:"trace"`
	Steps           []opt.Step           `json:"steps,omitempty"`
	Rounds          int                  `json:"rounds"`
	Transfers       int                  `json:"transfers"`
	Routing         []routing.LineReport `json:"routing,omitempty"`
	Solver          *vrp.Metrics         `json:"solver,omitempty"`
	Fallback        bool                 `json:"fallback"`
	FallbackReason  string               `json:"fallbackReason,omitempty"`
	MissingTimes    []string             `json:"missingCookTimes,omitempty"`
	Duration        time.Duration        `json:"durationNs"`
	CreatedAt       time.Time            `json:"createdAt"`
}

// Event is a progress notification for a running plan.
type Event struct {
	PlanID    string    `json:"planId"`
	Type      string    `json:"type"`
	Objective float64   `json:"objective"`
	Step      *opt.Step `json:"step,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

const (
	EventStarted   = "plan.started"
	EventStep      = "plan.step"
	EventCompleted = "plan.completed"
	EventFailed    = "plan.failed"
)

// Planner holds configuration and collaborators shared across runs.
type Planner struct {
	cfg        config.Config
	lookup     catalog.Lookup
	distances  affinity.DistanceProvider
	changeover *changeover.Table
	solver     vrp.Solver
}

// Option configures a Planner.
type Option func(*Planner)

// WithLookup sets the cooking-time source.
func WithLookup(l catalog.Lookup) Option { return func(p *Planner) { p.lookup = l } }

// WithDistanceProvider switches the affinity model to provider-supplied distances.
func WithDistanceProvider(d affinity.DistanceProvider) Option {
	return func(p *Planner) { p.distances = d }
}

// WithChangeoverTable uses an external changeover matrix instead of derived values.
func WithChangeoverTable(t *changeover.Table) Option { return func(p *Planner) { p.changeover = t } }

// WithSolver replaces the routing engine.
func WithSolver(s vrp.Solver) Option { return func(p *Planner) { p.solver = s } }

func New(cfg config.Config, opts ...Option) *Planner {
	p := &Planner{cfg: cfg, lookup: catalog.Table{}}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Config returns the planner configuration.
func (p *Planner) Config() config.Config { return p.cfg }

type models struct {
	cat  *catalog.Catalog
	aff  affinity.Model
	co   *changeover.Model
	ords []orders.Order
	eval *schedule.Evaluator
}

func (p *Planner) build(ctx context.Context, recs []orders.Record) (models, error) {
	var m models
	m.ords = orders.GroupByOrder(recs)
	m.cat = catalog.New(orders.QuantityByJob(recs), p.lookup, p.cfg.CatalogOptions())
	names := m.cat.Names()

	cooc, err := affinity.BuildCooccurrence(ctx, names, m.ords, p.cfg.Search.Workers)
	if err != nil {
		return m, err
	}
	m.aff = cooc
	if p.distances != nil {
		emb, err := affinity.FromProvider(ctx, p.distances, names)
		switch {
		case err == nil:
			m.aff = emb
		case ctx.Err() != nil:
			return m, ctx.Err()
		default:
			log.Printf("warn: planner: distance provider failed, using co-occurrence: %v", err)
		}
	}

	if p.changeover != nil {
		m.co, err = p.changeover.Model(p.cfg.Changeover.DefaultMinutes)
		if err != nil {
			return m, err
		}
	} else {
		m.co = changeover.FromDistance(names, m.aff, p.cfg.ChangeoverParams())
	}
	m.eval = schedule.NewEvaluator(m.cat, m.co, m.ords, p.cfg.Objective)
	return m, nil
}

// Run executes one plan. publish, if non-nil, receives progress events.
func (p *Planner) Run(ctx context.Context, req Request, publish func(Event)) (*Plan, error) {
	started := time.Now()
	lines := req.Lines
	if lines == 0 {
		lines = p.cfg.Lines
	}
	if lines <= 0 {
		return nil, fmt.Errorf("planner: %w: got %d", assign.ErrInvalidLineCount, lines)
	}
	if len(req.Records) == 0 {
		return nil, ErrNoRecords
	}
	mode := req.Mode
	if mode == "" {
		mode = ModeHeuristic
	}
	if mode != ModeHeuristic && mode != ModeRouting {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	name := req.Strategy
	if name == "" {
		name = p.cfg.Strategy
	}
	strategy, err := assign.ParseStrategy(name)
	if err != nil {
		return nil, err
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	plan := &Plan{
		ID:        id,
		PlanDate:  req.PlanDate,
		Strategy:  string(strategy),
		Mode:      mode,
		Lines:     lines,
		CreatedAt: started.UTC(),
	}
	emit := func(e Event) {
		if publish == nil {
			return
		}
		e.PlanID, e.At = plan.ID, time.Now().UTC()
		publish(e)
	}
	emit(Event{Type: EventStarted})

	err = p.run(ctx, plan, req, strategy, emit)
	plan.Duration = time.Since(started)
	metrics.PlanDuration.WithLabelValues(string(mode)).Observe(plan.Duration.Seconds())
	if err != nil {
		metrics.PlanRuns.WithLabelValues(plan.Strategy, string(mode), "error").Inc()
		emit(Event{Type: EventFailed, Error: err.Error()})
		return nil, err
	}
	outcome := "ok"
	if plan.Fallback {
		outcome = "fallback"
	}
	metrics.PlanRuns.WithLabelValues(plan.Strategy, string(mode), outcome).Inc()
	metrics.PlanObjective.WithLabelValues(plan.Strategy).Set(plan.Final.Objective)
	opt.RecordMetrics(plan.PlanDate, opt.RunMetrics{
		PlanID:      plan.ID,
		Strategy:    plan.Strategy,
		Mode:        string(mode),
		Initial:     plan.Initial.Objective,
		Final:       plan.Final.Objective,
		Improvement: plan.ImprovementRate,
		Makespan:    plan.Final.Makespan,
		Rounds:      plan.Rounds,
		Transfers:   plan.Transfers,
		Duration:    plan.Duration,
	})
	log.Printf("planner: plan %s strategy=%s mode=%s lines=%d objective=%.3f -> %.3f (%s)",
		plan.ID, plan.Strategy, mode, lines, plan.Initial.Objective, plan.Final.Objective, plan.Duration.Round(time.Millisecond))
	emit(Event{Type: EventCompleted, Objective: plan.Final.Objective})
	return plan, nil
}

func (p *Planner) run(ctx context.Context, plan *Plan, req Request, strategy assign.Strategy, emit func(Event)) error {
	m, err := p.build(ctx, req.Records)
	if err != nil {
		return err
	}
	plan.Affinity = m.aff.Kind()
	plan.MissingTimes = m.cat.Fallbacks()

	if plan.Mode == ModeRouting {
		router := routing.New(p.solver, p.cfg.RoutingOptions())
		rr, err := router.Plan(ctx, m.cat.Names(), m.cat, m.co, plan.Lines)
		if err == nil {
			ev := m.eval.Evaluate(rr.Schedule)
			plan.Schedule = rr.Schedule
			plan.Initial, plan.Final = ev.Metrics, ev.Metrics
			plan.Trace = []float64{ev.Metrics.Objective}
			plan.Routing = rr.Lines
			solver := rr.Solver
			plan.Solver = &solver
			p.report(plan, ev)
			return nil
		}
		if !errors.Is(err, routing.ErrNoSolution) || req.NoFallback {
			return err
		}
		fb, perr := assign.ParseStrategy(p.cfg.Routing.FallbackStrategy)
		if perr != nil {
			return err
		}
		log.Printf("warn: planner: %v, falling back to %s", err, fb)
		plan.Fallback, plan.FallbackReason = true, err.Error()
		plan.Strategy = string(fb)
		strategy = fb
	}
	return p.heuristic(ctx, plan, m, strategy, emit)
}

func (p *Planner) heuristic(ctx context.Context, plan *Plan, m models, strategy assign.Strategy, emit func(Event)) error {
	a, err := assign.New(strategy, assign.Options{ClusterCount: p.cfg.ClusterCount})
	if err != nil {
		return err
	}
	in := assign.Input{Jobs: m.cat.Names(), Affinity: m.aff, Orders: m.ords, Times: m.cat, Changeover: m.co}
	s, err := a.Assign(in, plan.Lines)
	if err != nil {
		return err
	}
	if err := s.Validate(in.Jobs); err != nil {
		return fmt.Errorf("planner: %s produced an invalid schedule: %w", strategy, err)
	}
	initial := m.eval.Evaluate(s)

	o := opt.New(m.eval, m.cat, m.co, p.cfg.Search)
	o.OnProgress(func(st opt.Step) {
		emit(Event{Type: EventStep, Objective: st.Objective, Step: &st})
	})
	res, err := o.Optimize(ctx, s)
	if err != nil {
		return err
	}
	final := m.eval.Evaluate(res.Schedule)
	plan.Schedule = res.Schedule
	plan.Initial, plan.Final = initial.Metrics, final.Metrics
	plan.Trace, plan.Steps = res.Trace, res.Steps
	plan.Rounds, plan.Transfers = res.Rounds, res.Transfers
	p.report(plan, final)
	return nil
}

func (p *Planner) report(plan *Plan, ev schedule.Evaluation) {
	plan.Timings = ev.Timings
	plan.Buckets = schedule.CompletionBuckets(ev.Metrics, schedule.DefaultBucketMinutes)
	plan.Summary = schedule.SummarizeLines(ev.Metrics)
	plan.Milestones = schedule.Milestones(ev.Metrics, schedule.DefaultMilestones)
	plan.Throughput = schedule.ThroughputPerHour(ev.Metrics)
	plan.ImprovementRate = schedule.ImprovementRate(plan.Initial.Objective, plan.Final.Objective)
}
