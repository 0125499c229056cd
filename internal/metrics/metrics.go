package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the planner
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// CookTimeLookups counts base processing time lookups by result (found, fallback)
	CookTimeLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "planner_cook_time_lookups_total", Help: "Cooking-time lookups by result."},
		[]string{"result"},
	)
	// ChangeoverFallbacks counts changeover lookups that hit the default value
	ChangeoverFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "planner_changeover_fallbacks_total", Help: "Changeover lookups answered with the default."},
	)
	// PlanRuns counts planning runs by strategy, mode and outcome
	PlanRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "planner_runs_total", Help: "Planning runs by strategy, mode and outcome."},
		[]string{"strategy", "mode", "outcome"},
	)
	// PlanObjective holds the latest final objective per strategy
	PlanObjective = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "planner_objective", Help: "Final objective of the latest run per strategy."},
		[]string{"strategy"},
	)
	// PlanDuration records planning wall time in seconds
	PlanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "planner_run_duration_seconds", Help: "Planning run duration in seconds.", Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120}},
		[]string{"mode"},
	)
	// OptimizerMoves counts local search moves by kind (reorder, transfer) and status (accepted, rejected)
	OptimizerMoves = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "planner_optimizer_moves_total", Help: "Local search moves by kind and status."},
		[]string{"kind", "status"},
	)
	// SolverOutcomes counts routing solver results (solved, no_solution)
	SolverOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "planner_solver_outcomes_total", Help: "Routing solver outcomes."},
		[]string{"outcome"},
	)
	// EmbeddingRequests counts embedding provider calls by status
	EmbeddingRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "planner_embedding_requests_total", Help: "Embedding provider requests by status."},
		[]string{"provider", "status"},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the planner registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration)
		Registry.MustRegister(CookTimeLookups, ChangeoverFallbacks)
		Registry.MustRegister(PlanRuns, PlanObjective, PlanDuration)
		Registry.MustRegister(OptimizerMoves, SolverOutcomes, EmbeddingRequests)
		Registry.MustRegister(WebhookDeliveries, WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
