package api

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"lineplan/internal/config"
	"lineplan/internal/metrics"
	"lineplan/internal/planner"
	"lineplan/internal/store"
	"lineplan/internal/webhooks"
)

type Server struct {
	Store   store.Store
	Pub     *webhooks.Publisher
	Broker  EventBroker
	Planner *planner.Planner
	Config  config.Config
	// limits plan creation; nil means unlimited
	limiter *rate.Limiter
	// runs holds in-flight async plans
	runs runTracker
}

// NewServer wires the store and broker from cfg. Without a database URL the
// in-memory store is used; without a Redis URL the in-process broker.
func NewServer(cfg config.Config, opts ...planner.Option) (*Server, error) {
	var s store.Store
	if dsn := strings.TrimSpace(cfg.Server.DatabaseURL); dsn == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(dsn)
		if err != nil {
			return nil, err
		}
		if err := sp.Migrate(context.Background()); err != nil {
			return nil, err
		}
		s = sp
	}
	var broker EventBroker = NewBroker()
	if u := cfg.Server.RedisURL; u != "" {
		if rb, err := NewRedisBroker(u); err == nil {
			broker = rb
		} else {
			log.Printf("warn: redis broker unavailable, using in-process broker: %v", err)
		}
	}
	srv := &Server{
		Store:   s,
		Pub:     webhooks.NewPublisher(s),
		Broker:  broker,
		Planner: planner.New(cfg, opts...),
		Config:  cfg,
	}
	if n := cfg.Server.PlansPerMin; n > 0 {
		srv.limiter = rate.NewLimiter(rate.Limit(float64(n)/60), n)
	}
	return srv, nil
}

// Routes mounts every endpoint.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/orders:import", s.OrdersImportHandler)
	mux.HandleFunc("/v1/plans", s.PlansHandler)
	mux.HandleFunc("/v1/plans/metrics", s.PlanMetricsHandler)
	mux.HandleFunc("/v1/plans/", s.PlanByIDHandler) // includes /timeline, /events, /ws
	mux.HandleFunc("/v1/planner/config", s.PlannerConfigHandler)
	mux.HandleFunc("/v1/subscriptions", s.SubscriptionsHandler)
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	return mux
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker(getenv func(string) string) *webhooks.Worker {
	return webhooks.NewWorker(s.Store, getenv)
}

// Wait blocks until in-flight async plans finish or ctx is done.
func (s *Server) Wait(ctx context.Context) error { return s.runs.wait(ctx) }
