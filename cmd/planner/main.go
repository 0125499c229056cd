package main

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"lineplan/internal/api"
	"lineplan/internal/catalog"
	"lineplan/internal/config"
	"lineplan/internal/embedding"
	"lineplan/internal/integrations"
	"lineplan/internal/integrations/csvfile"
	"lineplan/internal/metrics"
	"lineplan/internal/planner"
)

func main() {
	cfg, err := config.Load(os.Getenv("PLANNER_CONFIG"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	metrics.RegisterDefault()

	opts, err := plannerOptions(cfg)
	if err != nil {
		log.Fatalf("planner: %v", err)
	}
	srvDeps, err := api.NewServer(cfg, opts...)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}
	if p := os.Getenv("ORDERS_CSV"); p != "" {
		integrations.Register(csvfile.Adapter{Path: p})
		log.Printf("order adapters: %v", integrations.Names())
	}

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(srvDeps.Routes()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	worker := srvDeps.NewWebhookWorker(os.Getenv)
	worker.Start()

	go func() {
		log.Printf("planner API listening on %s (lines=%d strategy=%s)", addr, cfg.Lines, cfg.Strategy)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdown, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdown)
	if err := srvDeps.Wait(shutdown); err != nil {
		log.Printf("warn: plans still running at shutdown: %v", err)
	}
	close(worker.Stop)
}

// plannerOptions loads the optional cooking-time table, changeover matrix and
// embedding provider named by cfg.
func plannerOptions(cfg config.Config) ([]planner.Option, error) {
	var opts []planner.Option
	if path := cfg.Catalog.CookTimesFile; path != "" {
		var (
			tbl catalog.Table
			err error
		)
		if filepath.Ext(path) == ".csv" {
			tbl, err = csvfile.LoadCookTimes(path)
		} else {
			tbl, err = catalog.LoadTable(path)
		}
		if err != nil {
			return nil, err
		}
		log.Printf("cooking times: %d jobs from %s", len(tbl), path)
		opts = append(opts, planner.WithLookup(tbl))
	}
	if path := cfg.Changeover.MatrixFile; path != "" {
		t, err := csvfile.LoadChangeover(path, cfg.Changeover.DefaultMinutes)
		if err != nil {
			return nil, err
		}
		opts = append(opts, planner.WithChangeoverTable(t))
	}
	switch cfg.Embeddings.Provider {
	case "", "none":
	default:
		e := cfg.Embeddings
		p, err := embedding.New(embedding.Options{
			Provider:          e.Provider,
			Model:             e.Model,
			ServerURL:         e.ServerURL,
			Token:             e.Token,
			RequestsPerSecond: e.RequestsPerSecond,
			BatchSize:         e.BatchSize,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, planner.WithDistanceProvider(p))
	}
	return opts, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE streaming working through the middleware.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack is needed by the websocket upgrader.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	return h.Hijack()
}

// Unwrap lets http.ResponseController and the websocket upgrader reach the connection.
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		dur := time.Since(start)
		code := strconv.Itoa(rec.status)
		route := routeLabel(r.URL.Path)
		metrics.HTTPRequests.WithLabelValues(r.Method, route, code).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, route, code).Observe(dur.Seconds())
		log.Printf("%s %s %s %d %v", r.RemoteAddr, r.Method, r.URL.Path, rec.status, dur)
	})
}

// routeLabel collapses plan ids so metric cardinality stays bounded.
func routeLabel(path string) string {
	rest, ok := strings.CutPrefix(path, "/v1/plans/")
	if !ok || rest == "metrics" {
		return path
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return "/v1/plans/{id}" + rest[i:]
	}
	return "/v1/plans/{id}"
}
