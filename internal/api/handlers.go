package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lineplan/internal/buildinfo"
	"lineplan/internal/integrations/csvfile"
	"lineplan/internal/model"
	"lineplan/internal/opt"
	"lineplan/internal/orders"
	"lineplan/internal/planner"
)

// OrdersImportHandler handles POST /v1/orders:import with a JSON body or a raw
// text/csv body (planDate in the query string).
func (s *Server) OrdersImportHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.ImportRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/csv") {
		req.PlanDate = r.URL.Query().Get("planDate")
		b, err := io.ReadAll(io.LimitReader(r.Body, 32<<20))
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid body", err.Error(), r.URL.Path)
			return
		}
		req.CSV = string(b)
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if strings.TrimSpace(req.PlanDate) == "" {
		writeProblem(w, http.StatusBadRequest, "Missing planDate", "", r.URL.Path)
		return
	}
	recs := req.Records
	if req.CSV != "" {
		parsed, err := csvfile.ParseOrders(strings.NewReader(req.CSV))
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid CSV", err.Error(), r.URL.Path)
			return
		}
		recs = append(recs, parsed...)
	}
	if len(recs) == 0 {
		writeProblem(w, http.StatusBadRequest, "No records", "", r.URL.Path)
		return
	}
	imp, err := s.Store.ImportOrders(r.Context(), req.PlanDate, recs)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Import orders failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusAccepted, model.ImportResponse{
		ImportID: imp,
		PlanDate: req.PlanDate,
		Records:  len(recs),
		Orders:   len(orders.GroupByOrder(recs)),
		Jobs:     len(orders.JobNames(recs)),
	})
}

// PlansHandler handles POST /v1/plans (run) and GET /v1/plans?planDate= (list).
func (s *Server) PlansHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createPlan(w, r)
	case http.MethodGet:
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = n
			}
		}
		items, err := s.Store.ListPlans(r.Context(), r.URL.Query().Get("planDate"), limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List plans failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) createPlan(w http.ResponseWriter, r *http.Request) {
	var req model.PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validatePlanRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid plan request", err.Error(), r.URL.Path)
		return
	}
	if s.limiter != nil && !s.limiter.Allow() {
		w.Header().Set("Retry-After", "2")
		writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "plan creation rate exceeded", r.URL.Path)
		return
	}
	recs := req.Records
	if len(recs) == 0 {
		var err error
		recs, err = s.Store.ListOrderRecords(r.Context(), req.PlanDate)
		if err != nil {
			writeError(w, r, fmt.Errorf("orders for %s: %w", req.PlanDate, err))
			return
		}
	}
	preq := planner.Request{
		PlanDate:   req.PlanDate,
		Records:    recs,
		Strategy:   req.Strategy,
		Mode:       planner.Mode(req.Mode),
		Lines:      req.Lines,
		NoFallback: req.NoFallback,
	}
	if req.Async {
		preq.ID = uuid.NewString()
		s.runs.add()
		go func() {
			defer s.runs.done()
			ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout())
			defer cancel()
			_, _ = s.runPlan(ctx, preq)
		}()
		w.Header().Set("Location", "/v1/plans/"+preq.ID)
		writeJSON(w, http.StatusAccepted, model.PlanAccepted{ID: preq.ID, Status: "running"})
		return
	}
	plan, err := s.runPlan(r.Context(), preq)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/plans/"+plan.ID)
	writeJSON(w, http.StatusCreated, plan)
}

func (s *Server) runTimeout() time.Duration {
	return s.Config.Routing.TimeLimit + 5*time.Minute
}

// runPlan executes, persists and announces a plan.
func (s *Server) runPlan(ctx context.Context, req planner.Request) (*planner.Plan, error) {
	publish := func(e planner.Event) {
		data := map[string]any{"planId": e.PlanID, "objective": e.Objective, "at": e.At.Format(time.RFC3339Nano)}
		if e.Step != nil {
			data["step"] = e.Step
		}
		if e.Error != "" {
			data["error"] = e.Error
		}
		// Terminal events go out after the plan is stored.
		if isTerminal(e.Type) {
			return
		}
		s.Broker.Publish(e.PlanID, SSEEvent{Type: e.Type, Data: data})
	}
	plan, err := s.Planner.Run(ctx, req, publish)
	if err != nil {
		s.planFailed(req.ID, err)
		return nil, err
	}
	if err := s.Store.SavePlan(ctx, plan); err != nil {
		err = fmt.Errorf("save plan: %w", err)
		s.planFailed(plan.ID, err)
		return nil, err
	}
	sum := summaryOf(plan)
	s.Broker.Publish(plan.ID, SSEEvent{Type: planner.EventCompleted, Data: sum})
	s.Pub.Emit(context.Background(), planner.EventCompleted, sum)
	return plan, nil
}

// planFailed tells stream subscribers and webhook targets that planID ended in err.
func (s *Server) planFailed(planID string, err error) {
	log.Printf("warn: plan failed: %v", err)
	if planID == "" {
		return
	}
	data := map[string]any{"planId": planID, "error": err.Error()}
	s.Broker.Publish(planID, SSEEvent{Type: planner.EventFailed, Data: data})
	s.Pub.Emit(context.Background(), planner.EventFailed, data)
}

func summaryOf(p *planner.Plan) map[string]any {
	return map[string]any{
		"planId":          p.ID,
		"planDate":        p.PlanDate,
		"strategy":        p.Strategy,
		"mode":            p.Mode,
		"objective":       p.Final.Objective,
		"makespan":        p.Final.Makespan,
		"improvementRate": p.ImprovementRate,
		"fallback":        p.Fallback,
	}
}

func isTerminal(t string) bool { return t == planner.EventCompleted || t == planner.EventFailed }

// finishedEvent returns the completion event of a stored plan.
func (s *Server) finishedEvent(r *http.Request, planID string) (SSEEvent, bool) {
	p, err := s.Store.GetPlan(r.Context(), planID)
	if err != nil {
		return SSEEvent{}, false
	}
	return SSEEvent{Type: planner.EventCompleted, Data: summaryOf(p)}, true
}

// PlanByIDHandler handles /v1/plans/{id}, /v1/plans/{id}/timeline,
// /v1/plans/{id}/events (SSE) and /v1/plans/{id}/ws.
func (s *Server) PlanByIDHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	rest := strings.TrimPrefix(path, "/v1/plans/")
	if rest == path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}
	switch action {
	case "":
		p, err := s.Store.GetPlan(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	case "timeline":
		s.timeline(w, r, id)
	case "events":
		s.planEvents(w, r, id)
	case "ws":
		s.planWS(w, r, id)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", path)
	}
}

func (s *Server) timeline(w http.ResponseWriter, r *http.Request, id string) {
	p, err := s.Store.GetPlan(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows := make([]model.TimelineRow, 0, len(p.Timings))
	for _, t := range p.Timings {
		rows = append(rows, model.TimelineRow{Line: t.Line, Seq: t.Seq, Job: t.Job, Processing: t.Processing, Changeover: t.Changeover, Start: t.Start, End: t.End})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Line != rows[j].Line {
			return rows[i].Line < rows[j].Line
		}
		return rows[i].Seq < rows[j].Seq
	})
	if r.URL.Query().Get("format") != "csv" {
		writeJSON(w, http.StatusOK, map[string]any{"planId": p.ID, "rows": rows, "buckets": p.Buckets})
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "timeline-"+p.ID+".csv"))
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"line", "seq", "job", "processing", "changeover", "start", "end"})
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
	for _, row := range rows {
		_ = cw.Write([]string{strconv.Itoa(row.Line + 1), strconv.Itoa(row.Seq + 1), row.Job, f(row.Processing), f(row.Changeover), f(row.Start), f(row.End)})
	}
	cw.Flush()
}

func (s *Server) planEvents(w http.ResponseWriter, r *http.Request, id string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path)
		return
	}
	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	send := func(evt SSEEvent) {
		b, _ := json.Marshal(evt.Data)
		fmt.Fprintf(w, "event: %s\n", evt.Type)
		fmt.Fprintf(w, "data: %s\n\n", string(b))
		flusher.Flush()
	}
	if done, ok := s.finishedEvent(r, id); ok {
		send(done)
		return
	}
	// initial heartbeat
	send(SSEEvent{Type: "heartbeat", Data: map[string]any{"planId": id, "ts": time.Now().Format(time.RFC3339)}})
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			send(SSEEvent{Type: "heartbeat", Data: map[string]any{"planId": id, "ts": time.Now().Format(time.RFC3339)}})
		case evt, ok := <-ch:
			if !ok {
				return
			}
			send(evt)
			if isTerminal(evt.Type) {
				return
			}
		}
	}
}

// PlanMetricsHandler handles GET /v1/plans/metrics?planDate=: the latest run
// per strategy, best final objective first.
func (s *Server) PlanMetricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	planDate := r.URL.Query().Get("planDate")
	if planDate == "" {
		writeProblem(w, 400, "Missing planDate", "", r.URL.Path)
		return
	}
	items := opt.GetMetrics(planDate)
	if st := r.URL.Query().Get("strategy"); st != "" {
		kept := items[:0]
		for _, m := range items {
			if m.Strategy == st {
				kept = append(kept, m)
			}
		}
		items = kept
	}
	writeJSON(w, 200, map[string]any{"planDate": planDate, "items": items})
}

// PlannerConfigHandler returns the effective configuration with secrets removed.
func (s *Server) PlannerConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.Config
	cfg.Embeddings.Token = redact(cfg.Embeddings.Token)
	cfg.Server.WebhookSecret = redact(cfg.Server.WebhookSecret)
	cfg.Server.DatabaseURL = redact(cfg.Server.DatabaseURL)
	cfg.Server.RedisURL = redact(cfg.Server.RedisURL)
	writeJSON(w, 200, map[string]any{"config": cfg, "build": buildinfo.Info()})
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateSubscription(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid subscription", err.Error(), r.URL.Path)
		return
	}
	if req.Secret == "" {
		req.Secret = s.Config.Server.WebhookSecret
	}
	sub, err := s.Store.CreateSubscription(r.Context(), req)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
		return
	}
	sub.Secret = ""
	writeJSON(w, http.StatusCreated, sub)
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]any{"status": "ok", "runningPlans": s.runs.active()})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	type pinger interface {
		Ping(ctx context.Context) error
	}
	if rb, ok := s.Broker.(pinger); ok {
		if err := rb.Ping(ctx); err != nil {
			writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, 200, map[string]string{"status": "ready"})
}

type runTracker struct {
	mu sync.Mutex
	n  int
	wg sync.WaitGroup
}

func (t *runTracker) add() {
	t.mu.Lock()
	t.n++
	t.mu.Unlock()
	t.wg.Add(1)
}

func (t *runTracker) done() {
	t.mu.Lock()
	t.n--
	t.mu.Unlock()
	t.wg.Done()
}

func (t *runTracker) active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.n
}

func (t *runTracker) wait(ctx context.Context) error {
	ch := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(ch)
	}()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
