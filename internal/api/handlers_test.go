package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"lineplan/internal/config"
	"lineplan/internal/model"
	"lineplan/internal/orders"
	"lineplan/internal/planner"
	"lineplan/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Lines = 2
	cfg.Routing.TimeLimit = 200 * time.Millisecond
	cfg.Routing.IterationsLimit = 20
	cfg.Server.PlansPerMin = 0
	s, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

const ordersCSV = "order_id,job,quantity\no1,kimchi,100\no1,bulgogi,40\no2,kimchi,50\no2,japchae,10\no3,bulgogi,20\no3,japchae,30\n"

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case []byte:
		rd = bytes.NewReader(b)
	default:
		enc, _ := json.Marshal(b)
		rd = bytes.NewReader(enc)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthReady(t *testing.T) {
	h := newTestServer(t).Routes()
	if rr := do(t, h, http.MethodGet, "/healthz", nil); rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/readyz", nil); rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/metrics", nil); rr.Code != 200 {
		t.Fatalf("metrics: got %d", rr.Code)
	}
}

func TestImportThenPlanByDate(t *testing.T) {
	h := newTestServer(t).Routes()
	rr := do(t, h, http.MethodPost, "/v1/orders:import", model.ImportRequest{PlanDate: "2026-10-14", CSV: ordersCSV})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("import: %d %s", rr.Code, rr.Body.String())
	}
	var imp model.ImportResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &imp)
	if imp.Orders != 3 || imp.Jobs != 3 || imp.Records != 6 {
		t.Fatalf("unexpected import response %+v", imp)
	}

	rr = do(t, h, http.MethodPost, "/v1/plans", model.PlanRequest{PlanDate: "2026-10-14", Strategy: "seed-grow"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("plan: %d %s", rr.Code, rr.Body.String())
	}
	var plan planner.Plan
	if err := json.Unmarshal(rr.Body.Bytes(), &plan); err != nil {
		t.Fatalf("decode plan: %v", err)
	}
	if plan.Strategy != "seed-grow" || len(plan.Timings) != 3 {
		t.Fatalf("unexpected plan %+v", plan)
	}

	if rr := do(t, h, http.MethodGet, "/v1/plans/"+plan.ID, nil); rr.Code != 200 {
		t.Fatalf("get plan: %d", rr.Code)
	}
	rr = do(t, h, http.MethodGet, "/v1/plans?planDate=2026-10-14", nil)
	var list struct{ Items []model.PlanSummary }
	_ = json.Unmarshal(rr.Body.Bytes(), &list)
	if len(list.Items) != 1 || list.Items[0].ID != plan.ID {
		t.Fatalf("list plans: %s", rr.Body.String())
	}

	rr = do(t, h, http.MethodGet, "/v1/plans/"+plan.ID+"/timeline?format=csv", nil)
	if rr.Code != 200 || !strings.HasPrefix(rr.Body.String(), "line,seq,job") {
		t.Fatalf("timeline csv: %d %q", rr.Code, rr.Body.String())
	}
	if n := strings.Count(strings.TrimSpace(rr.Body.String()), "\n"); n != 3 {
		t.Fatalf("want 3 timeline rows, got %d", n)
	}

	rr = do(t, h, http.MethodGet, "/v1/plans/metrics?planDate=2026-10-14", nil)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), plan.ID) {
		t.Fatalf("metrics: %d %s", rr.Code, rr.Body.String())
	}
}

func TestPlanErrors(t *testing.T) {
	h := newTestServer(t).Routes()
	cases := []struct {
		name string
		body any
		code int
	}{
		{"bad json", []byte(`{`), 400},
		{"no input", model.PlanRequest{}, 400},
		{"bad strategy", model.PlanRequest{PlanDate: "d", Strategy: "random"}, 400},
		{"bad mode", model.PlanRequest{PlanDate: "d", Mode: "exact"}, 400},
		{"unknown date", model.PlanRequest{PlanDate: "1999-01-01"}, 404},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/v1/plans", c.body)
			if rr.Code != c.code {
				t.Fatalf("got %d want %d: %s", rr.Code, c.code, rr.Body.String())
			}
			if ct := rr.Header().Get("Content-Type"); ct != "application/problem+json" {
				t.Fatalf("content type %q", ct)
			}
		})
	}
	if rr := do(t, h, http.MethodGet, "/v1/plans/nope", nil); rr.Code != 404 {
		t.Fatalf("missing plan: %d", rr.Code)
	}
}

func TestRateLimitedPlans(t *testing.T) {
	cfg := newTestServer(t).Config
	cfg.Server.PlansPerMin = 1
	limited, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	h := limited.Routes()
	body := []byte(`{"records":[{"orderId":"o1","job":"a","quantity":1}]}`)
	if rr := do(t, h, http.MethodPost, "/v1/plans", body); rr.Code != http.StatusCreated {
		t.Fatalf("first plan: %d %s", rr.Code, rr.Body.String())
	}
	if rr := do(t, h, http.MethodPost, "/v1/plans", body); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second plan: %d", rr.Code)
	}
}

func TestAsyncPlanStreamsEvents(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	body := []byte(`{"async":true,"records":[{"orderId":"o1","job":"a","quantity":1},{"orderId":"o1","job":"b","quantity":2},{"orderId":"o2","job":"c","quantity":1}]}`)
	resp, err := http.Post(srv.URL+"/v1/plans", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	var acc model.PlanAccepted
	_ = json.NewDecoder(resp.Body).Decode(&acc)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted || acc.ID == "" {
		t.Fatalf("async accept: %d %+v", resp.StatusCode, acc)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	// finished plans answer the stream with their completion event
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/plans/"+acc.ID+"/events", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	defer resp.Body.Close()
	sc := bufio.NewScanner(resp.Body)
	found := false
	for sc.Scan() {
		if sc.Text() == "event: "+planner.EventCompleted {
			found = true
			break
		}
	}
	if !found {
		t.Fatal("no completion event on stream")
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/plans/" + acc.ID + "/ws"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	defer conn.Close()
	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ws read: %v", err)
	}
	if msg.Type != planner.EventCompleted || msg.Data["planId"] != acc.ID {
		t.Fatalf("unexpected ws message %+v", msg)
	}
}

func TestSubscriptionsAndConfig(t *testing.T) {
	s := newTestServer(t)
	s.Config.Embeddings.Token = "sk-secret"
	h := s.Routes()
	rr := do(t, h, http.MethodPost, "/v1/subscriptions", model.SubscriptionRequest{URL: "https://hooks.example/x", Events: []string{"plan.completed"}, Secret: "s"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("subscribe: %d %s", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), `"secret"`) {
		t.Fatalf("secret echoed: %s", rr.Body.String())
	}
	if rr := do(t, h, http.MethodPost, "/v1/subscriptions", model.SubscriptionRequest{URL: "ftp://x", Events: []string{"plan.completed"}}); rr.Code != 400 {
		t.Fatalf("bad url: %d", rr.Code)
	}

	// a completed plan enqueues a webhook delivery
	body := []byte(`{"records":[{"orderId":"o1","job":"a","quantity":1}]}`)
	if rr := do(t, h, http.MethodPost, "/v1/plans", body); rr.Code != http.StatusCreated {
		t.Fatalf("plan: %d", rr.Code)
	}
	due, _ := s.Store.FetchDueWebhookDeliveries(context.Background(), 10)
	if len(due) != 1 || due[0].EventType != planner.EventCompleted {
		t.Fatalf("want one plan.completed delivery, got %+v", due)
	}

	rr = do(t, h, http.MethodGet, "/v1/planner/config", nil)
	if rr.Code != 200 || strings.Contains(rr.Body.String(), "sk-secret") {
		t.Fatalf("config: %d %s", rr.Code, rr.Body.String())
	}
}

type failingSaveStore struct {
	store.Store
}

func (failingSaveStore) SavePlan(context.Context, *planner.Plan) error {
	return errors.New("disk full")
}

func TestSaveFailurePublishesFailedEvent(t *testing.T) {
	s := newTestServer(t)
	s.Store = failingSaveStore{Store: s.Store}

	ch := s.Broker.Subscribe("p-save")
	defer s.Broker.Unsubscribe("p-save", ch)
	got := make(chan SSEEvent, 1)
	go func() {
		for evt := range ch {
			if isTerminal(evt.Type) {
				got <- evt
				return
			}
		}
	}()

	req := planner.Request{ID: "p-save", Records: []orders.Record{
		{OrderID: "o1", Job: "a", Quantity: 1},
		{OrderID: "o1", Job: "b", Quantity: 2},
	}}
	if _, err := s.runPlan(context.Background(), req); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected save error, got %v", err)
	}
	select {
	case evt := <-got:
		if evt.Type != planner.EventFailed || evt.Data["planId"] != "p-save" {
			t.Fatalf("unexpected terminal event: %+v", evt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no failed event after save error")
	}
}
