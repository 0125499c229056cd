package webhooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"lineplan/internal/model"
	"lineplan/internal/store"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []MarkRec
	fails []FailRec
}
type MarkRec struct {
	ID            string
	Success       bool
	Code, Latency int
	LastErr       string
}
type FailRec struct {
	ID            string
	Code, Latency int
	LastErr       string
}

func (r *recordStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.marks = append(r.marks, MarkRec{ID: id, Success: success, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.MarkWebhookDelivery(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}
func (r *recordStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.fails = append(r.fails, FailRec{ID: id, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.FailWebhookDelivery(ctx, id, lastError, responseCode, latencyMs)
}

func TestWorkerProcessOnce_SuccessAndSignature(t *testing.T) {
	var gotSig, gotType string
	body := []byte(`{"id":"evt1"}`)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotType = r.Header.Get("X-Event-Type")
		w.WriteHeader(200)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 3}
	id, err := rs.Memory.EnqueueWebhook(context.Background(), "", "plan.completed", srv.URL, "secret", body)
	if err != nil || id == "" {
		t.Fatalf("enqueue failed: %v", err)
	}

	w.processOnce()

	if !Verify("secret", body, gotSig, time.Now(), DefaultTolerance) || gotType != "plan.completed" {
		t.Fatalf("bad signature/type headers: sig=%q type=%q", gotSig, gotType)
	}
	if len(rs.marks) == 0 || !rs.marks[0].Success {
		t.Fatalf("expected mark success, got: %+v", rs.marks)
	}
}

func TestWorkerProcessOnce_RetryThenFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 2}
	id, _ := rs.Memory.EnqueueWebhook(context.Background(), "", "plan.completed", srv.URL, "", []byte(`{}`))
	w.processOnce()
	if len(rs.marks) != 1 || rs.marks[0].Success || rs.marks[0].Code != 500 {
		t.Fatalf("expected a retry mark, got %+v", rs.marks)
	}
	// force the retry due now
	now := time.Now().Add(-time.Second)
	_ = rs.Memory.MarkWebhookDelivery(context.Background(), id, false, &now, "", 500, 0)
	w.processOnce()
	if len(rs.fails) == 0 {
		t.Fatalf("expected fail recorded")
	}
}

func TestPublisherEmit(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	_, _ = m.CreateSubscription(ctx, model.SubscriptionRequest{URL: "http://a", Events: []string{"plan.completed"}})
	_, _ = m.CreateSubscription(ctx, model.SubscriptionRequest{URL: "http://b", Events: []string{"*"}})
	_, _ = m.CreateSubscription(ctx, model.SubscriptionRequest{URL: "http://c", Events: []string{"plan.failed"}})
	if n := NewPublisher(m).Emit(ctx, "plan.completed", map[string]any{"planId": "p1"}); n != 2 {
		t.Fatalf("want 2 deliveries, got %d", n)
	}
	due, _ := m.FetchDueWebhookDeliveries(ctx, 0)
	if len(due) != 2 {
		t.Fatalf("want 2 due, got %d", len(due))
	}
}

func TestNextBackoff(t *testing.T) {
	if nextBackoff(0) != time.Second || nextBackoff(3) != 8*time.Second || nextBackoff(20) != 1024*time.Second {
		t.Fatalf("unexpected backoff")
	}
}

func TestNewWorkerMaxAttempts(t *testing.T) {
	env := map[string]string{"WEBHOOK_MAX_ATTEMPTS": "4"}
	if w := NewWorker(store.NewMemory(), func(k string) string { return env[k] }); w.MaxAttempts != 4 {
		t.Fatalf("want 4, got %d", w.MaxAttempts)
	}
}

func TestVerifyRejectsTamperingAndSkew(t *testing.T) {
	body := []byte(`{"type":"plan.completed"}`)
	at := time.Unix(1_700_000_000, 0)
	h := Sign("k", body, at)
	if !Verify("k", body, h, at.Add(time.Minute), DefaultTolerance) {
		t.Fatalf("valid signature rejected: %s", h)
	}
	if Verify("other", body, h, at, DefaultTolerance) {
		t.Fatal("wrong secret accepted")
	}
	if Verify("k", []byte(`{}`), h, at, DefaultTolerance) {
		t.Fatal("modified body accepted")
	}
	if Verify("k", body, h, at.Add(time.Hour), DefaultTolerance) {
		t.Fatal("stale signature accepted")
	}
	if !Verify("k", body, h, at.Add(time.Hour), 0) {
		t.Fatal("tolerance 0 should skip the age check")
	}
	for _, bad := range []string{"", "t=abc,v1=00", "v1=zz", "t=1700000000"} {
		if Verify("k", body, bad, at, DefaultTolerance) {
			t.Fatalf("malformed header %q accepted", bad)
		}
	}
}
