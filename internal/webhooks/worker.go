package webhooks

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"time"

	"lineplan/internal/metrics"
	"lineplan/internal/store"
)

type Worker struct {
	Store       store.Store
	HTTP        *http.Client
	Stop        chan struct{}
	MaxAttempts int
}

// NewWorker reads WEBHOOK_MAX_ATTEMPTS through getenv (default 10).
func NewWorker(s store.Store, getenv func(string) string) *Worker {
	max := 10
	if v := getenv("WEBHOOK_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			max = n
		}
	}
	return &Worker{Store: s, HTTP: &http.Client{Timeout: 5 * time.Second}, Stop: make(chan struct{}), MaxAttempts: max}
}

func (w *Worker) Start() {
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-w.Stop:
				return
			case <-ticker.C:
				w.processOnce()
			}
		}
	}()
}

func (w *Worker) processOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	items, err := w.Store.FetchDueWebhookDeliveries(ctx, 50)
	if err != nil || len(items) == 0 {
		return
	}
	for _, it := range items {
		w.deliver(ctx, it)
	}
}

func (w *Worker) deliver(ctx context.Context, it store.WebhookDelivery) {
	success := false
	next := time.Now().Add(nextBackoff(it.Attempts))
	code := 0
	lastErr := ""
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
	if err == nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Event-Type", it.EventType)
		if it.Secret != "" {
			req.Header.Set(SignatureHeader, Sign(it.Secret, it.Payload, start))
		}
		var resp *http.Response
		resp, err = w.HTTP.Do(req)
		if err == nil {
			code = resp.StatusCode
			_ = resp.Body.Close()
			success = code >= 200 && code < 300
		}
	}
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		lastErr = err.Error()
	} else if !success {
		lastErr = "status " + strconv.Itoa(code)
	}
	status := store.DeliveryDelivered
	switch {
	case success:
		_ = w.Store.MarkWebhookDelivery(ctx, it.ID, true, nil, "", code, latency)
	case it.Attempts+1 >= w.MaxAttempts:
		status = store.DeliveryFailed
		_ = w.Store.FailWebhookDelivery(ctx, it.ID, lastErr, code, latency)
	default:
		status = store.DeliveryRetry
		_ = w.Store.MarkWebhookDelivery(ctx, it.ID, false, &next, lastErr, code, latency)
	}
	metrics.WebhookDeliveries.WithLabelValues(it.EventType, status).Inc()
	metrics.WebhookLatency.WithLabelValues(it.EventType, status).Observe(float64(latency))
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
