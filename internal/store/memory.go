package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"lineplan/internal/model"
	"lineplan/internal/orders"
	"lineplan/internal/planner"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu         sync.Mutex
	records    map[string][]orders.Record // planDate -> records
	plans      map[string][]byte          // id -> encoded plan
	planIDs    []string                   // insertion order
	summaries  map[string]model.PlanSummary
	subs       []model.Subscription
	deliveries map[string]*memDelivery
	order      []string // delivery ids in enqueue order
	dlq        []map[string]any
}

func NewMemory() *Memory {
	return &Memory{
		records:    map[string][]orders.Record{},
		plans:      map[string][]byte{},
		summaries:  map[string]model.PlanSummary{},
		deliveries: map[string]*memDelivery{},
	}
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

func (m *Memory) Ping(context.Context) error { return nil }

// ImportOrders replaces the records of a plan date.
func (m *Memory) ImportOrders(ctx context.Context, planDate string, recs []orders.Record) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[planDate] = append([]orders.Record(nil), recs...)
	return fmt.Sprintf("imp_%d", time.Now().UnixNano()), nil
}

func (m *Memory) ListOrderRecords(ctx context.Context, planDate string) ([]orders.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs, ok := m.records[planDate]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]orders.Record(nil), recs...), nil
}

// SavePlan stores an encoded copy so later mutation of p does not leak in.
func (m *Memory) SavePlan(ctx context.Context, p *planner.Plan) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plans[p.ID]; !ok {
		m.planIDs = append(m.planIDs, p.ID)
	}
	m.plans[p.ID] = b
	m.summaries[p.ID] = summarize(p)
	return nil
}

func (m *Memory) GetPlan(ctx context.Context, id string) (*planner.Plan, error) {
	m.mu.Lock()
	b, ok := m.plans[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	var p planner.Plan
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPlans returns the newest plans first, optionally filtered by plan date.
func (m *Memory) ListPlans(ctx context.Context, planDate string, limit int) ([]model.PlanSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	out := []model.PlanSummary{}
	for i := len(m.planIDs) - 1; i >= 0 && len(out) < limit; i-- {
		s := m.summaries[m.planIDs[i]]
		if planDate == "" || s.PlanDate == planDate {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs = append(m.subs, s)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs {
		for _, e := range s.Events {
			if e == eventType || e == "*" {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.deliveries[id] = &memDelivery{
		WebhookDelivery: WebhookDelivery{ID: id, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: DeliveryPending},
		NextAttemptAt:   time.Now(),
	}
	m.order = append(m.order, id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, id := range m.order {
		d := m.deliveries[id]
		if d.Due() && !d.NextAttemptAt.After(now) {
			out = append(out, d.WebhookDelivery)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = DeliveryDelivered
		now := time.Now()
		d.DeliveredAt = &now
		return nil
	}
	d.Status = DeliveryRetry
	d.LastError = lastError
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	} else {
		d.NextAttemptAt = time.Now().Add(time.Minute)
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Status = DeliveryFailed
	d.Attempts++
	m.dlq = append(m.dlq, map[string]any{"id": id, "lastError": lastError, "responseCode": responseCode, "latencyMs": latencyMs})
	return nil
}

// DeliveryStatus reports a delivery's status and attempt count.
func (m *Memory) DeliveryStatus(id string) (string, int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return "", 0, false
	}
	return d.Status, d.Attempts, true
}

// DeadLetters counts deliveries that exhausted their attempts.
func (m *Memory) DeadLetters() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.dlq)
}
