package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"lineplan/internal/model"
	"lineplan/internal/orders"
	"lineplan/internal/planner"
	"lineplan/internal/schedule"
)

func TestMemoryOrders(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if _, err := m.ListOrderRecords(ctx, "2026-10-14"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	recs := []orders.Record{{OrderID: "o1", Job: "a", Quantity: 1}}
	if _, err := m.ImportOrders(ctx, "2026-10-14", recs); err != nil {
		t.Fatalf("import: %v", err)
	}
	recs[0].Job = "mutated"
	got, err := m.ListOrderRecords(ctx, "2026-10-14")
	if err != nil || len(got) != 1 || got[0].Job != "a" {
		t.Fatalf("unexpected records %+v %v", got, err)
	}
}

func TestMemoryPlans(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)
	for i, date := range []string{"d1", "d2", "d1"} {
		p := &planner.Plan{
			ID: string(rune('a' + i)), PlanDate: date, Strategy: "workload", Lines: 1,
			Schedule:  &schedule.Schedule{Lines: [][]string{{"x"}}},
			Final:     schedule.Metrics{Objective: float64(i)},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := m.SavePlan(ctx, p); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	got, err := m.GetPlan(ctx, "b")
	if err != nil || got.PlanDate != "d2" {
		t.Fatalf("get: %+v %v", got, err)
	}
	if _, err := m.GetPlan(ctx, "zzz"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	list, _ := m.ListPlans(ctx, "d1", 0)
	if len(list) != 2 || list[0].ID != "c" || list[1].ID != "a" {
		t.Fatalf("unexpected list %+v", list)
	}
	all, _ := m.ListPlans(ctx, "", 2)
	if len(all) != 2 {
		t.Fatalf("limit not applied: %d", len(all))
	}
}

func TestMemoryWebhookLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	sub, _ := m.CreateSubscription(ctx, model.SubscriptionRequest{URL: "http://x", Events: []string{"plan.completed"}})
	_, _ = m.CreateSubscription(ctx, model.SubscriptionRequest{URL: "http://y", Events: []string{"plan.failed"}})
	subs, _ := m.GetSubscriptionsForEvent(ctx, "plan.completed")
	if len(subs) != 1 || subs[0].ID != sub.ID {
		t.Fatalf("unexpected subs %+v", subs)
	}

	id, _ := m.EnqueueWebhook(ctx, sub.ID, "plan.completed", sub.URL, "", []byte(`{}`))
	due, _ := m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 1 {
		t.Fatalf("want 1 due, got %d", len(due))
	}
	later := time.Now().Add(time.Hour)
	if err := m.MarkWebhookDelivery(ctx, id, false, &later, "boom", 500, 3); err != nil {
		t.Fatalf("mark: %v", err)
	}
	due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 0 {
		t.Fatalf("retry should not be due yet")
	}
	_ = m.FailWebhookDelivery(ctx, id, "boom", 500, 3)
	status, attempts, ok := m.DeliveryStatus(id)
	if !ok || status != "failed" || attempts != 2 || m.DeadLetters() != 1 {
		t.Fatalf("unexpected state %s %d %v %d", status, attempts, ok, m.DeadLetters())
	}
	if err := m.MarkWebhookDelivery(ctx, "missing", true, nil, "", 200, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
