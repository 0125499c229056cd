package store

import (
	"context"
	"errors"
	"time"

	"lineplan/internal/model"
	"lineplan/internal/orders"
	"lineplan/internal/planner"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Orders
	ImportOrders(ctx context.Context, planDate string, recs []orders.Record) (importID string, err error)
	ListOrderRecords(ctx context.Context, planDate string) ([]orders.Record, error)

	// Plans
	SavePlan(ctx context.Context, p *planner.Plan) error
	GetPlan(ctx context.Context, id string) (*planner.Plan, error)
	ListPlans(ctx context.Context, planDate string, limit int) ([]model.PlanSummary, error)

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error

	Ping(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")

func summarize(p *planner.Plan) model.PlanSummary {
	return model.PlanSummary{
		ID:        p.ID,
		PlanDate:  p.PlanDate,
		Strategy:  p.Strategy,
		Mode:      string(p.Mode),
		Lines:     p.Lines,
		Objective: p.Final.Objective,
		Makespan:  p.Final.Makespan,
		Fallback:  p.Fallback,
		CreatedAt: p.CreatedAt,
	}
}
