package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"lineplan/internal/store"
)

type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Emit enqueues an event for every subscription to eventType and returns the delivery count.
func (p *Publisher) Emit(ctx context.Context, eventType string, data any) int {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, eventType)
	if err != nil {
		log.Printf("warn: webhooks: subscriptions for %s: %v", eventType, err)
		return 0
	}
	if len(subs) == 0 {
		return 0
	}
	payload := map[string]any{
		"id":   fmt.Sprintf("evt_%d", time.Now().UnixNano()),
		"type": eventType,
		"ts":   time.Now().UTC().Format(time.RFC3339),
		"data": data,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("warn: webhooks: encode %s: %v", eventType, err)
		return 0
	}
	n := 0
	for _, s := range subs {
		if _, err := p.Store.EnqueueWebhook(ctx, s.ID, eventType, s.URL, s.Secret, body); err != nil {
			log.Printf("warn: webhooks: enqueue %s for %s: %v", eventType, s.ID, err)
			continue
		}
		n++
	}
	return n
}
