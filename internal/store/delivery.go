package store

// Delivery states. Pending and retry rows are picked up by the webhook worker
// once their next attempt time has passed.
const (
	DeliveryPending   = "pending"
	DeliveryRetry     = "retry"
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
)

// WebhookDelivery is one queued plan event for one subscriber URL.
type WebhookDelivery struct {
	ID             string
	SubscriptionID string
	EventType      string
	URL            string
	Secret         string
	Payload        []byte
	Status         string
	Attempts       int
}

// Due reports whether the delivery is still waiting for an attempt.
func (d WebhookDelivery) Due() bool {
	return d.Status == DeliveryPending || d.Status == DeliveryRetry
}
