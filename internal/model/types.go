package model

import (
	"time"

	"lineplan/internal/orders"
)

// API request and response types.

type ImportRequest struct {
	PlanDate string          `json:"planDate"`
	Records  []orders.Record `json:"records,omitempty"`
	// CSV is an inline orders export (order_id,job,quantity).
	CSV string `json:"csv,omitempty"`
}

type ImportResponse struct {
	ImportID string `json:"importId"`
	PlanDate string `json:"planDate"`
	Records  int    `json:"records"`
	Orders   int    `json:"orders"`
	Jobs     int    `json:"jobs"`
}

type PlanRequest struct {
	PlanDate   string          `json:"planDate,omitempty"`
	Records    []orders.Record `json:"records,omitempty"`
	Strategy   string          `json:"strategy,omitempty"`
	Mode       string          `json:"mode,omitempty"`
	Lines      int             `json:"lines,omitempty"`
	NoFallback bool            `json:"noFallback,omitempty"`
	// Async returns 202 immediately and streams progress on /events and /ws.
	Async bool `json:"async,omitempty"`
}

type PlanAccepted struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// PlanSummary is the list view of a stored plan.
type PlanSummary struct {
	ID        string    `json:"id"`
	PlanDate  string    `json:"planDate,omitempty"`
	Strategy  string    `json:"strategy"`
	Mode      string    `json:"mode"`
	Lines     int       `json:"lines"`
	Objective float64   `json:"objective"`
	Makespan  float64   `json:"makespan"`
	Fallback  bool      `json:"fallback"`
	CreatedAt time.Time `json:"createdAt"`
}

// TimelineRow is one scheduled job for export.
type TimelineRow struct {
	Line       int     `json:"line"`
	Seq        int     `json:"seq"`
	Job        string  `json:"job"`
	Processing float64 `json:"processing"`
	Changeover float64 `json:"changeover"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
}

type SubscriptionRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret"`
}

type Subscription struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret,omitempty"`
}
