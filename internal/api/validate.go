package api

import (
	"fmt"
	"strings"

	"lineplan/internal/assign"
	"lineplan/internal/model"
	"lineplan/internal/planner"
)

func validatePlanRequest(req *model.PlanRequest) error {
	if req.Strategy != "" {
		if _, err := assign.ParseStrategy(req.Strategy); err != nil {
			return err
		}
	}
	switch planner.Mode(req.Mode) {
	case "", planner.ModeHeuristic, planner.ModeRouting:
	default:
		return fmt.Errorf("%w: %q", planner.ErrUnknownMode, req.Mode)
	}
	if req.Lines < 0 {
		return fmt.Errorf("lines must be >= 0")
	}
	if len(req.Records) == 0 && strings.TrimSpace(req.PlanDate) == "" {
		return fmt.Errorf("records or planDate required")
	}
	for i, rec := range req.Records {
		if strings.TrimSpace(rec.Job) == "" {
			return fmt.Errorf("records[%d]: job required", i)
		}
	}
	return nil
}

func validateSubscription(req *model.SubscriptionRequest) error {
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		return fmt.Errorf("url must be http(s)")
	}
	if len(req.Events) == 0 {
		return fmt.Errorf("events required")
	}
	for _, e := range req.Events {
		switch e {
		case planner.EventCompleted, planner.EventFailed, "*":
		default:
			return fmt.Errorf("unknown event %q", e)
		}
	}
	return nil
}
