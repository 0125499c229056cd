package opt

import (
	"sort"
	"sync"
	"time"
)

// RunMetrics summarizes one planning run for later comparison.
type RunMetrics struct {
	PlanID      string        `json:"planId"`
	Strategy    string        `json:"strategy"`
	Mode        string        `json:"mode"`
	Initial     float64       `json:"initialObjective"`
	Final       float64       `json:"finalObjective"`
	Improvement float64       `json:"improvementRate"`
	Makespan    float64       `json:"makespan"`
	Rounds      int           `json:"rounds"`
	Transfers   int           `json:"transfers"`
	Duration    time.Duration `json:"durationNs"`
	RecordedAt  time.Time     `json:"recordedAt"`
}

type key struct {
	PlanDate string
	Strategy string
}

var (
	mu    sync.Mutex
	store = map[key]RunMetrics{}
)

// RecordMetrics keeps the latest run per plan date and strategy.
func RecordMetrics(planDate string, m RunMetrics) {
	if m.RecordedAt.IsZero() {
		m.RecordedAt = time.Now().UTC()
	}
	mu.Lock()
	store[key{PlanDate: planDate, Strategy: m.Strategy}] = m
	mu.Unlock()
}

// GetMetrics returns the recorded runs of a plan date ordered by final objective.
func GetMetrics(planDate string) []RunMetrics {
	mu.Lock()
	defer mu.Unlock()
	out := []RunMetrics{}
	for k, v := range store {
		if k.PlanDate == planDate {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Final != out[j].Final {
			return out[i].Final < out[j].Final
		}
		return out[i].Strategy < out[j].Strategy
	})
	return out
}
