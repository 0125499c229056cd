// Package orders holds the order data records the planner consumes and the
// grouping helpers every other package builds on.
package orders

import (
	"context"
	"sort"
)

// Record is one order line: a job ordered in some quantity under an order id.
type Record struct {
	OrderID  string `json:"orderId"`
	Job      string `json:"job"`
	Quantity int    `json:"quantity"`
}

// Order is the set of distinct jobs that must all be produced for the order to complete.
type Order struct {
	ID   string
	Jobs []string
}

// Source yields order records for a planning run.
type Source interface {
	Records(ctx context.Context) ([]Record, error)
}

// StaticSource serves a fixed record slice.
type StaticSource []Record

func (s StaticSource) Records(context.Context) ([]Record, error) { return []Record(s), nil }

// GroupByOrder returns orders in first-seen order; jobs inside an order are
// deduplicated and keep their first-seen position.
func GroupByOrder(recs []Record) []Order {
	idx := map[string]int{}
	seen := map[string]map[string]bool{}
	var out []Order
	for _, r := range recs {
		if r.Job == "" {
			continue
		}
		i, ok := idx[r.OrderID]
		if !ok {
			i = len(out)
			idx[r.OrderID] = i
			out = append(out, Order{ID: r.OrderID})
			seen[r.OrderID] = map[string]bool{}
		}
		if seen[r.OrderID][r.Job] {
			continue
		}
		seen[r.OrderID][r.Job] = true
		out[i].Jobs = append(out[i].Jobs, r.Job)
	}
	return out
}

// QuantityByJob sums ordered quantities per job. Negative quantities count as zero.
func QuantityByJob(recs []Record) map[string]int {
	out := map[string]int{}
	for _, r := range recs {
		if r.Job == "" {
			continue
		}
		q := r.Quantity
		if q < 0 {
			q = 0
		}
		out[r.Job] += q
	}
	return out
}

// OrderCountByJob counts the distinct orders each job appears in.
func OrderCountByJob(orders []Order) map[string]int {
	out := map[string]int{}
	for _, o := range orders {
		for _, j := range o.Jobs {
			out[j]++
		}
	}
	return out
}

// JobNames returns the sorted distinct job names present in recs.
func JobNames(recs []Record) []string {
	set := map[string]bool{}
	for _, r := range recs {
		if r.Job != "" {
			set[r.Job] = true
		}
	}
	out := make([]string, 0, len(set))
	for j := range set {
		out = append(out, j)
	}
	sort.Strings(out)
	return out
}
