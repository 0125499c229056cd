package schedule

import (
	"math"
	"sort"
)

// DefaultBucketMinutes is the width of completion tracking intervals.
const DefaultBucketMinutes = 30

// Bucket counts orders completed in (Start, End].
type Bucket struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Completed  int     `json:"completed"`
	Cumulative int     `json:"cumulative"`
	Percent    float64 `json:"percent"`
}

// CompletionBuckets groups order completions into width-minute intervals up to
// the last completion. An order finishing exactly on a boundary counts in the
// interval that ends there.
func CompletionBuckets(m Metrics, width float64) []Bucket {
	if width <= 0 {
		width = DefaultBucketMinutes
	}
	total := len(m.OrderCompletion)
	if total == 0 {
		return nil
	}
	last := m.MaxOrderCompletion
	n := int(math.Ceil(last / width))
	if n == 0 {
		n = 1
	}
	out := make([]Bucket, n)
	for i := range out {
		out[i].Start = float64(i) * width
		out[i].End = float64(i+1) * width
	}
	for _, c := range m.OrderCompletion {
		i := int(math.Ceil(c/width)) - 1
		if i < 0 {
			i = 0
		}
		if i >= n {
			i = n - 1
		}
		out[i].Completed++
	}
	cum := 0
	for i := range out {
		cum += out[i].Completed
		out[i].Cumulative = cum
		out[i].Percent = float64(cum) / float64(total) * 100
	}
	return out
}

// LineSummary describes line load spread over active lines.
type LineSummary struct {
	ActiveLines int     `json:"activeLines"`
	Max         float64 `json:"max"`
	Min         float64 `json:"min"`
	Avg         float64 `json:"avg"`
	Spread      float64 `json:"spread"`
	Efficiency  float64 `json:"efficiency"`
}

// SummarizeLines computes the load summary; Efficiency is avg/max.
func SummarizeLines(m Metrics) LineSummary {
	var s LineSummary
	sum := 0.0
	for _, c := range m.LineCompletion {
		if c <= 0 {
			continue
		}
		if s.ActiveLines == 0 || c < s.Min {
			s.Min = c
		}
		s.Max = math.Max(s.Max, c)
		sum += c
		s.ActiveLines++
	}
	if s.ActiveLines == 0 {
		return s
	}
	s.Avg = sum / float64(s.ActiveLines)
	s.Spread = s.Max - s.Min
	s.Efficiency = s.Avg / s.Max
	return s
}

// Milestone is the time by which a fraction of orders had completed.
type Milestone struct {
	Fraction float64 `json:"fraction"`
	Minute   float64 `json:"minute"`
}

// DefaultMilestones are the tracked completion fractions.
var DefaultMilestones = []float64{0.25, 0.5, 0.75, 0.9}

// Milestones returns, per fraction, the completion time of the ceil(f×n)-th order.
func Milestones(m Metrics, fractions []float64) []Milestone {
	times := make([]float64, 0, len(m.OrderCompletion))
	for _, c := range m.OrderCompletion {
		times = append(times, c)
	}
	if len(times) == 0 {
		return nil
	}
	sort.Float64s(times)
	out := make([]Milestone, 0, len(fractions))
	for _, f := range fractions {
		k := int(math.Ceil(f*float64(len(times)))) - 1
		k = max(0, min(k, len(times)-1))
		out = append(out, Milestone{Fraction: f, Minute: times[k]})
	}
	return out
}

// ThroughputPerHour is orders completed per hour of makespan.
func ThroughputPerHour(m Metrics) float64 {
	if m.MaxOrderCompletion <= 0 {
		return 0
	}
	return float64(len(m.OrderCompletion)) / (m.MaxOrderCompletion / 60)
}

// ImprovementRate is (initial − final) / initial × 100, 0 when initial is not finite or zero.
func ImprovementRate(initial, final float64) float64 {
	if initial == 0 || math.IsInf(initial, 0) || math.IsNaN(initial) || math.IsInf(final, 0) {
		return 0
	}
	return (initial - final) / initial * 100
}
