package assign

import (
	"lineplan/internal/orders"
	"lineplan/internal/schedule"
)

type frequencyAssigner struct{}

func (frequencyAssigner) Strategy() Strategy { return FrequencyAntiCollision }

// Assign walks jobs by descending order frequency and keeps jobs that share an
// order on different lines where possible. Relatedness here is shared order
// membership, not the affinity model.
func (frequencyAssigner) Assign(in Input, lines int) (*schedule.Schedule, error) {
	if err := checkLines(lines); err != nil {
		return nil, err
	}
	s := schedule.New(lines)
	freq := orders.OrderCountByJob(in.Orders)
	byJob := map[string][]int{}
	for oi, o := range in.Orders {
		for _, j := range o.Jobs {
			byJob[j] = append(byJob[j], oi)
		}
	}
	ld := newLoads(in, lines)
	lineOf := map[string]int{}
	for _, job := range stableRank(in.Jobs, func(j string) float64 { return float64(freq[j]) }) {
		used := map[int]bool{}
		for _, oi := range byJob[job] {
			for _, sib := range in.Orders[oi].Jobs {
				if l, ok := lineOf[sib]; ok && sib != job {
					used[l] = true
				}
			}
		}
		line := ld.leastLoaded(used)
		if line == -1 {
			line = ld.leastLoaded(nil)
		}
		ld.add(s, line, job)
		lineOf[job] = line
	}
	return s, nil
}
