package assign

import "lineplan/internal/schedule"

type workloadAssigner struct{}

func (workloadAssigner) Strategy() Strategy { return WorkloadBalancedGreedy }

// Assign orders jobs by affinity chain and list-schedules them onto the least loaded line.
func (workloadAssigner) Assign(in Input, lines int) (*schedule.Schedule, error) {
	if err := checkLines(lines); err != nil {
		return nil, err
	}
	s := schedule.New(lines)
	ld := newLoads(in, lines)
	for _, job := range AffinityChain(in) {
		ld.add(s, ld.leastLoaded(nil), job)
	}
	return s, nil
}

// AffinityChain starts from the most connected job and keeps appending the
// remaining job most related to the current end of the chain.
func AffinityChain(in Input) []string {
	if len(in.Jobs) == 0 {
		return nil
	}
	remaining := append([]string(nil), in.Jobs...)
	first := argmax(len(remaining), func(i int) float64 { return totalAffinity(in, remaining[i], in.Jobs) })
	chain := []string{remaining[first]}
	remaining = append(remaining[:first], remaining[first+1:]...)
	for len(remaining) > 0 {
		tail := chain[len(chain)-1]
		i := argmax(len(remaining), func(i int) float64 { return affinityOf(in, tail, remaining[i]) })
		chain = append(chain, remaining[i])
		remaining = append(remaining[:i], remaining[i+1:]...)
	}
	return chain
}
