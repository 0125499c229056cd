package assign

import "lineplan/internal/schedule"

type seedAssigner struct{}

func (seedAssigner) Strategy() Strategy { return SeedAndGrow }

// Assign fills one slot per line per round. Each round's seed is the remaining
// job most related to the jobs placed so far (to all jobs in the first round);
// the rest of the round takes the remaining jobs most related to the seed.
func (seedAssigner) Assign(in Input, lines int) (*schedule.Schedule, error) {
	if err := checkLines(lines); err != nil {
		return nil, err
	}
	s := schedule.New(lines)
	remaining := append([]string(nil), in.Jobs...)
	var placed []string
	for len(remaining) > 0 {
		ref := placed
		if len(ref) == 0 {
			ref = in.Jobs
		}
		si := argmax(len(remaining), func(i int) float64 { return totalAffinity(in, remaining[i], ref) })
		seed := remaining[si]
		rest := append(append([]string(nil), remaining[:si]...), remaining[si+1:]...)
		ranked := stableRank(rest, func(j string) float64 { return affinityOf(in, seed, j) })
		round := append([]string{seed}, ranked[:min(lines-1, len(ranked))]...)
		drop := make(map[string]bool, len(round))
		for slot, j := range round {
			s.Append(slot, j)
			drop[j] = true
		}
		placed = append(placed, round...)
		remaining = remove(remaining, drop)
	}
	return s, nil
}
