package assign

import (
	"sort"

	"lineplan/internal/orders"
	"lineplan/internal/schedule"
)

type networkAssigner struct{}

func (networkAssigner) Strategy() Strategy { return NetworkZigzag }

type connections struct {
	pair  map[[2]string]int
	max   map[string]int
	total map[string]int
	ratio map[string]float64
}

func buildConnections(in Input) connections {
	c := connections{pair: map[[2]string]int{}, max: map[string]int{}, total: map[string]int{}, ratio: map[string]float64{}}
	for _, o := range in.Orders {
		for i := 0; i < len(o.Jobs); i++ {
			for j := i + 1; j < len(o.Jobs); j++ {
				c.pair[pairKey(o.Jobs[i], o.Jobs[j])]++
			}
		}
	}
	for k, n := range c.pair {
		for _, j := range k {
			c.total[j] += n
			c.max[j] = max(c.max[j], n)
		}
	}
	counts := orders.OrderCountByJob(in.Orders)
	for _, j := range in.Jobs {
		if counts[j] > 0 {
			c.ratio[j] = float64(c.total[j]) / float64(counts[j])
		}
	}
	return c
}

func pairKey(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}

// Assign splits jobs by their strongest pair connection: weak (≤1) jobs go to the
// first quarter of lines, pair-strength 2 jobs to the next quarter, and strongly
// connected jobs to the remaining half following a neighbor chain. Inside a
// band jobs are placed zigzag (0,1,..,n-1,n-2,..,0,1,..).
func (networkAssigner) Assign(in Input, lines int) (*schedule.Schedule, error) {
	if err := checkLines(lines); err != nil {
		return nil, err
	}
	s := schedule.New(lines)
	conn := buildConnections(in)
	var weak, mid, strong []string
	for _, j := range in.Jobs {
		switch m := conn.max[j]; {
		case m >= 3:
			strong = append(strong, j)
		case m == 2:
			mid = append(mid, j)
		default:
			weak = append(weak, j)
		}
	}
	low, middle, high := bands(lines)
	byRatio := func(js []string) []string {
		out := append([]string(nil), js...)
		sort.SliceStable(out, func(a, b int) bool { return conn.ratio[out[a]] < conn.ratio[out[b]] })
		return out
	}
	zigzag(s, byRatio(weak), low)
	zigzag(s, byRatio(mid), middle)
	zigzag(s, conn.neighborChain(byRatio(strong)), high)
	return s, nil
}

// neighborChain visits jobs picking, after each job, its lowest-ratio remaining
// neighbor, restarting from the lowest-ratio remaining job when none is left.
func (c connections) neighborChain(sorted []string) []string {
	remaining := append([]string(nil), sorted...)
	var out []string
	cur := -1
	for len(remaining) > 0 {
		if cur == -1 {
			cur = 0
		}
		job := remaining[cur]
		out = append(out, job)
		remaining = append(remaining[:cur], remaining[cur+1:]...)
		cur = -1
		for i, r := range remaining {
			if c.pair[pairKey(job, r)] > 0 {
				cur = i
				break
			}
		}
	}
	return out
}

// bands splits lines into low, middle and high groups. Fewer than three lines share all lines.
func bands(lines int) (low, middle, high []int) {
	all := make([]int, lines)
	for i := range all {
		all[i] = i
	}
	if lines < 3 {
		return all, all, all
	}
	q := max(1, lines/4)
	return all[:q], all[q : 2*q], all[2*q:]
}

func zigzag(s *schedule.Schedule, jobs []string, lines []int) {
	idx, dir := 0, 1
	for _, j := range jobs {
		s.Append(lines[idx], j)
		if len(lines) == 1 {
			continue
		}
		if idx == len(lines)-1 {
			dir = -1
		} else if idx == 0 {
			dir = 1
		}
		idx += dir
	}
}
