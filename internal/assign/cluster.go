package assign

import (
	"math"

	"lineplan/internal/affinity"
	"lineplan/internal/schedule"
)

type clusterAssigner struct {
	clusters int
}

func (clusterAssigner) Strategy() Strategy { return ClusterRoundRobin }

// Assign groups jobs by average-linkage clustering, gives each cluster one or
// more lines and deals the cluster's jobs round-robin over them.
func (c clusterAssigner) Assign(in Input, lines int) (*schedule.Schedule, error) {
	if err := checkLines(lines); err != nil {
		return nil, err
	}
	s := schedule.New(lines)
	if len(in.Jobs) == 0 {
		return s, nil
	}
	k := c.clusters
	if k <= 0 {
		k = lines
	}
	k = min(k, len(in.Jobs))
	var dist [][]float64
	if in.Affinity != nil {
		dist = affinity.DenseDistance(in.Affinity, in.Jobs)
	} else {
		dist = make([][]float64, len(in.Jobs))
		for i := range dist {
			dist[i] = make([]float64, len(in.Jobs))
		}
	}
	labels := AverageLinkage(dist, k)
	members := make([][]string, k)
	for i, j := range in.Jobs {
		members[labels[i]] = append(members[labels[i]], j)
	}
	for ci, lineSet := range c.lineSets(in, members, lines) {
		for i, j := range members[ci] {
			s.Append(lineSet[i%len(lineSet)], j)
		}
	}
	return s, nil
}

// lineSets maps clusters to lines. With at least as many clusters as lines
// cluster c runs on line c mod lines; otherwise every cluster gets one line and
// spare lines go to the cluster with the highest load per line.
func (c clusterAssigner) lineSets(in Input, members [][]string, lines int) [][]int {
	k := len(members)
	out := make([][]int, k)
	if k >= lines {
		for ci := range out {
			out[ci] = []int{ci % lines}
		}
		return out
	}
	load := make([]float64, k)
	for ci, m := range members {
		for _, j := range m {
			load[ci] += in.Times.ProcessingTime(j)
		}
	}
	count := make([]int, k)
	for ci := range count {
		count[ci] = 1
	}
	for spare := lines - k; spare > 0; spare-- {
		ci := argmax(k, func(i int) float64 { return load[i] / float64(count[i]) })
		count[ci]++
	}
	next := 0
	for ci := range out {
		for n := 0; n < count[ci]; n++ {
			out[ci] = append(out[ci], next)
			next++
		}
	}
	return out
}

// AverageLinkage clusters n points with a precomputed distance matrix into k
// groups by agglomerative merging under average linkage. Labels are numbered
// in order of first appearance. The closest pair merges first; ties go to the
// lowest indices.
func AverageLinkage(dist [][]float64, k int) []int {
	n := len(dist)
	labels := make([]int, n)
	if n == 0 {
		return labels
	}
	if k < 1 {
		k = 1
	}
	d := make([][]float64, n)
	for i := range d {
		d[i] = append([]float64(nil), dist[i]...)
	}
	size := make([]int, n)
	parent := make([]int, n)
	active := make([]bool, n)
	for i := range size {
		size[i], parent[i], active[i] = 1, i, true
	}
	for clusters := n; clusters > k; clusters-- {
		ba, bb, best := -1, -1, math.Inf(1)
		for a := 0; a < n; a++ {
			if !active[a] {
				continue
			}
			for b := a + 1; b < n; b++ {
				if active[b] && d[a][b] < best {
					ba, bb, best = a, b, d[a][b]
				}
			}
		}
		if ba == -1 {
			break
		}
		for c := 0; c < n; c++ {
			if !active[c] || c == ba || c == bb {
				continue
			}
			v := (float64(size[ba])*d[ba][c] + float64(size[bb])*d[bb][c]) / float64(size[ba]+size[bb])
			d[ba][c], d[c][ba] = v, v
		}
		size[ba] += size[bb]
		active[bb] = false
		parent[bb] = ba
	}
	root := func(i int) int {
		for parent[i] != i {
			i = parent[i]
		}
		return i
	}
	seen := map[int]int{}
	for i := range labels {
		r := root(i)
		l, ok := seen[r]
		if !ok {
			l = len(seen)
			seen[r] = l
		}
		labels[i] = l
	}
	return labels
}
