// Package schedule holds line rosters and scores them.
package schedule

import (
	"fmt"
)

// Schedule maps a line index to its ordered job sequence.
type Schedule struct {
	Lines [][]string `json:"lines"`
}

// New returns an empty schedule with n lines.
func New(n int) *Schedule {
	if n < 0 {
		n = 0
	}
	return &Schedule{Lines: make([][]string, n)}
}

// Clone returns a deep copy.
func (s *Schedule) Clone() *Schedule {
	out := &Schedule{Lines: make([][]string, len(s.Lines))}
	for i, l := range s.Lines {
		out.Lines[i] = append([]string(nil), l...)
	}
	return out
}

func (s *Schedule) NumLines() int { return len(s.Lines) }

// Len is the number of scheduled jobs.
func (s *Schedule) Len() int {
	n := 0
	for _, l := range s.Lines {
		n += len(l)
	}
	return n
}

// Append puts job at the end of line.
func (s *Schedule) Append(line int, job string) {
	s.Lines[line] = append(s.Lines[line], job)
}

// Move removes the job at (from, pos) and inserts it into line to at index at,
// clamped to the destination length.
func (s *Schedule) Move(from, pos, to, at int) {
	job := s.Lines[from][pos]
	s.Lines[from] = append(s.Lines[from][:pos:pos], s.Lines[from][pos+1:]...)
	dst := s.Lines[to]
	if at < 0 {
		at = 0
	}
	if at > len(dst) {
		at = len(dst)
	}
	next := make([]string, 0, len(dst)+1)
	next = append(next, dst[:at]...)
	next = append(next, job)
	next = append(next, dst[at:]...)
	s.Lines[to] = next
}

// ActiveLines returns the indices of non-empty lines.
func (s *Schedule) ActiveLines() []int {
	var out []int
	for i, l := range s.Lines {
		if len(l) > 0 {
			out = append(out, i)
		}
	}
	return out
}

// Validate checks that every job appears exactly once and nothing else is scheduled.
func (s *Schedule) Validate(jobs []string) error {
	want := make(map[string]bool, len(jobs))
	for _, j := range jobs {
		want[j] = true
	}
	seen := map[string]bool{}
	for li, l := range s.Lines {
		for _, j := range l {
			if !want[j] {
				return fmt.Errorf("line %d: unexpected job %q", li, j)
			}
			if seen[j] {
				return fmt.Errorf("line %d: job %q scheduled twice", li, j)
			}
			seen[j] = true
		}
	}
	for _, j := range jobs {
		if !seen[j] {
			return fmt.Errorf("job %q not scheduled", j)
		}
	}
	return nil
}
