package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Table is a job → base minutes lookup.
type Table map[string]float64

func (t Table) BaseMinutes(job string) (float64, bool) {
	v, ok := t[job]
	return v, ok
}

type tableFile struct {
	CookTimes map[string]float64 `yaml:"cook_times"`
}

// ParseTable reads a yaml document with a top level cook_times mapping.
func ParseTable(data []byte) (Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse cook times: %w", err)
	}
	out := Table{}
	for k, v := range f.CookTimes {
		if v < 0 {
			return nil, fmt.Errorf("cook time for %q is negative", k)
		}
		out[k] = v
	}
	return out, nil
}

// LoadTable reads a cook-time table from path.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cook times: %w", err)
	}
	return ParseTable(data)
}
