// Package csvfile reads order exports, cooking-time tables and changeover
// matrices from CSV.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"lineplan/internal/catalog"
	"lineplan/internal/changeover"
	"lineplan/internal/orders"
)

// Adapter reads order records from a CSV file on each call.
type Adapter struct {
	Path string
}

func (a Adapter) Name() string { return "csv-file" }

// Records implements orders.Source.
func (a Adapter) Records(ctx context.Context) ([]orders.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(a.Path)
	if err != nil {
		return nil, fmt.Errorf("csv orders: %w", err)
	}
	defer f.Close()
	return ParseOrders(f)
}

func header(rec []string) map[string]int {
	idx := make(map[string]int, len(rec))
	for i, h := range rec {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		idx[h] = i
	}
	return idx
}

func column(idx map[string]int, names ...string) (int, bool) {
	for _, n := range names {
		if i, ok := idx[n]; ok {
			return i, true
		}
	}
	return 0, false
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return cr
}

// ParseOrders reads rows with order_id, job and quantity columns. A missing
// quantity column counts each row as one unit; blank quantities are zero.
func ParseOrders(r io.Reader) ([]orders.Record, error) {
	cr := newReader(r)
	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csv orders: header: %w", err)
	}
	idx := header(head)
	oc, ok1 := column(idx, "order_id", "order", "orderid")
	jc, ok2 := column(idx, "job", "item", "product")
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("csv orders: need order_id and job columns, got %v", head)
	}
	qc, hasQty := column(idx, "quantity", "qty")
	var out []orders.Record
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("csv orders: line %d: %w", line, err)
		}
		if oc >= len(rec) || jc >= len(rec) {
			return nil, fmt.Errorf("csv orders: line %d: short row", line)
		}
		job := strings.TrimSpace(rec[jc])
		if job == "" {
			continue
		}
		q := 1
		if hasQty {
			q = 0
			if qc < len(rec) {
				if s := strings.TrimSpace(rec[qc]); s != "" {
					f, err := strconv.ParseFloat(s, 64)
					if err != nil {
						return nil, fmt.Errorf("csv orders: line %d: quantity %q: %w", line, s, err)
					}
					q = int(f)
				}
			}
		}
		out = append(out, orders.Record{OrderID: strings.TrimSpace(rec[oc]), Job: job, Quantity: q})
	}
}

// ParseCookTimes reads job and minutes columns into a lookup table.
func ParseCookTimes(r io.Reader) (catalog.Table, error) {
	cr := newReader(r)
	head, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("csv cook times: header: %w", err)
	}
	idx := header(head)
	jc, ok1 := column(idx, "job", "item", "product")
	mc, ok2 := column(idx, "minutes", "cook_time", "base_minutes")
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("csv cook times: need job and minutes columns, got %v", head)
	}
	t := catalog.Table{}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return t, nil
		}
		if err != nil {
			return nil, fmt.Errorf("csv cook times: line %d: %w", line, err)
		}
		if jc >= len(rec) || mc >= len(rec) {
			return nil, fmt.Errorf("csv cook times: line %d: short row", line)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[mc]), 64)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("csv cook times: line %d: bad minutes %q", line, rec[mc])
		}
		t[strings.TrimSpace(rec[jc])] = v
	}
}

// ParseChangeover reads a square matrix whose header row names the target jobs
// and whose first column names the source jobs. Blank cells are left unknown
// and fall back to the model default.
func ParseChangeover(r io.Reader, def float64) (*changeover.Table, error) {
	rows, err := newReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv changeover: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("csv changeover: empty matrix")
	}
	names := make([]string, 0, len(rows[0])-1)
	col := map[string]int{}
	for _, h := range rows[0][1:] {
		h = strings.TrimSpace(h)
		col[h] = len(names)
		names = append(names, h)
	}
	n := len(names)
	t := &changeover.Table{Names: names, Rows: make([][]float64, n)}
	for i := range t.Rows {
		t.Rows[i] = make([]float64, n)
		for j := range t.Rows[i] {
			if i != j {
				t.Rows[i][j] = def
			}
		}
	}
	seen := map[int]bool{}
	for line, rec := range rows[1:] {
		from := strings.TrimSpace(rec[0])
		i, ok := col[from]
		if !ok {
			return nil, fmt.Errorf("csv changeover: line %d: job %q not in header", line+2, from)
		}
		seen[i] = true
		for k, cell := range rec[1:] {
			if k >= n {
				break
			}
			s := strings.TrimSpace(cell)
			if s == "" {
				continue
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil || v < 0 {
				return nil, fmt.Errorf("csv changeover: line %d: bad value %q", line+2, s)
			}
			t.Rows[i][k] = v
		}
	}
	if len(seen) != n {
		return nil, fmt.Errorf("csv changeover: %d of %d rows present", len(seen), n)
	}
	return t, nil
}

// LoadCookTimes and LoadChangeover read the tables from files.
func LoadCookTimes(path string) (catalog.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseCookTimes(f)
}

func LoadChangeover(path string, def float64) (*changeover.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseChangeover(f, def)
}
