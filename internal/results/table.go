// Package results manages the shared CSV table benchmark variants append
// their per-step timings to.
//
// The table is column-oriented: each header names a benchmark variant and
// each row holds that variant's timing for one step. Variants run as separate
// processes at different times, so the table is loaded, extended with one
// column and saved back on every run.
package results

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// Table is an ordered set of named float64 columns of equal length.
type Table struct {
	order []string
	cols  map[string][]float64
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{cols: map[string][]float64{}}
}

// Load reads a table from a CSV file. A missing file yields an empty table;
// the first run of any variant creates it.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return NewTable(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("results: open %s: %w", path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("results: parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return NewTable(), nil
	}

	t := NewTable()
	header := records[0]
	for _, name := range header {
		t.order = append(t.order, name)
		t.cols[name] = make([]float64, 0, len(records)-1)
	}
	for rowIdx, row := range records[1:] {
		if len(row) != len(header) {
			return nil, fmt.Errorf("results: %s row %d has %d fields, want %d",
				path, rowIdx+2, len(row), len(header))
		}
		for i, field := range row {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("results: %s row %d column %q: %w",
					path, rowIdx+2, header[i], err)
			}
			t.cols[header[i]] = append(t.cols[header[i]], v)
		}
	}
	return t, nil
}

// Columns returns the column names in insertion order.
func (t *Table) Columns() []string {
	return t.order
}

// Rows returns the number of rows. Zero for an empty table.
func (t *Table) Rows() int {
	if len(t.order) == 0 {
		return 0
	}
	return len(t.cols[t.order[0]])
}

// Column returns the values of a column by name.
func (t *Table) Column(name string) ([]float64, bool) {
	v, ok := t.cols[name]
	return v, ok
}

// SetColumn adds a column or overwrites an existing one of the same name,
// preserving column order. The length must match the table's existing rows;
// mixing variants run with different step counts in one table is rejected
// rather than padded.
func (t *Table) SetColumn(name string, values []float64) error {
	if len(t.order) > 0 && len(values) != t.Rows() {
		return fmt.Errorf("results: column %q has %d rows, table has %d",
			name, len(values), t.Rows())
	}
	if _, exists := t.cols[name]; !exists {
		t.order = append(t.order, name)
	}
	col := make([]float64, len(values))
	copy(col, values)
	t.cols[name] = col
	return nil
}

// Save writes the table as CSV.
func (t *Table) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("results: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(t.order); err != nil {
		return fmt.Errorf("results: write %s: %w", path, err)
	}
	row := make([]string, len(t.order))
	for r := 0; r < t.Rows(); r++ {
		for i, name := range t.order {
			row[i] = strconv.FormatFloat(t.cols[name][r], 'f', -1, 64)
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("results: write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("results: write %s: %w", path, err)
	}
	return f.Close()
}
