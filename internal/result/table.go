package result

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Table is the aggregated tabular artifact of one invocation. Columns
// are the runner name, the measurement keys (first-seen order, the
// first record leading), then the union of parameter keys in first-seen
// order. Rows missing a parameter have an empty cell in its column.
type Table struct {
	MeasurementCols []string
	ParamCols       []string
	Records         []Record
}

// Build aggregates records into a table. A nil or empty input yields a
// table with no rows and no columns.
func Build(records []Record) *Table {
	t := &Table{Records: records}

	seenM := make(map[string]bool)
	seenP := make(map[string]bool)
	for _, r := range records {
		for _, m := range r.Measurements {
			if !seenM[m.Key] {
				seenM[m.Key] = true
				t.MeasurementCols = append(t.MeasurementCols, m.Key)
			}
		}
		for _, p := range r.Params {
			if !seenP[p.Name] {
				seenP[p.Name] = true
				t.ParamCols = append(t.ParamCols, p.Name)
			}
		}
	}
	return t
}

// Header returns the CSV header row.
func (t *Table) Header() []string {
	header := make([]string, 0, 1+len(t.MeasurementCols)+len(t.ParamCols))
	header = append(header, "name")
	header = append(header, t.MeasurementCols...)
	header = append(header, t.ParamCols...)
	return header
}

// WriteCSV serialises the table. Every row has exactly the header's
// cell count; absent measurements and parameters are empty cells.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header()); err != nil {
		return err
	}
	for _, r := range t.Records {
		row := make([]string, 0, 1+len(t.MeasurementCols)+len(t.ParamCols))
		row = append(row, r.Runner)
		for _, key := range t.MeasurementCols {
			if v, ok := r.Measurement(key); ok {
				row = append(row, formatValue(v))
			} else {
				row = append(row, "")
			}
		}
		for _, name := range t.ParamCols {
			if v, ok := r.Params.Get(name); ok {
				row = append(row, v)
			} else {
				row = append(row, "")
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile aggregates records and writes the table into dir under a
// unique timestamped name, so repeated invocations never overwrite each
// other. No artifact is produced when there are no records; the
// returned path is empty in that case.
func WriteFile(dir string, records []Record, completed time.Time) (string, error) {
	if len(records) == 0 {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating results directory: %w", err)
	}

	stamp := completed.Format("20060102T150405")
	path, f, err := createUnique(dir, stamp)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := Build(records).WriteCSV(f); err != nil {
		return "", fmt.Errorf("writing result table: %w", err)
	}
	return path, nil
}

// createUnique opens a fresh results-<stamp>.csv in dir. When two
// invocations finish within the same second the plain name collides, so
// a numeric suffix is tried until a free name is found.
func createUnique(dir, stamp string) (string, *os.File, error) {
	for n := 1; n <= 100; n++ {
		name := fmt.Sprintf("results-%s.csv", stamp)
		if n > 1 {
			name = fmt.Sprintf("results-%s-%d.csv", stamp, n)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return path, f, nil
		}
		if !os.IsExist(err) {
			return "", nil, fmt.Errorf("creating result table: %w", err)
		}
	}
	return "", nil, fmt.Errorf("creating result table: no free name for stamp %s", stamp)
}

// ParsedTable is a result table read back from disk. Cell access is by
// column name; the reader cannot distinguish measurement columns from
// parameter columns, so consumers name the measurements they want.
type ParsedTable struct {
	Columns []string
	Rows    [][]string

	index map[string]int
}

// ParseCSV reads a serialised result table.
func ParseCSV(r io.Reader) (*ParsedTable, error) {
	cr := csv.NewReader(r)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing result table: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("result table is empty")
	}
	if rows[0][0] != "name" {
		return nil, fmt.Errorf("first column is %q, want %q", rows[0][0], "name")
	}

	t := &ParsedTable{
		Columns: rows[0],
		Rows:    rows[1:],
		index:   make(map[string]int, len(rows[0])),
	}
	for i, col := range t.Columns {
		t.index[col] = i
	}
	return t, nil
}

// ParseFile reads a serialised result table from disk.
func ParseFile(path string) (*ParsedTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening result table: %w", err)
	}
	defer f.Close()
	return ParseCSV(f)
}

// Cell returns the value of the named column in row i; ok is false if
// the column does not exist.
func (t *ParsedTable) Cell(i int, col string) (string, bool) {
	j, ok := t.index[col]
	if !ok || j >= len(t.Rows[i]) {
		return "", false
	}
	return t.Rows[i][j], true
}

// Runners returns the distinct runner names in row order.
func (t *ParsedTable) Runners() []string {
	var names []string
	seen := make(map[string]bool)
	for i := range t.Rows {
		name, _ := t.Cell(i, "name")
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}
