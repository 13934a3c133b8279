// Package result collects per-run execution records, aggregates them
// into a tabular artifact, and persists per-invocation results for
// later inspection.
package result

import (
	"strconv"

	"github.com/deixis/gridbench/internal/grid"
)

// Measurement is one named measured value. Measurements are kept as an
// ordered slice, not a map: the first record's key order defines the
// table's measurement column order.
type Measurement struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

// Record is the immutable outcome of running one runner once with one
// parameter assignment.
type Record struct {
	Runner       string          `json:"runner"`
	Measurements []Measurement   `json:"measurements"`
	Params       grid.Assignment `json:"params,omitempty"`
	ExitCode     int             `json:"exit_code"`
}

// Measurement returns the value for key, if present.
func (r *Record) Measurement(key string) (float64, bool) {
	for _, m := range r.Measurements {
		if m.Key == key {
			return m.Value, true
		}
	}
	return 0, false
}

// formatValue renders a measurement for the CSV cell.
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
