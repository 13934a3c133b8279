// Package executor orchestrates runners across their parameter grids.
// It is consumed by both the CLI and the MCP server.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/deixis/gridbench/internal/descriptor"
	"github.com/deixis/gridbench/internal/grid"
	"github.com/deixis/gridbench/internal/proc"
	"github.com/deixis/gridbench/internal/quality"
	"github.com/deixis/gridbench/internal/result"
)

// CommandRunner launches a fully-substituted command and reports its
// exit status and elapsed time. Implemented by proc.Monitor.
type CommandRunner interface {
	Run(ctx context.Context, argv []string) (*proc.Status, error)
}

// IncompleteRunnerError reports a runner whose placeholders are not
// covered by any known parameter source. The runner is skipped before
// any process is spawned; the invocation continues.
type IncompleteRunnerError struct {
	Runner  string
	Missing []string
}

func (e *IncompleteRunnerError) Error() string {
	return fmt.Sprintf("runner %q references undeclared parameters: %s",
		e.Runner, strings.Join(e.Missing, ", "))
}

// Engine holds shared dependencies for runner execution.
type Engine struct {
	Monitor CommandRunner
	Quality quality.Measurer // consulted for quality-kind runners
	Log     logrus.FieldLogger
	Verbose bool
}

// ExecuteAll runs every descriptor in order and returns the combined
// record sequence. Incomplete runners are skipped with a warning;
// anything else aborts the invocation.
func (e *Engine) ExecuteAll(ctx context.Context, descs []*descriptor.Descriptor, overrides *grid.ParamSet) ([]result.Record, error) {
	var records []result.Record
	for _, d := range descs {
		recs, err := e.Execute(ctx, d, overrides)
		if err != nil {
			var incomplete *IncompleteRunnerError
			if errors.As(err, &incomplete) {
				e.Log.Warn(incomplete.Error())
				continue
			}
			return records, err
		}
		records = append(records, recs...)
	}
	return records, nil
}

// Execute runs one descriptor across every assignment of its merged
// parameter grid. Invoker overrides win key-wise over the runner's
// declared params. The completeness check runs once, up front: any
// placeholder with no parameter source skips the whole runner via
// IncompleteRunnerError.
func (e *Engine) Execute(ctx context.Context, d *descriptor.Descriptor, overrides *grid.ParamSet) ([]result.Record, error) {
	merged := d.Params.Merge(overrides)

	var missing []string
	for _, name := range d.Placeholders() {
		if !merged.Has(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &IncompleteRunnerError{Runner: d.Name, Missing: missing}
	}

	log := e.Log.WithField("runner", d.Name)
	assignments := merged.Expand()
	log.Infof("expanding %d parameter combinations", len(assignments))

	var records []result.Record
	for _, a := range assignments {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		rec, err := e.executeOne(ctx, log, d, a)
		if err != nil {
			var missingParam *grid.MissingParameterError
			if errors.As(err, &missingParam) {
				// An override removed a key after the completeness
				// check. Abort only this assignment.
				log.Warnf("skipping assignment %v: %v", a, err)
				continue
			}
			return records, fmt.Errorf("runner %q: %w", d.Name, err)
		}
		records = append(records, *rec)
	}
	return records, nil
}

// executeOne runs prepare commands and the main command for a single
// assignment and produces its record.
func (e *Engine) executeOne(ctx context.Context, log logrus.FieldLogger, d *descriptor.Descriptor, a grid.Assignment) (*result.Record, error) {
	for _, prep := range d.Prepare {
		argv, err := grid.Substitute(prep, a)
		if err != nil {
			return nil, err
		}
		// Preparation timing is discarded.
		st, err := e.Monitor.Run(ctx, argv)
		if err != nil {
			return nil, err
		}
		if st.ExitCode != 0 {
			log.Warnf("prepare command exited with code %d", st.ExitCode)
		}
	}

	argv, err := grid.Substitute(d.Argv(), a)
	if err != nil {
		return nil, err
	}
	if e.Verbose && d.VerboseFlag != "" {
		argv = append(argv, d.VerboseFlag)
	}

	st, err := e.Monitor.Run(ctx, argv)
	if err != nil {
		return nil, err
	}
	if st.ExitCode != 0 {
		log.Warnf("command exited with code %d", st.ExitCode)
	}

	rec := &result.Record{
		Runner:       d.Name,
		Measurements: e.measure(log, d, st, a),
		Params:       a,
		ExitCode:     st.ExitCode,
	}
	log.Infof("elapsed %.3fs", st.Elapsed.Seconds())
	return rec, nil
}

// measure dispatches on the descriptor kind. Every kind records the
// elapsed wall-clock time; the quality kind appends artifact-comparison
// metrics from the quality collaborator.
func (e *Engine) measure(log logrus.FieldLogger, d *descriptor.Descriptor, st *proc.Status, a grid.Assignment) []result.Measurement {
	ms := []result.Measurement{{Key: "elapsed", Value: st.Elapsed.Seconds()}}
	if d.Kind != descriptor.Quality {
		return ms
	}

	output, okOut := a.Get("output")
	reference, okRef := a.Get("reference")
	if !okOut || !okRef {
		log.Warn("quality runner without output/reference parameters; recording elapsed only")
		return ms
	}
	if e.Quality == nil {
		log.Warn("no quality measurer configured; recording elapsed only")
		return ms
	}

	extra, err := e.Quality.Measure(output, reference)
	if err != nil {
		log.Warnf("quality measurement failed: %v", err)
		return ms
	}
	return append(ms, extra...)
}
