package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/deixis/gridbench/internal/descriptor"
	"github.com/deixis/gridbench/internal/grid"
	"github.com/deixis/gridbench/internal/proc"
	"github.com/deixis/gridbench/internal/result"
)

// fakeRunner records every argv it is asked to run.
type fakeRunner struct {
	calls    [][]string
	exitCode int
}

func (f *fakeRunner) Run(ctx context.Context, argv []string) (*proc.Status, error) {
	f.calls = append(f.calls, argv)
	return &proc.Status{
		RunID:    fmt.Sprintf("run-%d", len(f.calls)),
		ExitCode: f.exitCode,
		Elapsed:  5 * time.Millisecond,
	}, nil
}

func quietLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newEngine(f *fakeRunner) *Engine {
	return &Engine{Monitor: f, Log: quietLog()}
}

func paramSet(pairs ...[2]string) *grid.ParamSet {
	s := grid.NewParamSet()
	for _, p := range pairs {
		s.Add(p[0], []string{p[1]})
	}
	return s
}

func TestExecute_GridWithOverride(t *testing.T) {
	params := grid.NewParamSet()
	params.Add("age", []string{"12", "13"})
	params.Add("city", []string{"A", "B"})
	d := &descriptor.Descriptor{
		Name:    "foo",
		Kind:    descriptor.Timing,
		Command: []string{"bench"},
		Args:    []string{"--age", "${age}", "--city", "${city}", "--name", "${name}"},
		Params:  params,
	}
	overrides := paramSet([2]string{"name", "bar"})

	f := &fakeRunner{}
	records, err := newEngine(f).Execute(context.Background(), d, overrides)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("records = %d, want 4", len(records))
	}

	seen := make(map[string]bool)
	for _, r := range records {
		if r.Runner != "foo" {
			t.Errorf("Runner = %q, want foo", r.Runner)
		}
		name, _ := r.Params.Get("name")
		if name != "bar" {
			t.Errorf("name = %q, want bar", name)
		}
		age, _ := r.Params.Get("age")
		city, _ := r.Params.Get("city")
		key := age + "/" + city
		if seen[key] {
			t.Errorf("duplicate combination %s", key)
		}
		seen[key] = true
		if _, ok := r.Measurement("elapsed"); !ok {
			t.Error("record has no elapsed measurement")
		}
	}
	if len(f.calls) != 4 {
		t.Errorf("commands run = %d, want 4", len(f.calls))
	}
}

func TestExecute_IncompleteRunnerSkipped(t *testing.T) {
	d := &descriptor.Descriptor{
		Name:    "foo",
		Command: []string{"bench", "--size", "${size}"},
		Params:  grid.NewParamSet(),
	}

	f := &fakeRunner{}
	_, err := newEngine(f).Execute(context.Background(), d, grid.NewParamSet())
	var incomplete *IncompleteRunnerError
	if !errors.As(err, &incomplete) {
		t.Fatalf("err = %v, want *IncompleteRunnerError", err)
	}
	if !reflect.DeepEqual(incomplete.Missing, []string{"size"}) {
		t.Errorf("Missing = %v, want [size]", incomplete.Missing)
	}
	if len(f.calls) != 0 {
		t.Errorf("commands run = %d, want 0 for skipped runner", len(f.calls))
	}
}

func TestExecuteAll_SkipDoesNotAbortOthers(t *testing.T) {
	bad := &descriptor.Descriptor{
		Name:    "bad",
		Command: []string{"bench", "${missing}"},
		Params:  grid.NewParamSet(),
	}
	good := &descriptor.Descriptor{
		Name:    "good",
		Command: []string{"true"},
		Params:  grid.NewParamSet(),
	}

	f := &fakeRunner{}
	records, err := newEngine(f).ExecuteAll(context.Background(), []*descriptor.Descriptor{bad, good}, grid.NewParamSet())
	if err != nil {
		t.Fatalf("ExecuteAll: %v", err)
	}
	if len(records) != 1 || records[0].Runner != "good" {
		t.Fatalf("records = %+v, want one record from good", records)
	}
}

func TestExecute_NonZeroExitStillRecorded(t *testing.T) {
	d := &descriptor.Descriptor{
		Name:    "failing",
		Command: []string{"false"},
		Params:  grid.NewParamSet(),
	}

	f := &fakeRunner{exitCode: 1}
	records, err := newEngine(f).Execute(context.Background(), d, grid.NewParamSet())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if records[0].ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", records[0].ExitCode)
	}
	elapsed, ok := records[0].Measurement("elapsed")
	if !ok || elapsed < 0 {
		t.Errorf("elapsed = %v, %v, want non-negative value", elapsed, ok)
	}
}

func TestExecute_PrepareRunsBeforeMain(t *testing.T) {
	params := grid.NewParamSet()
	params.Add("width", []string{"512"})
	d := &descriptor.Descriptor{
		Name:    "prep",
		Command: []string{"bench", "--width", "${width}"},
		Prepare: [][]string{{"bench", "--prepare", "--width", "${width}"}},
		Params:  params,
	}

	f := &fakeRunner{}
	records, err := newEngine(f).Execute(context.Background(), d, grid.NewParamSet())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if len(f.calls) != 2 {
		t.Fatalf("commands run = %d, want 2", len(f.calls))
	}
	wantPrep := []string{"bench", "--prepare", "--width", "512"}
	if !reflect.DeepEqual(f.calls[0], wantPrep) {
		t.Errorf("prepare argv = %v, want %v", f.calls[0], wantPrep)
	}
	wantMain := []string{"bench", "--width", "512"}
	if !reflect.DeepEqual(f.calls[1], wantMain) {
		t.Errorf("main argv = %v, want %v", f.calls[1], wantMain)
	}
}

func TestExecute_VerboseFlagAppended(t *testing.T) {
	d := &descriptor.Descriptor{
		Name:        "v",
		Command:     []string{"bench"},
		Params:      grid.NewParamSet(),
		VerboseFlag: "--verbose",
	}

	f := &fakeRunner{}
	eng := newEngine(f)
	eng.Verbose = true
	if _, err := eng.Execute(context.Background(), d, grid.NewParamSet()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := []string{"bench", "--verbose"}
	if !reflect.DeepEqual(f.calls[0], want) {
		t.Errorf("argv = %v, want %v", f.calls[0], want)
	}
}

// fakeMeasurer returns fixed quality metrics.
type fakeMeasurer struct {
	output, reference string
}

func (m *fakeMeasurer) Measure(outputPath, referencePath string) ([]result.Measurement, error) {
	m.output = outputPath
	m.reference = referencePath
	return []result.Measurement{{Key: "rmse", Value: 0.5}}, nil
}

func TestExecute_QualityKind(t *testing.T) {
	d := &descriptor.Descriptor{
		Name:    "q",
		Kind:    descriptor.Quality,
		Command: []string{"bench", "--out", "${output}"},
		Params:  grid.NewParamSet(),
	}
	overrides := grid.NewParamSet()
	overrides.Add("output", []string{"/tmp/out.bin"})
	overrides.Add("reference", []string{"/tmp/ref.bin"})

	f := &fakeRunner{}
	m := &fakeMeasurer{}
	eng := newEngine(f)
	eng.Quality = m

	records, err := eng.Execute(context.Background(), d, overrides)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if m.output != "/tmp/out.bin" || m.reference != "/tmp/ref.bin" {
		t.Errorf("measurer got (%q, %q)", m.output, m.reference)
	}
	if rmse, ok := records[0].Measurement("rmse"); !ok || rmse != 0.5 {
		t.Errorf("rmse = %v, %v, want 0.5", rmse, ok)
	}
	// Elapsed always leads the measurement columns.
	if records[0].Measurements[0].Key != "elapsed" {
		t.Errorf("first measurement = %q, want elapsed", records[0].Measurements[0].Key)
	}
}

func TestExecute_QualityWithoutArtifactParams(t *testing.T) {
	d := &descriptor.Descriptor{
		Name:    "q",
		Kind:    descriptor.Quality,
		Command: []string{"bench"},
		Params:  grid.NewParamSet(),
	}

	f := &fakeRunner{}
	eng := newEngine(f)
	eng.Quality = &fakeMeasurer{}

	records, err := eng.Execute(context.Background(), d, grid.NewParamSet())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if len(records[0].Measurements) != 1 {
		t.Errorf("measurements = %v, want elapsed only", records[0].Measurements)
	}
}
