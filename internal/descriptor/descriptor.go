// Package descriptor defines the runner descriptor model and loads
// descriptor JSON files from disk. Validation happens entirely at the
// load boundary so the execution engine only ever sees well-formed,
// fully-typed descriptors.
package descriptor

import (
	"github.com/deixis/gridbench/internal/grid"
)

// Kind selects the measurement strategy applied to a runner's runs.
type Kind string

const (
	// Timing runners record wall-clock elapsed time only.
	Timing Kind = "timing"
	// Quality runners additionally compare an output artifact against a
	// reference artifact and record quality metrics.
	Quality Kind = "quality"
)

// valid reports whether k is a known kind.
func (k Kind) valid() bool {
	return k == Timing || k == Quality
}

// Descriptor is one loaded benchmark definition: a base command, an
// argument tail with ${name} placeholders, optional preparation
// commands, and the runner-declared parameter space.
type Descriptor struct {
	Name        string
	Kind        Kind
	Command     []string
	Args        []string
	Prepare     [][]string
	Params      *grid.ParamSet
	VerboseFlag string
}

// Argv returns the full main-command token list: base command followed
// by the argument tail. Placeholders are still unsubstituted.
func (d *Descriptor) Argv() []string {
	argv := make([]string, 0, len(d.Command)+len(d.Args))
	argv = append(argv, d.Command...)
	argv = append(argv, d.Args...)
	return argv
}

// Placeholders returns the unique placeholder names referenced by the
// main command and all prepare commands, in order of first appearance.
func (d *Descriptor) Placeholders() []string {
	lists := make([][]string, 0, len(d.Prepare)+1)
	lists = append(lists, d.Argv())
	lists = append(lists, d.Prepare...)
	return grid.Placeholders(lists...)
}
