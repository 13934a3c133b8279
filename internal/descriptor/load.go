package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/deixis/gridbench/internal/grid"
)

// rawDescriptor mirrors the descriptor file shape before normalisation.
// Command and Params are deferred so that the two command forms and the
// params key order can be handled by hand.
type rawDescriptor struct {
	Name           string          `json:"name"`
	Kind           string          `json:"kind"`
	Command        json.RawMessage `json:"command"`
	Args           []string        `json:"args"`
	Prepare        [][]string      `json:"prepare"`
	Params         json.RawMessage `json:"params"`
	VerboseFlag    string          `json:"verbose_flag"`
	VerboseFlagAlt string          `json:"verbose-flag"`
}

// Load reads and validates a single descriptor file.
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading descriptor: %w", err)
	}

	d, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return d, nil
}

// LoadDir loads every *.json file in dir, sorted by file name.
// Duplicate runner names across files are rejected.
func LoadDir(dir string) ([]*Descriptor, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading runner directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	descs := make([]*Descriptor, 0, len(names))
	seen := make(map[string]string)
	for _, name := range names {
		d, err := Load(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[d.Name]; ok {
			return nil, fmt.Errorf("duplicate runner %q in %s (already defined in %s)", d.Name, name, prev)
		}
		seen[d.Name] = name
		descs = append(descs, d)
	}
	return descs, nil
}

func parse(data []byte) (*Descriptor, error) {
	var raw rawDescriptor
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	if raw.Name == "" {
		return nil, fmt.Errorf("missing required field %q", "name")
	}
	if len(raw.Command) == 0 {
		return nil, fmt.Errorf("runner %q: missing required field %q", raw.Name, "command")
	}

	kind := Kind(raw.Kind)
	if kind == "" {
		kind = Timing
	}
	if !kind.valid() {
		return nil, fmt.Errorf("runner %q: unknown kind %q", raw.Name, raw.Kind)
	}

	command, args, err := parseCommand(raw.Command, raw.Args)
	if err != nil {
		return nil, fmt.Errorf("runner %q: %w", raw.Name, err)
	}

	for i, prep := range raw.Prepare {
		if len(prep) == 0 {
			return nil, fmt.Errorf("runner %q: prepare[%d] is empty", raw.Name, i)
		}
	}

	params, err := parseParams(raw.Params)
	if err != nil {
		return nil, fmt.Errorf("runner %q: %w", raw.Name, err)
	}

	verbose := raw.VerboseFlag
	if verbose == "" {
		verbose = raw.VerboseFlagAlt
	}

	return &Descriptor{
		Name:        raw.Name,
		Kind:        kind,
		Command:     command,
		Args:        args,
		Prepare:     raw.Prepare,
		Params:      params,
		VerboseFlag: verbose,
	}, nil
}

// parseCommand normalises the two descriptor forms to the canonical
// token-list form: a list-form command carries its own tail, while a
// bare-string command requires a separate args list.
func parseCommand(rawCmd json.RawMessage, args []string) (command, tail []string, err error) {
	var list []string
	if err := json.Unmarshal(rawCmd, &list); err == nil {
		if len(list) == 0 {
			return nil, nil, fmt.Errorf("command list is empty")
		}
		return list, args, nil
	}

	var single string
	if err := json.Unmarshal(rawCmd, &single); err != nil {
		return nil, nil, fmt.Errorf("command must be a string or a list of strings")
	}
	if single == "" {
		return nil, nil, fmt.Errorf("command is empty")
	}
	if args == nil {
		return nil, nil, fmt.Errorf("string-form command requires %q", "args")
	}
	return []string{single}, args, nil
}

// parseParams decodes the params object preserving key declaration
// order, which encoding/json maps discard. Scalar values (strings,
// numbers, bools) are stringified at this boundary so the engine only
// deals in string values.
func parseParams(raw json.RawMessage) (*grid.ParamSet, error) {
	params := grid.NewParamSet()
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return params, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("params: %w", err)
	}
	if tok != json.Delim('{') {
		return nil, fmt.Errorf("params must be an object")
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("params: %w", err)
		}
		key := keyTok.(string)

		var rawValues []any
		if err := dec.Decode(&rawValues); err != nil {
			return nil, fmt.Errorf("params[%s]: must be a list of scalars", key)
		}
		if len(rawValues) == 0 {
			return nil, fmt.Errorf("params[%s]: value list is empty", key)
		}

		values := make([]string, len(rawValues))
		for i, v := range rawValues {
			s, err := stringifyScalar(v)
			if err != nil {
				return nil, fmt.Errorf("params[%s][%d]: %w", key, i, err)
			}
			values[i] = s
		}
		if params.Has(key) {
			return nil, fmt.Errorf("params[%s]: duplicate key", key)
		}
		params.Add(key, values)
	}
	return params, nil
}

func stringifyScalar(v any) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}
