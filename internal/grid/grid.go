// Package grid expands named parameter spaces into concrete assignments
// and substitutes ${name} placeholders in command tokens.
package grid

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\$\{(\w+)\}`)

// Param is one resolved parameter of an assignment.
type Param struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Assignment is one concrete point in a parameter grid: a single value
// chosen per parameter name, in declaration order.
type Assignment []Param

// Get returns the value for name, if present.
func (a Assignment) Get(name string) (string, bool) {
	for _, p := range a {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// MissingParameterError reports a placeholder that could not be resolved.
type MissingParameterError struct {
	Name string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("missing parameter %q", e.Name)
}

// Substitute replaces every ${name} occurrence in every token with the
// corresponding value from the assignment. Tokens may contain multiple
// placeholders and literal text around them. Substituted values are not
// re-scanned, so substitution never recurses. The first unresolved
// placeholder aborts with a MissingParameterError naming it.
func Substitute(tokens []string, a Assignment) ([]string, error) {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		matches := placeholderRe.FindAllStringSubmatchIndex(tok, -1)
		if matches == nil {
			out[i] = tok
			continue
		}
		var b strings.Builder
		last := 0
		for _, m := range matches {
			name := tok[m[2]:m[3]]
			val, ok := a.Get(name)
			if !ok {
				return nil, &MissingParameterError{Name: name}
			}
			b.WriteString(tok[last:m[0]])
			b.WriteString(val)
			last = m[1]
		}
		b.WriteString(tok[last:])
		out[i] = b.String()
	}
	return out, nil
}

// Placeholders returns the unique placeholder names referenced by the
// given token lists, in order of first appearance.
func Placeholders(tokenLists ...[]string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, tokens := range tokenLists {
		for _, tok := range tokens {
			for _, m := range placeholderRe.FindAllStringSubmatch(tok, -1) {
				if !seen[m[1]] {
					seen[m[1]] = true
					names = append(names, m[1])
				}
			}
		}
	}
	return names
}

// ParamSet is an ordered mapping from parameter name to its list of
// candidate values. Order is declaration order and determines both
// expansion order and result column order.
type ParamSet struct {
	names []string
	lists map[string][]string
}

// NewParamSet returns an empty ParamSet.
func NewParamSet() *ParamSet {
	return &ParamSet{lists: make(map[string][]string)}
}

// Add sets the candidate values for name. A new name is appended; an
// existing name keeps its position and has its values replaced.
func (s *ParamSet) Add(name string, values []string) {
	if _, ok := s.lists[name]; !ok {
		s.names = append(s.names, name)
	}
	s.lists[name] = values
}

// Names returns the parameter names in declaration order.
func (s *ParamSet) Names() []string {
	if s == nil {
		return nil
	}
	return s.names
}

// Values returns the candidate values for name, or nil.
func (s *ParamSet) Values(name string) []string {
	if s == nil {
		return nil
	}
	return s.lists[name]
}

// Has reports whether name is declared in the set.
func (s *ParamSet) Has(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.lists[name]
	return ok
}

// Merge returns a new ParamSet combining s with over. Keys present in
// both take over's values but keep their position in s; keys only in
// over are appended in over's order.
func (s *ParamSet) Merge(over *ParamSet) *ParamSet {
	merged := NewParamSet()
	for _, name := range s.Names() {
		merged.Add(name, s.Values(name))
	}
	for _, name := range over.Names() {
		merged.Add(name, over.Values(name))
	}
	return merged
}

// Expand enumerates the Cartesian product of all value lists as a slice
// of assignments in odometer order: the last declared parameter varies
// fastest. An empty set yields exactly one empty assignment. A set with
// an empty value list yields no assignments.
func (s *ParamSet) Expand() []Assignment {
	names := s.Names()
	if len(names) == 0 {
		return []Assignment{{}}
	}

	total := 1
	for _, name := range names {
		total *= len(s.lists[name])
	}
	if total == 0 {
		return nil
	}

	out := make([]Assignment, 0, total)
	idx := make([]int, len(names))
	for {
		a := make(Assignment, len(names))
		for i, name := range names {
			a[i] = Param{Name: name, Value: s.lists[name][idx[i]]}
		}
		out = append(out, a)

		// Advance the odometer from the rightmost digit.
		i := len(idx) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(s.lists[names[i]]) {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return out
		}
	}
}
