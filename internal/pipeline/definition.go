package pipeline

import (
	"errors"
	"fmt"
	"sort"
)

// #region validate
// Validate checks the definition before anything runs: names are unique,
// every binding resolves to a declared port of the same type, every required
// input is bound and the dependency graph is acyclic.
func (d Definition) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	inputs := map[string]Port{}
	for _, p := range d.Inputs {
		if !p.Type.valid() {
			fail("pipeline input %q: unknown type %q", p.Name, p.Type)
		}
		if _, dup := inputs[p.Name]; dup {
			fail("pipeline input %q declared twice", p.Name)
		}
		inputs[p.Name] = p
	}

	steps := map[string]Step{}
	for _, s := range d.Steps {
		if s.Name == "" {
			fail("step with empty name")
			continue
		}
		if _, dup := steps[s.Name]; dup {
			fail("step %q declared twice", s.Name)
		}
		steps[s.Name] = s
	}

	for _, s := range d.Steps {
		declared := map[string]Port{}
		for _, p := range s.Inputs {
			if !p.Type.valid() {
				fail("step %q input %q: unknown type %q", s.Name, p.Name, p.Type)
			}
			declared[p.Name] = p
		}
		for _, p := range s.Outputs {
			if !p.Type.valid() {
				fail("step %q output %q: unknown type %q", s.Name, p.Name, p.Type)
			}
		}
		for name := range s.Bindings {
			if _, ok := declared[name]; !ok {
				fail("step %q binds undeclared input %q", s.Name, name)
			}
		}
		for _, p := range s.Inputs {
			b, ok := s.Bindings[p.Name]
			if !ok {
				if !p.Optional {
					fail("step %q: required input %q is not bound", s.Name, p.Name)
				}
				continue
			}
			got, err := bindingType(b, inputs, steps)
			if err != nil {
				fail("step %q input %q: %v", s.Name, p.Name, err)
				continue
			}
			if got != p.Type {
				fail("step %q input %q: want %s, bound to %s", s.Name, p.Name, p.Type, got)
			}
			if b.Output != nil && !dependsOn(s, b.Output.Step) {
				fail("step %q consumes %s.%s without depending on %q", s.Name, b.Output.Step, b.Output.Output, b.Output.Step)
			}
		}
		for _, dep := range s.DependsOn {
			if _, ok := steps[dep]; !ok {
				fail("step %q depends on unknown step %q", s.Name, dep)
			}
		}
	}

	if len(errs) == 0 {
		if _, err := d.Order(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w %q: %w", ErrInvalidDefinition, d.Name, errors.Join(errs...))
	}
	return nil
}

func bindingType(b Binding, inputs map[string]Port, steps map[string]Step) (Type, error) {
	set := 0
	if b.Input != "" {
		set++
	}
	if b.Output != nil {
		set++
	}
	if b.Literal != nil {
		set++
	}
	if set != 1 {
		return "", fmt.Errorf("binding must set exactly one source")
	}
	switch {
	case b.Input != "":
		p, ok := inputs[b.Input]
		if !ok {
			return "", fmt.Errorf("unknown pipeline input %q", b.Input)
		}
		return p.Type, nil
	case b.Output != nil:
		s, ok := steps[b.Output.Step]
		if !ok {
			return "", fmt.Errorf("unknown step %q", b.Output.Step)
		}
		for _, p := range s.Outputs {
			if p.Name == b.Output.Output {
				return p.Type, nil
			}
		}
		return "", fmt.Errorf("step %q has no output %q", b.Output.Step, b.Output.Output)
	}
	return b.Literal.Type, nil
}

func dependsOn(s Step, name string) bool {
	for _, d := range s.DependsOn {
		if d == name {
			return true
		}
	}
	return false
}

// #endregion validate

// #region order
// Order returns the steps in dependency order; ties keep declaration order.
func (d Definition) Order() ([]Step, error) {
	index := make(map[string]int, len(d.Steps))
	for i, s := range d.Steps {
		index[s.Name] = i
	}
	indegree := make([]int, len(d.Steps))
	children := make([][]int, len(d.Steps))
	for i, s := range d.Steps {
		for _, dep := range s.DependsOn {
			j, ok := index[dep]
			if !ok {
				return nil, fmt.Errorf("step %q depends on unknown step %q", s.Name, dep)
			}
			indegree[i]++
			children[j] = append(children[j], i)
		}
	}

	var ready []int
	for i, n := range indegree {
		if n == 0 {
			ready = append(ready, i)
		}
	}
	out := make([]Step, 0, len(d.Steps))
	for len(ready) > 0 {
		sort.Ints(ready)
		i := ready[0]
		ready = ready[1:]
		out = append(out, d.Steps[i])
		for _, c := range children[i] {
			indegree[c]--
			if indegree[c] == 0 {
				ready = append(ready, c)
			}
		}
	}
	if len(out) != len(d.Steps) {
		return nil, fmt.Errorf("dependency cycle among steps")
	}
	return out, nil
}

// #endregion order

// #region bind
// Bind parses raw pipeline input values against their declared types.
// Unknown names and missing required inputs are errors.
func (d Definition) Bind(raw map[string]string) (Args, error) {
	args := make(Args, len(d.Inputs))
	declared := make(map[string]bool, len(d.Inputs))
	var errs []error
	for _, p := range d.Inputs {
		declared[p.Name] = true
		s, ok := raw[p.Name]
		if !ok {
			if !p.Optional {
				errs = append(errs, fmt.Errorf("input %q is required", p.Name))
			}
			continue
		}
		v, err := ParseValue(p.Type, s)
		if err != nil {
			errs = append(errs, fmt.Errorf("input %q: %w", p.Name, err))
			continue
		}
		args[p.Name] = v
	}
	for name := range raw {
		if !declared[name] {
			errs = append(errs, fmt.Errorf("input %q is not declared", name))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("bind %q: %w", d.Name, errors.Join(errs...))
	}
	return args, nil
}

// StepArgs resolves the inputs of step s from pipeline args and the outputs
// already produced by upstream steps.
func StepArgs(s Step, args Args, outputs map[string]Args) (Args, error) {
	out := make(Args, len(s.Inputs))
	for _, p := range s.Inputs {
		b, ok := s.Bindings[p.Name]
		if !ok {
			continue
		}
		var (
			v     Value
			found bool
		)
		switch {
		case b.Input != "":
			v, found = args[b.Input]
		case b.Output != nil:
			v, found = outputs[b.Output.Step][b.Output.Output]
		case b.Literal != nil:
			v, found = *b.Literal, true
		}
		if !found {
			if p.Optional {
				continue
			}
			return nil, fmt.Errorf("step %q: input %q has no value", s.Name, p.Name)
		}
		out[p.Name] = v
	}
	return out, nil
}

// #endregion bind
