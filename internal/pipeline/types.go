package pipeline

import (
	"errors"
	"fmt"
	"strconv"
)

// #region errors
var (
	// ErrInvalidDefinition is returned when a definition fails validation.
	ErrInvalidDefinition = errors.New("invalid pipeline definition")
	// ErrInvalidValue is returned when a value does not parse as its type.
	ErrInvalidValue = errors.New("invalid parameter value")
)

// #endregion errors

// #region type
// Type is the declared type of a pipeline input or output.
type Type string

const (
	TypeString  Type = "string"
	TypeInteger Type = "integer"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypePath    Type = "path"
)

func (t Type) valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypePath:
		return true
	}
	return false
}

// #endregion type

// #region value
// Value is a typed parameter value.
type Value struct {
	Type Type
	raw  string
	i    int64
	f    float64
	b    bool
}

// ParseValue parses s as a value of type t.
func ParseValue(t Type, s string) (Value, error) {
	v := Value{Type: t, raw: s}
	var err error
	switch t {
	case TypeString, TypePath:
	case TypeInteger:
		v.i, err = strconv.ParseInt(s, 10, 64)
	case TypeNumber:
		v.f, err = strconv.ParseFloat(s, 64)
	case TypeBoolean:
		v.b, err = strconv.ParseBool(s)
	default:
		return Value{}, fmt.Errorf("%w: unknown type %q", ErrInvalidValue, t)
	}
	if err != nil {
		return Value{}, fmt.Errorf("%w: %q is not a %s", ErrInvalidValue, s, t)
	}
	return v, nil
}

// StringValue returns a string-typed value.
func StringValue(s string) Value { return Value{Type: TypeString, raw: s} }

// PathValue returns a path-typed value.
func PathValue(s string) Value { return Value{Type: TypePath, raw: s} }

// String renders the value as it was supplied.
func (v Value) String() string { return v.raw }

// Int returns the value of an integer parameter.
func (v Value) Int() int64 { return v.i }

// Float returns the value of a number parameter.
func (v Value) Float() float64 { return v.f }

// Bool returns the value of a boolean parameter.
func (v Value) Bool() bool { return v.b }

// #endregion value

// #region ports
// Port declares a named, typed input or output.
type Port struct {
	Name     string
	Type     Type
	Optional bool
}

// OutputRef points at an output of an upstream step.
type OutputRef struct {
	Step   string
	Output string
}

// Binding feeds a step input from a pipeline input, an upstream output or a
// literal. Exactly one field is set.
type Binding struct {
	Input   string
	Output  *OutputRef
	Literal *Value
}

// FromInput binds to a pipeline input.
func FromInput(name string) Binding { return Binding{Input: name} }

// FromOutput binds to an upstream step output.
func FromOutput(step, output string) Binding {
	return Binding{Output: &OutputRef{Step: step, Output: output}}
}

// Literal binds to a constant.
func Literal(v Value) Binding { return Binding{Literal: &v} }

// #endregion ports

// #region step
// Step is one unit of work in a definition.
type Step struct {
	Name      string
	Component string
	Inputs    []Port
	Outputs   []Port
	Bindings  map[string]Binding
	DependsOn []string
}

// Definition is a typed pipeline: declared inputs and steps wired by
// bindings and explicit dependency edges.
type Definition struct {
	Name   string
	Inputs []Port
	Steps  []Step
}

// Args are validated, typed values keyed by name.
type Args map[string]Value

// Get returns a value and whether it was set.
func (a Args) Get(name string) (Value, bool) {
	v, ok := a[name]
	return v, ok
}

// String returns the string form of name, or "" when unset.
func (a Args) String(name string) string {
	return a[name].raw
}

// #endregion step
