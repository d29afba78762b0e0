package domain

import (
	"context"
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
)

// ParamType defines the value type of a command parameter.
type ParamType string

const (
	ParamString ParamType = "string"
	ParamInt    ParamType = "int"
	ParamFloat  ParamType = "float"
	ParamBool   ParamType = "bool"
	ParamEnum   ParamType = "enum"
)

// Param describes one command parameter. The core consumes already-parsed
// values; Param carries enough for adapters (CLI flags, HTTP, MCP) to do
// their own parsing and for ValidateArgs to normalize the result.
type Param struct {
	Name     string    `json:"name" yaml:"name"`
	Type     ParamType `json:"type" yaml:"type"`
	Required bool      `json:"required,omitempty" yaml:"required,omitempty"`
	Default  any       `json:"default,omitempty" yaml:"default,omitempty"`
	Choices  []string  `json:"choices,omitempty" yaml:"choices,omitempty"`
	Help     string    `json:"help,omitempty" yaml:"help,omitempty"`
}

// Hints carries presentation preferences for a command. All fields are
// optional; the zero value means "no preference". They originate from the
// host or from an arbor.yaml manifest.
type Hints struct {
	// Hidden excludes the command from listings and generated surfaces.
	Hidden bool `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	// Long marks a long-running command; surfaces default it to
	// background execution.
	Long bool `json:"long,omitempty" yaml:"long,omitempty"`
	// Auto runs the command as soon as the surface starts.
	Auto bool `json:"auto,omitempty" yaml:"auto,omitempty"`
	// Header renders the command's output above the interactive area.
	Header bool `json:"header,omitempty" yaml:"header,omitempty"`
	// Button overrides the activation label on interactive surfaces.
	Button string `json:"button,omitempty" yaml:"button,omitempty"`
}

// Handler is a command body. It emits output through the context binding
// and may return a value; a non-nil value is appended to the root scope as
// a final emission.
type Handler func(ctx context.Context, args Args) (any, error)

// Command is a named, registerable unit of work.
type Command struct {
	Name    string  `json:"name"`
	Summary string  `json:"summary,omitempty"`
	Params  []Param `json:"params,omitempty"`
	Hints   Hints   `json:"hints,omitempty"`
	Handler Handler `json:"-"`
}

// Param returns the named parameter spec, if declared.
func (c Command) Param(name string) (Param, bool) {
	for _, p := range c.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// ValidateArgs checks args against the command's parameter specs and
// returns a normalized copy: unknown names are rejected, missing required
// parameters are rejected, defaults are filled in, and values are coerced
// to the declared type.
func (c Command) ValidateArgs(args Args) (Args, error) {
	out := make(Args, len(c.Params))

	for name := range args {
		if _, ok := c.Param(name); !ok {
			return nil, &ArgumentError{Param: name, Reason: "not a declared parameter"}
		}
	}

	for _, p := range c.Params {
		raw, ok := args[p.Name]
		if !ok {
			if p.Default != nil {
				raw = p.Default
			} else if p.Required {
				return nil, &ArgumentError{Param: p.Name, Reason: "required"}
			} else {
				continue
			}
		}
		val, err := coerce(p, raw)
		if err != nil {
			return nil, err
		}
		out[p.Name] = val
	}
	return out, nil
}

func coerce(p Param, raw any) (any, error) {
	switch p.Type {
	case ParamInt:
		v, err := cast.ToIntE(raw)
		if err != nil {
			return nil, &ArgumentError{Param: p.Name, Reason: fmt.Sprintf("expected int, got %v", raw)}
		}
		return v, nil
	case ParamFloat:
		v, err := cast.ToFloat64E(raw)
		if err != nil {
			return nil, &ArgumentError{Param: p.Name, Reason: fmt.Sprintf("expected float, got %v", raw)}
		}
		return v, nil
	case ParamBool:
		v, err := cast.ToBoolE(raw)
		if err != nil {
			return nil, &ArgumentError{Param: p.Name, Reason: fmt.Sprintf("expected bool, got %v", raw)}
		}
		return v, nil
	case ParamEnum:
		s, err := cast.ToStringE(raw)
		if err != nil {
			return nil, &ArgumentError{Param: p.Name, Reason: fmt.Sprintf("expected string, got %v", raw)}
		}
		for _, choice := range p.Choices {
			if s == choice {
				return s, nil
			}
		}
		return nil, &ArgumentError{Param: p.Name, Reason: fmt.Sprintf("%q is not one of %v", s, p.Choices)}
	default:
		s, err := cast.ToStringE(raw)
		if err != nil {
			return nil, &ArgumentError{Param: p.Name, Reason: fmt.Sprintf("expected string, got %v", raw)}
		}
		return s, nil
	}
}

// Args holds the concrete argument values of one execution request, keyed
// by parameter name.
type Args map[string]any

// Decode maps args onto a struct using mapstructure field names. Weak
// typing is enabled so adapters may pass strings for numeric parameters.
func (a Args) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(map[string]any(a))
}

// String returns the named argument as a string, or "" when absent.
func (a Args) String(name string) string {
	return cast.ToString(a[name])
}

// Int returns the named argument as an int, or 0 when absent.
func (a Args) Int(name string) int {
	return cast.ToInt(a[name])
}

// Float returns the named argument as a float64, or 0 when absent.
func (a Args) Float(name string) float64 {
	return cast.ToFloat64(a[name])
}

// Bool returns the named argument as a bool, or false when absent.
func (a Args) Bool(name string) bool {
	return cast.ToBool(a[name])
}

// Names returns the argument names in sorted order.
func (a Args) Names() []string {
	names := make([]string, 0, len(a))
	for k := range a {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
