package tools

import (
	"context"
	"fmt"
)

// Tool tool interface
type Tool interface {
	Name() string                                           // Tool name
	Description() string                                    // Tool description (advertised to clients)
	Parameters() []ParameterDef                             // Ordered parameter definitions
	Execute(ctx context.Context, args Args) (string, error) // Execute with bound arguments
}

// ParamType declared parameter type
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
)

// ParameterDef parameter definition
type ParameterDef struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Description string    `json:"description,omitempty"`
	Required    bool      `json:"required"`
	Default     any       `json:"default,omitempty"`
	Nullable    bool      `json:"nullable,omitempty"` // optional with a null default
}

// Func is a Tool declared by value instead of by type.
type Func struct {
	ToolName        string
	ToolDescription string
	Params          []ParameterDef
	Fn              func(ctx context.Context, args Args) (string, error)
}

func (f *Func) Name() string { return f.ToolName }
func (f *Func) Description() string { return f.ToolDescription }
func (f *Func) Parameters() []ParameterDef { return f.Params }

func (f *Func) Execute(ctx context.Context, args Args) (string, error) {
	if f.Fn == nil {
		return "", fmt.Errorf("tool %s has no handler", f.ToolName)
	}
	return f.Fn(ctx, args)
}

// validateParameters checks the invariants of a parameter list.
func validateParameters(tool string, params []ParameterDef) error {
	seen := make(map[string]struct{}, len(params))
	for _, p := range params {
		if p.Name == "" {
			return fmt.Errorf("tool %s: parameter name cannot be empty", tool)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("tool %s: duplicate parameter %s", tool, p.Name)
		}
		seen[p.Name] = struct{}{}

		switch p.Type {
		case TypeString, TypeInteger, TypeNumber, TypeBoolean:
		default:
			return fmt.Errorf("tool %s: parameter %s has unsupported type %q", tool, p.Name, p.Type)
		}

		if !p.Required && p.Default == nil && !p.Nullable {
			return fmt.Errorf("tool %s: optional parameter %s must declare a default", tool, p.Name)
		}
		if p.Default != nil {
			if _, err := coerce(p, p.Default); err != nil {
				return fmt.Errorf("tool %s: default of %s: %w", tool, p.Name, err)
			}
		}
	}
	return nil
}
