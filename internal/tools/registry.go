package tools

import (
	"fmt"
	"sync"
)

// Registry tool registry
type Registry struct {
	tools map[string]Tool
	order []string
	mu    sync.RWMutex
}

// NewRegistry creates a new tool registry
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register registers a tool
func (r *Registry) Register(tool Tool) error {
	if tool == nil || tool.Name() == "" {
		return fmt.Errorf("invalid tool")
	}
	name := tool.Name()
	if err := validateParameters(name, tool.Parameters()); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return &DuplicateNameError{Name: name}
	}

	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

// Resolve gets a tool by name
func (r *Registry) Resolve(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	if !exists {
		return nil, &NotFoundError{Name: name}
	}
	return tool, nil
}

// List lists all tools in registration order
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.tools[name])
	}
	return tools
}

// Count returns the number of registered tools
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// ToolSchema is the advertised shape of one tool.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  []ParameterDef `json:"parameters"`
	InputSchema map[string]any `json:"inputSchema"`
}

// GetSchemas gets the schema of every tool in registration order
func (r *Registry) GetSchemas() []ToolSchema {
	tools := r.List()
	schemas := make([]ToolSchema, 0, len(tools))
	for _, tool := range tools {
		params := tool.Parameters()
		if params == nil {
			params = []ParameterDef{}
		}
		schemas = append(schemas, ToolSchema{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  params,
			InputSchema: buildParameterSchema(params),
		})
	}
	return schemas
}

// buildParameterSchema builds a JSON schema object for the parameters
func buildParameterSchema(params []ParameterDef) map[string]any {
	properties := make(map[string]any)
	required := make([]string, 0)

	for _, param := range params {
		prop := map[string]any{
			"type": string(param.Type),
		}
		if param.Nullable {
			prop["type"] = []string{string(param.Type), "null"}
		}
		if param.Description != "" {
			prop["description"] = param.Description
		}
		if !param.Required {
			prop["default"] = param.Default
		}
		properties[param.Name] = prop
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}

	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}
