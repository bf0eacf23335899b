package tooling

import (
	"context"
	"fmt"
)

type ToolDefinition struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type Tool interface {
	Definition() ToolDefinition
	Call(ctx context.Context, args map[string]any) (string, error)
}

type Registry struct {
	tools       map[string]Tool
	definitions []ToolDefinition
}

func NewRegistry(tools ...Tool) *Registry {
	bucket := make(map[string]Tool, len(tools))
	defs := make([]ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		def := tool.Definition()
		bucket[def.Function.Name] = tool
		defs = append(defs, def)
	}
	return &Registry{tools: bucket, definitions: defs}
}

func (r *Registry) Definitions() []ToolDefinition {
	out := make([]ToolDefinition, len(r.definitions))
	copy(out, r.definitions)
	return out
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

func stringSliceArg(args map[string]any, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok {
		return nil, fmt.Errorf("%s is required", key)
	}
	switch v := raw.(type) {
	case []string:
		if len(v) == 0 {
			return nil, fmt.Errorf("%s is empty", key)
		}
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for idx, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] is not a string", key, idx)
			}
			out = append(out, str)
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("%s is empty", key)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s must be an array of strings", key)
	}
}

func stringArg(args map[string]any, key string) (string, bool) {
	val, ok := args[key]
	if !ok {
		return "", false
	}
	switch cast := val.(type) {
	case string:
		return cast, true
	default:
		return fmt.Sprintf("%v", cast), true
	}
}
