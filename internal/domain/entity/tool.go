package entity

// ToolDefinition describes a tool the model may call. Registry entries
// are immutable after registration.
type ToolDefinition struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  ToolSchema `json:"parameters"`
}

// ToolSchema is a flat JSON-schema-style object declaration for tool
// arguments: property types, required fields and numeric bounds.
type ToolSchema struct {
	Type       string               `json:"type"`
	Properties map[string]ParamSpec `json:"properties"`
	Required   []string             `json:"required,omitempty"`
}

// ParamSpec declares a single tool parameter.
type ParamSpec struct {
	Type        string   `json:"type"` // "string", "integer", "number", "boolean"
	Description string   `json:"description,omitempty"`
	Minimum     *float64 `json:"minimum,omitempty"`
	Maximum     *float64 `json:"maximum,omitempty"`
}
