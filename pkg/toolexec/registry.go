package toolexec

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/shreyanshjain05/sparkthon/internal/observability"
)

// ToolParameter defines a parameter for a tool
type ToolParameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// ToolDefinition defines a tool's metadata and handler
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
	Handler     ToolHandler     `json:"-"`
}

// ToolHandler is the function signature for tool execution
type ToolHandler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// Result is the single result shape every tool execution is normalized to.
// Failures never raise past the registry boundary; they come back as a
// Result with Success=false so the conversation can react to them.
type Result struct {
	Success bool        `json:"success"`
	Output  interface{} `json:"output,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Payload serializes the result for feeding back into the conversation.
func (r Result) Payload() string {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":"failed to serialize result: %v"}`, err)
	}
	return string(b)
}

// Registry holds the fixed tool catalogue and executes tools by name.
type Registry struct {
	tools   map[string]*ToolDefinition
	schemas map[string]*gojsonschema.Schema
	timeout time.Duration
	mu      sync.RWMutex
}

// New creates an empty registry. The timeout bounds each tool execution.
func New(timeout time.Duration) *Registry {
	observability.EnsureRegistered()

	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Registry{
		tools:   make(map[string]*ToolDefinition),
		schemas: make(map[string]*gojsonschema.Schema),
		timeout: timeout,
	}
}

// Register adds a tool to the catalogue.
func (r *Registry) Register(def ToolDefinition) error {
	if err := validateDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schema, err := generateJSONSchema(def)
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool already registered: %s", def.Name)
	}

	r.tools[def.Name] = &def
	r.schemas[def.Name] = schema

	log.Debug().Str("tool", def.Name).Msg("Tool registered")
	return nil
}

// Get returns a tool definition by name, or nil.
func (r *Registry) Get(name string) *ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// List returns all registered tool definitions.
func (r *Registry) List() []*ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*ToolDefinition, 0, len(r.tools))
	for _, def := range r.tools {
		defs = append(defs, def)
	}
	return defs
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute runs the named tool with the given arguments. Unknown tools,
// schema violations, handler errors and timeouts all come back as an
// error-shaped Result, never a panic or a Go error.
func (r *Registry) Execute(ctx context.Context, toolName string, params map[string]interface{}) Result {
	startTime := time.Now()

	r.mu.RLock()
	tool := r.tools[toolName]
	schema := r.schemas[toolName]
	r.mu.RUnlock()

	if tool == nil {
		log.Warn().Str("tool", toolName).Msg("Unknown tool requested")
		observability.RecordToolExecution(toolName, time.Since(startTime), false)
		return Result{Success: false, Error: fmt.Sprintf("unknown tool: %s", toolName)}
	}

	if params == nil {
		params = map[string]interface{}{}
	}
	applyDefaults(tool, params)

	if err := validateParameters(schema, params); err != nil {
		log.Warn().Str("tool", toolName).Err(err).Msg("Parameter validation failed")
		observability.RecordToolExecution(toolName, time.Since(startTime), false)
		return Result{Success: false, Error: fmt.Sprintf("parameter validation failed: %v", err)}
	}

	log.Debug().Str("tool", toolName).Msg("Executing tool")

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resultChan := make(chan interface{}, 1)
	errChan := make(chan error, 1)

	go func() {
		output, err := tool.Handler(timeoutCtx, params)
		if err != nil {
			errChan <- err
		} else {
			resultChan <- output
		}
	}()

	select {
	case output := <-resultChan:
		duration := time.Since(startTime)
		observability.RecordToolExecution(toolName, duration, true)
		log.Debug().Str("tool", toolName).Dur("duration", duration).Msg("Tool execution completed")
		return Result{Success: true, Output: output}

	case err := <-errChan:
		duration := time.Since(startTime)
		observability.RecordToolExecution(toolName, duration, false)
		log.Warn().Str("tool", toolName).Dur("duration", duration).Err(err).Msg("Tool execution failed")
		return Result{Success: false, Error: err.Error()}

	case <-timeoutCtx.Done():
		duration := time.Since(startTime)
		observability.RecordToolExecution(toolName, duration, false)
		log.Error().Str("tool", toolName).Dur("duration", duration).Msg("Tool execution timeout")
		return Result{Success: false, Error: fmt.Sprintf("tool execution timeout after %v", r.timeout)}
	}
}

func applyDefaults(tool *ToolDefinition, params map[string]interface{}) {
	for _, p := range tool.Parameters {
		if p.Default == nil {
			continue
		}
		if _, ok := params[p.Name]; !ok {
			params[p.Name] = p.Default
		}
	}
}

func validateDefinition(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
	}

	return nil
}

func generateJSONSchema(def ToolDefinition) (*gojsonschema.Schema, error) {
	schemaMap := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           make(map[string]interface{}),
	}

	properties := schemaMap["properties"].(map[string]interface{})
	required := []string{}

	for _, param := range def.Parameters {
		paramSchema := map[string]interface{}{
			"type": param.Type,
		}
		if param.Description != "" {
			paramSchema["description"] = param.Description
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		if param.Type == "array" {
			paramSchema["items"] = map[string]interface{}{"type": "string"}
		}

		properties[param.Name] = paramSchema

		if param.Required {
			required = append(required, param.Name)
		}
	}

	if len(required) > 0 {
		schemaMap["required"] = required
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
	if err != nil {
		return nil, err
	}

	return schema, nil
}

func validateParameters(schema *gojsonschema.Schema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}

	if !result.Valid() {
		errs := []string{}
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("validation errors: %v", errs)
	}

	return nil
}

// SchemaMap returns the JSON-schema-shaped parameter description used when
// advertising the tool to a model provider.
func SchemaMap(def *ToolDefinition) map[string]interface{} {
	properties := map[string]interface{}{}
	required := []string{}

	for _, param := range def.Parameters {
		p := map[string]interface{}{"type": param.Type}
		if param.Description != "" {
			p["description"] = param.Description
		}
		if param.Type == "array" {
			p["items"] = map[string]interface{}{"type": "string"}
		}
		properties[param.Name] = p
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}
