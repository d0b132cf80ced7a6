package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"raggate/internal/domain/entity"
)

// ToolHandler executes one validated tool invocation. Arguments arrive
// already checked against the tool's declared schema.
type ToolHandler func(ctx context.Context, args map[string]any) (string, error)

type registeredTool struct {
	def     entity.ToolDefinition
	handler ToolHandler
}

// ToolRegistry maps tool names to handlers and executes tool calls.
// Execution never surfaces an error to the caller: validation failures,
// handler errors and timeouts all become textual ToolResults so the
// conversation can continue and the model can self-correct.
type ToolRegistry struct {
	mu          sync.RWMutex
	tools       map[string]registeredTool
	timeout     time.Duration
	parallelism int
}

func NewToolRegistry(timeout time.Duration, parallelism int) *ToolRegistry {
	if parallelism < 1 {
		parallelism = 1
	}
	return &ToolRegistry{
		tools:       make(map[string]registeredTool),
		timeout:     timeout,
		parallelism: parallelism,
	}
}

func (r *ToolRegistry) Register(def entity.ToolDefinition, handler ToolHandler) error {
	if def.Name == "" {
		return fmt.Errorf("tool definition requires a name")
	}
	if handler == nil {
		return fmt.Errorf("tool %q requires a handler", def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool %q already registered", def.Name)
	}
	r.tools[def.Name] = registeredTool{def: def, handler: handler}
	return nil
}

// Definitions returns the registered tool set in name order.
func (r *ToolRegistry) Definitions() []entity.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]entity.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// ExecuteAll runs every call with bounded parallelism and wait-for-all
// semantics. Results come back indexed to match the request order, one
// result per call, no exceptions.
func (r *ToolRegistry) ExecuteAll(ctx context.Context, calls []entity.ToolCall) []entity.ToolResult {
	results := make([]entity.ToolResult, len(calls))
	sem := make(chan struct{}, r.parallelism)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(i int, call entity.ToolCall) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = r.Execute(ctx, call)
		}(i, call)
	}

	wg.Wait()
	return results
}

// Execute runs a single tool call under the per-tool timeout.
func (r *ToolRegistry) Execute(ctx context.Context, call entity.ToolCall) entity.ToolResult {
	r.mu.RLock()
	tool, ok := r.tools[call.Name]
	r.mu.RUnlock()
	if !ok {
		return errResult(call.ID, fmt.Sprintf("unknown tool %q", call.Name))
	}

	args, err := validateArgs(tool.def, call.Arguments)
	if err != nil {
		return errResult(call.ID, fmt.Sprintf("invalid arguments for tool %q: %v", call.Name, err))
	}

	execCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		content string
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", rec)}
			}
		}()
		content, err := tool.handler(execCtx, args)
		done <- outcome{content: content, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return errResult(call.ID, fmt.Sprintf("tool %q failed: %v", call.Name, out.err))
		}
		return entity.ToolResult{ToolCallID: call.ID, Content: out.content}
	case <-execCtx.Done():
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return errResult(call.ID, fmt.Sprintf("tool %q timed out after %s", call.Name, r.timeout))
		}
		return errResult(call.ID, fmt.Sprintf("tool %q canceled", call.Name))
	}
}

func errResult(callID, msg string) entity.ToolResult {
	return entity.ToolResult{ToolCallID: callID, Content: msg, IsError: true}
}

// validateArgs checks the raw argument payload against the declared
// schema before the handler ever runs: malformed JSON, missing required
// fields, type mismatches and out-of-range numerics are all rejected.
func validateArgs(def entity.ToolDefinition, raw json.RawMessage) (map[string]any, error) {
	args := make(map[string]any)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("malformed argument payload: %w", err)
		}
	}

	for _, req := range def.Parameters.Required {
		if _, ok := args[req]; !ok {
			return nil, fmt.Errorf("missing required parameter %q", req)
		}
	}

	for name, val := range args {
		spec, ok := def.Parameters.Properties[name]
		if !ok {
			return nil, fmt.Errorf("unknown parameter %q", name)
		}
		if err := checkParam(name, spec, val); err != nil {
			return nil, err
		}
	}
	return args, nil
}

func checkParam(name string, spec entity.ParamSpec, val any) error {
	switch spec.Type {
	case "string":
		if _, ok := val.(string); !ok {
			return fmt.Errorf("parameter %q must be a string", name)
		}
	case "boolean":
		if _, ok := val.(bool); !ok {
			return fmt.Errorf("parameter %q must be a boolean", name)
		}
	case "integer":
		f, ok := val.(float64)
		if !ok || f != math.Trunc(f) {
			return fmt.Errorf("parameter %q must be an integer", name)
		}
		return checkBounds(name, spec, f)
	case "number":
		f, ok := val.(float64)
		if !ok {
			return fmt.Errorf("parameter %q must be a number", name)
		}
		return checkBounds(name, spec, f)
	}
	return nil
}

func checkBounds(name string, spec entity.ParamSpec, f float64) error {
	if spec.Minimum != nil && f < *spec.Minimum {
		return fmt.Errorf("parameter %q below minimum %v", name, *spec.Minimum)
	}
	if spec.Maximum != nil && f > *spec.Maximum {
		return fmt.Errorf("parameter %q above maximum %v", name, *spec.Maximum)
	}
	return nil
}
