package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/parlorhq/parlor/internal/util"
	"github.com/parlorhq/parlor/logging"
	"github.com/parlorhq/parlor/model"
)

// Registry maps tool names to implementations and mediates every dispatch.
// The set is fixed at startup; registration is not synchronized and must
// happen before the registry is shared with the engine.
//
// Dispatch never fails from the engine's point of view: unknown tools,
// argument validation failures, execution errors and panics all become a
// structured error payload returned as the result string, so the turn state
// machine proceeds uniformly.
type Registry struct {
	tools  map[string]Tool
	order  []string
	logger logging.Logger
}

// NewRegistry constructs an empty registry. A nil logger is replaced with a
// no-op logger.
func NewRegistry(logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Registry{tools: make(map[string]Tool), logger: logger}
}

// Register adds a tool. Re-registering a name replaces the previous
// implementation.
func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Definitions renders the registered tools as model-facing declarations, in
// registration order.
func (r *Registry) Definitions() []model.ToolDefinition {
	defs := make([]model.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// Dispatch looks up a tool by exact name, validates the arguments against
// its declared schema and invokes it. The returned string is either the
// tool's result or a {"error": ...} payload; it is never empty.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) string {
	t, ok := r.tools[name]
	if !ok {
		r.logger.Warn("tool dispatch to unknown tool", "tool", name)
		return errorPayload(fmt.Sprintf("unknown tool %q", name))
	}

	if err := util.ValidateParameters(args, t.Parameters()); err != nil {
		r.logger.Warn("tool argument validation failed", "tool", name, "error", err.Error())
		return errorPayload(err.Error())
	}

	start := time.Now()
	result, err := r.invokeSafely(ctx, t, args)
	logging.LogToolCall(r.logger, name, time.Since(start), err)
	if err != nil {
		return errorPayload(err.Error())
	}
	return result
}

// invokeSafely runs the tool with panic recovery so a misbehaving
// implementation cannot take the turn down.
func (r *Registry) invokeSafely(ctx context.Context, t Tool, args map[string]any) (result string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = NewToolError(t.Name(), fmt.Sprintf("panic: %v", rec), "PANIC")
		}
	}()
	return t.Invoke(ctx, args)
}

// errorPayload renders a failure as the JSON object handed back to the
// model in place of a result.
func errorPayload(msg string) string {
	data, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return `{"error":"internal error"}`
	}
	return string(data)
}
