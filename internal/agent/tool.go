package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
)

// Tool is a function the model may call during a step.
type Tool interface {
	// Name is the function name announced to the model.
	Name() string

	// Description tells the model what the tool does.
	Description() string

	// Parameters is the JSON schema of the arguments object.
	Parameters() json.RawMessage

	// Call runs the tool with the JSON arguments chosen by the model.
	Call(ctx context.Context, arguments json.RawMessage) (string, error)
}

// Registry holds the tools available to an agent.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry holding tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tools[t.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// Names returns the registered tool names in sorted order.
// A nil registry has no tools.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Call runs the named tool.
func (r *Registry) Call(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	if r == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return t.Call(ctx, arguments)
}

// definitions returns the tool schemas in name order.
func (r *Registry) definitions() []toolDefinition {
	names := r.Names()
	if len(names) == 0 {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]toolDefinition, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		defs = append(defs, toolDefinition{
			Type: "function",
			Function: functionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}
