// Package tools holds the functions the language model may call during a call.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/lexiqai/voice-agent/internal/observability"
)

var (
	// ErrLookup marks a tool whose external lookup failed
	ErrLookup = errors.New("lookup error")
	// ErrUnknownTool is returned for a call to a name nobody registered
	ErrUnknownTool = errors.New("unknown tool")
)

// Tool is a capability the model can invoke by name
type Tool interface {
	Name() string
	Description() string
	// Parameters returns the JSON schema of the arguments object
	Parameters() map[string]any
	Invoke(ctx context.Context, args json.RawMessage) (string, error)
}

// Result is the outcome of one tool call as the model will see it
type Result struct {
	Output string
	Err    error
}

// Content renders the result as the tool message body
func (r Result) Content() string {
	if r.Err != nil {
		return "error: " + r.Err.Error()
	}
	return r.Output
}

// Registry is an immutable set of tools, safe for concurrent use
type Registry struct {
	tools map[string]Tool
}

// NewRegistry builds a registry. Duplicate names are a programming error.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if _, dup := r.tools[t.Name()]; dup {
			return nil, fmt.Errorf("duplicate tool %q", t.Name())
		}
		r.tools[t.Name()] = t
	}
	return r, nil
}

// Tools returns the registered tools sorted by name
func (r *Registry) Tools() []Tool {
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Invoke runs the named tool. Failures come back inside the Result, never as a panic.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (res Result) {
	t, ok := r.tools[name]
	if !ok {
		observability.RecordToolCall(name, false)
		return Result{Err: fmt.Errorf("%w: %s", ErrUnknownTool, name)}
	}

	defer func() {
		if p := recover(); p != nil {
			res = Result{Err: fmt.Errorf("tool %s panicked: %v", name, p)}
		}
		observability.RecordToolCall(name, res.Err == nil)
	}()

	out, err := t.Invoke(ctx, args)
	return Result{Output: out, Err: err}
}
