package team

import (
	"context"
	"fmt"
)

// Tool is a capability a team can invoke.
type Tool interface {
	// Name is unique within a team.
	Name() string
	Description() string
	// Invoke runs the tool with free-form input.
	Invoke(ctx context.Context, input string) (string, error)
}

// FuncTool adapts a function to the Tool interface.
type FuncTool struct {
	name        string
	description string
	fn          func(ctx context.Context, input string) (string, error)
}

// NewTool creates a tool backed by fn.
func NewTool(name, description string, fn func(ctx context.Context, input string) (string, error)) *FuncTool {
	return &FuncTool{name: name, description: description, fn: fn}
}

// Name implements Tool.
func (t *FuncTool) Name() string { return t.name }

// Description implements Tool.
func (t *FuncTool) Description() string { return t.description }

// Invoke implements Tool.
func (t *FuncTool) Invoke(ctx context.Context, input string) (string, error) {
	return t.fn(ctx, input)
}

// ToolExecutionError is a recoverable tool failure. Teams capture it into
// their result turn instead of returning it.
type ToolExecutionError struct {
	Tool  string
	Input string
	Err   error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}

// invokeSafely runs a tool, turning panics and errors into a ToolExecutionError.
func invokeSafely(ctx context.Context, tool Tool, input string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ToolExecutionError{Tool: tool.Name(), Input: input, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	out, err = tool.Invoke(ctx, input)
	if err != nil {
		return out, &ToolExecutionError{Tool: tool.Name(), Input: input, Err: err}
	}
	return out, nil
}
