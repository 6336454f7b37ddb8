package agentloop

import (
	"fmt"
	"strings"
)

// ParseError reports a malformed reasoning step. It is recoverable: the loop
// consumes the iteration and continues.
type ParseError struct {
	Reason string
	Text   string
}

func (e *ParseError) Error() string {
	return "parse error: " + e.Reason
}

// ToolNotFoundError is returned when an action names no registered tool.
type ToolNotFoundError struct {
	Name      string
	Available []string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool '%s' not found. Available tools: %s", e.Name, strings.Join(e.Available, ", "))
}

// ToolValidationError is returned when a tool rejects its input before
// execution.
type ToolValidationError struct {
	Name  string
	Cause error
}

func (e *ToolValidationError) Error() string {
	return fmt.Sprintf("invalid input for tool '%s': %v", e.Name, e.Cause)
}

func (e *ToolValidationError) Unwrap() error {
	return e.Cause
}
