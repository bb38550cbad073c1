package errors

import (
	"errors"
	"fmt"
)

// Code identifies a class of tool-engine failure.
type Code string

const (
	CodeConnectionFailed    Code = "CONNECTION_FAILED"
	CodeNotConnected        Code = "NOT_CONNECTED"
	CodeToolNotFound        Code = "TOOL_NOT_FOUND"
	CodeInvalidParameters   Code = "INVALID_PARAMETERS"
	CodeExecutionFailed     Code = "EXECUTION_FAILED"
	CodeArgumentParseFailed Code = "ARGUMENT_PARSE_FAILED"
	CodeLLMProcessingFailed Code = "LLM_PROCESSING_FAILED"
)

// ToolError is the error descriptor carried by failed tool results and
// returned from client and orchestrator operations.
type ToolError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Tool    string `json:"tool_name,omitempty"`
	Err     error  `json:"-"`
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Tool != "" {
		msg = fmt.Sprintf("%s (tool %s)", msg, e.Tool)
	}
	if e.Details != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Details)
	}
	return msg
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Is matches any ToolError with the same code, so sentinels work with errors.Is.
func (e *ToolError) Is(target error) bool {
	t, ok := target.(*ToolError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrConnectionFailed    = &ToolError{Code: CodeConnectionFailed, Message: "connection failed"}
	ErrNotConnected        = &ToolError{Code: CodeNotConnected, Message: "tool client is not connected"}
	ErrToolNotFound        = &ToolError{Code: CodeToolNotFound, Message: "tool not found"}
	ErrInvalidParameters   = &ToolError{Code: CodeInvalidParameters, Message: "invalid parameters"}
	ErrExecutionFailed     = &ToolError{Code: CodeExecutionFailed, Message: "tool execution failed"}
	ErrArgumentParseFailed = &ToolError{Code: CodeArgumentParseFailed, Message: "failed to parse tool arguments"}
	ErrLLMProcessingFailed = &ToolError{Code: CodeLLMProcessingFailed, Message: "LLM processing failed"}
)

// NewToolError builds a ToolError wrapping cause. Details defaults to the
// cause's message.
func NewToolError(code Code, tool, message string, cause error) *ToolError {
	e := &ToolError{Code: code, Message: message, Tool: tool, Err: cause}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// NotConnected reports an operation attempted outside the connected state.
func NotConnected(state string) *ToolError {
	return &ToolError{
		Code:    CodeNotConnected,
		Message: "tool client is not connected",
		Details: "current state: " + state,
	}
}

// ToolNotFound reports a lookup for an unknown tool.
func ToolNotFound(tool string) *ToolError {
	return &ToolError{
		Code:    CodeToolNotFound,
		Message: fmt.Sprintf("tool %q not found", tool),
		Tool:    tool,
	}
}

// MissingParameter reports a required parameter absent from a call.
func MissingParameter(tool, param string) *ToolError {
	return &ToolError{
		Code:    CodeInvalidParameters,
		Message: fmt.Sprintf("missing required parameter: %s", param),
		Tool:    tool,
	}
}

// CodeOf returns the taxonomy code of err, or "" when err is not a ToolError.
func CodeOf(err error) Code {
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr.Code
	}
	return ""
}
