package mcp

import "fmt"

// ErrorKind classifies a failed tool call.
type ErrorKind string

const (
	// ErrKindTransport covers failures reaching the tool server at all:
	// subprocess dead, pipe closed, malformed frames.
	ErrKindTransport ErrorKind = "transport"
	// ErrKindRemote covers errors the tool server itself reported.
	ErrKindRemote ErrorKind = "remote"
	// ErrKindTimeout covers calls that exceeded the per-call deadline.
	ErrKindTimeout ErrorKind = "timeout"
)

// ToolError is the only error type CallTool returns. The agent inspects Kind
// to decide how to degrade; it never sees raw transport errors.
type ToolError struct {
	Kind ErrorKind
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s: %s: %v", e.Tool, e.Kind, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

func transportErr(tool string, err error) *ToolError {
	return &ToolError{Kind: ErrKindTransport, Tool: tool, Err: err}
}

func remoteErr(tool string, err error) *ToolError {
	return &ToolError{Kind: ErrKindRemote, Tool: tool, Err: err}
}

func timeoutErr(tool string, err error) *ToolError {
	return &ToolError{Kind: ErrKindTimeout, Tool: tool, Err: err}
}
