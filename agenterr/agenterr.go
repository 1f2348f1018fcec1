// Package agenterr defines the error taxonomy shared by the MCP session,
// extension manager, token budgeter, permission engine, and reply loop.
// Tool-level failures are data: they are wrapped and returned to the model
// as a ToolResponse rather than aborting the turn. Session- and
// provider-level failures are terminal and bubble out of the reply loop.
package agenterr

import (
	"errors"
	"fmt"
)

// SessionClosed indicates the MCP session has latched closed (transport
// error, shutdown, or write failure). It is terminal for that session.
type SessionClosed struct {
	Extension string
	Cause     error
}

func (e *SessionClosed) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("mcp session %q closed", e.Extension)
	}
	return fmt.Sprintf("mcp session %q closed: %v", e.Extension, e.Cause)
}

func (e *SessionClosed) Unwrap() error { return e.Cause }

// Transport indicates I/O against the MCP transport failed.
type Transport struct {
	Op    string
	Cause error
}

func (e *Transport) Error() string {
	return fmt.Sprintf("mcp transport %s: %v", e.Op, e.Cause)
}

func (e *Transport) Unwrap() error { return e.Cause }

// RPCError is a JSON-RPC error object returned by an MCP server.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ToolNotFound indicates a tool name could not be resolved to a registered
// extension and local tool.
type ToolNotFound struct {
	Name string
}

func (e *ToolNotFound) Error() string { return fmt.Sprintf("tool not found: %s", e.Name) }

// InvalidToolName indicates a tool name does not follow the
// "extension__local" grammar (missing separator, empty parts, or a local
// name that itself contains the separator).
type InvalidToolName struct {
	Name string
}

func (e *InvalidToolName) Error() string { return fmt.Sprintf("invalid tool name: %q", e.Name) }

// InvalidParameters indicates a tool-level argument validation failure.
// It is surfaced to the model as a ToolResponse so the model can self-correct.
type InvalidParameters struct {
	Message string
}

func (e *InvalidParameters) Error() string { return e.Message }

// ExecutionError indicates a tool ran but failed.
type ExecutionError struct {
	Message string
	Cause   error
}

func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

// ContextLimit indicates the turn cannot be prepared within the token
// budget even after summarization. It is terminal for the turn.
type ContextLimit struct {
	Target  int
	Current int
}

func (e *ContextLimit) Error() string {
	return fmt.Sprintf("context limit exceeded: %d tokens over target %d", e.Current, e.Target)
}

// UnauthorizedCommand indicates a stdio extension's command was rejected by
// the command allow-list at registration time.
type UnauthorizedCommand struct {
	Command string
}

func (e *UnauthorizedCommand) Error() string {
	return fmt.Sprintf("command not in mcp allow-list: %q", e.Command)
}

// InvalidEnvVar indicates an extension's env map carried a reserved key.
type InvalidEnvVar struct {
	Name string
}

func (e *InvalidEnvVar) Error() string { return fmt.Sprintf("reserved environment variable: %s", e.Name) }

// ProviderErrorKind classifies a ProviderError for retry/back-off policy.
type ProviderErrorKind string

const (
	// ProviderErrorTransient indicates a retriable server-side failure (HTTP 5xx).
	ProviderErrorTransient ProviderErrorKind = "transient"
	// ProviderErrorRateLimited indicates a retriable failure requiring back-off (HTTP 429).
	ProviderErrorRateLimited ProviderErrorKind = "rate_limited"
	// ProviderErrorPermanent indicates a non-retriable failure.
	ProviderErrorPermanent ProviderErrorKind = "permanent"
	// ProviderErrorContextLengthExceeded indicates the request exceeds the
	// model's context window and must be summarized or truncated before retry.
	ProviderErrorContextLengthExceeded ProviderErrorKind = "context_length_exceeded"
)

// ProviderError wraps a model provider failure with a retry classification.
type ProviderError struct {
	Kind    ProviderErrorKind
	Message string
	Cause   error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("provider error (%s): %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("provider error (%s): %s", e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// Retryable reports whether the reply loop's provider adapter should retry
// the call with exponential back-off.
func (e *ProviderError) Retryable() bool {
	return e.Kind == ProviderErrorTransient || e.Kind == ProviderErrorRateLimited
}

// AsProviderError returns the first ProviderError in err's chain, if any.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// AsSessionClosed returns the first SessionClosed in err's chain, if any.
func AsSessionClosed(err error) (*SessionClosed, bool) {
	var sc *SessionClosed
	if errors.As(err, &sc) {
		return sc, true
	}
	return nil, false
}
