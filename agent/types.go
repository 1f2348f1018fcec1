package agent

import (
	"encoding/json"

	"github.com/agentforge/core/tools"
)

// ConfirmationDecision is the answer delivered on a confirmation channel in
// response to a ToolConfirmationRequestPart.
type ConfirmationDecision int

const (
	// AllowOnce approves this single call without persisting a decision.
	AllowOnce ConfirmationDecision = iota
	// AlwaysAllow approves this call and persists AlwaysAllow for the tool.
	AlwaysAllow
	// Deny rejects this call without persisting a decision.
	Deny
)

// PermissionConfirmation is delivered by the host in response to a
// ToolConfirmationRequestPart, keyed by the part's ID.
type PermissionConfirmation struct {
	Principal  string
	Permission ConfirmationDecision
}

// FrontendResult is delivered by the host in response to a
// FrontendToolRequestPart, keyed by the part's ID.
type FrontendResult struct {
	Content []tools.Content
	Error   string
}

// SessionConfig carries the optional per-turn configuration the reply loop
// consults: a session identifier for persistence, a working directory for
// filesystem-backed tools, and a schedule identifier when the turn was
// triggered by a scheduled job rather than direct user input.
type SessionConfig struct {
	ID         string
	WorkingDir string
	ScheduleID string
}

// enableExtensionArgs is the argument shape for platform__enable_extension.
type enableExtensionArgs struct {
	ExtensionName string `json:"extension_name"`
}

func parseEnableExtensionArgs(raw json.RawMessage) (enableExtensionArgs, error) {
	var args enableExtensionArgs
	if len(raw) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return args, err
	}
	return args, nil
}
