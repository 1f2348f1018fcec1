// Package permission classifies model-issued tool calls into
// Approved/Denied/NeedsApproval decisions and persists the user's
// AlwaysAllow/NeverAllow preferences across turns.
package permission

import (
	"context"

	"github.com/agentforge/core/tools"
)

// Level is the outcome of classifying a tool call.
type Level int

const (
	// Approved means the call may run immediately with no confirmation.
	Approved Level = iota
	// Denied means the call must not run; the caller answers it with a
	// refusal text of its own.
	Denied
	// NeedsApproval means the caller must surface a ToolConfirmationRequest
	// and await a PermissionConfirmation before the call may run.
	NeedsApproval
)

func (l Level) String() string {
	switch l {
	case Approved:
		return "approved"
	case Denied:
		return "denied"
	case NeedsApproval:
		return "needs_approval"
	default:
		return "unknown"
	}
}

// Mode selects the engine's default posture for calls that are not already
// resolved by a stored decision or a read-only annotation.
type Mode string

const (
	// ModeAuto approves every call outright.
	ModeAuto Mode = "auto"
	// ModeChat denies every call with a canned explanation, instructing the
	// model to narrate a plan instead of acting.
	ModeChat Mode = "chat"
	// ModeApprove requires confirmation for every call not already resolved.
	ModeApprove Mode = "approve"
	// ModeSmartApprove consults a Classifier to decide Approved vs
	// NeedsApproval per call.
	ModeSmartApprove Mode = "smart_approve"
)

// Decision is a stored user preference for a specific tool.
type Decision int

const (
	// DecisionAlwaysAllow persists as an automatic Approved.
	DecisionAlwaysAllow Decision = iota
	// DecisionNeverAllow persists as an automatic Denied.
	DecisionNeverAllow
)

// ChatModeExplanation is the canned text surfaced for every tool call
// denied because the effective mode is chat.
const ChatModeExplanation = "this tool call was skipped because the session is in chat mode; narrate your plan instead of invoking tools"

// Classifier is consulted in ModeSmartApprove to decide whether a call that
// survived the earlier checks should run immediately or need confirmation.
// Implementations typically wrap the same Provider capability the reply
// loop uses, asking a fast model whether the call is safe given its
// description and arguments.
type Classifier interface {
	Classify(ctx context.Context, t tools.Tool, args []byte) (approved bool, err error)
}

// Store persists per-tool AlwaysAllow/NeverAllow decisions. AllowOnce and
// Deny never reach the store.
type Store interface {
	Get(ctx context.Context, name tools.Name) (Decision, bool, error)
	Set(ctx context.Context, name tools.Name, d Decision) error
}

// Engine classifies tool calls per the decision table: platform tools
// (other than enable_extension) are always approved; a stored decision
// short-circuits everything else; read-only tools and auto mode approve
// unconditionally; chat mode denies; approve mode asks; smart_approve
// consults a Classifier.
type Engine struct {
	mode       Mode
	store      Store
	classifier Classifier
}

// New constructs an Engine. classifier may be nil unless mode is
// ModeSmartApprove.
func New(mode Mode, store Store, classifier Classifier) *Engine {
	return &Engine{mode: mode, store: store, classifier: classifier}
}

// Mode returns the engine's configured mode.
func (e *Engine) Mode() Mode { return e.mode }

// Classify decides the permission level for a single tool call.
func (e *Engine) Classify(ctx context.Context, t tools.Tool, args []byte) (Level, error) {
	if t.Name.IsPlatform() && t.Name.Local() != "enable_extension" {
		return Approved, nil
	}

	if e.store != nil {
		if d, ok, err := e.store.Get(ctx, t.Name); err != nil {
			return NeedsApproval, err
		} else if ok {
			switch d {
			case DecisionAlwaysAllow:
				return Approved, nil
			case DecisionNeverAllow:
				return Denied, nil
			}
		}
	}

	if t.Annotations.ReadOnly || e.mode == ModeAuto {
		return Approved, nil
	}

	switch e.mode {
	case ModeChat:
		return Denied, nil
	case ModeApprove:
		return NeedsApproval, nil
	case ModeSmartApprove:
		if e.classifier == nil {
			return NeedsApproval, nil
		}
		approved, err := e.classifier.Classify(ctx, t, args)
		if err != nil {
			// Resolves the spec's open question on the smart_approve
			// failure-mode distinction: a classifier error always resolves
			// to NeedsApproval (never Denied, which would silently drop a
			// tool call the user never saw), and the error is returned
			// alongside the level so the caller can log "classifier
			// unavailable" distinctly from an ordinary "classifier says
			// ask" (nil error, NeedsApproval level).
			return NeedsApproval, err
		}
		if approved {
			return Approved, nil
		}
		return NeedsApproval, nil
	default:
		return NeedsApproval, nil
	}
}

// RecordDecision persists d for name when d is AlwaysAllow or NeverAllow.
// AllowOnce/Deny confirmations must not call this; callers only invoke it
// when the confirmation carried AlwaysAllow, per spec.
func (e *Engine) RecordDecision(ctx context.Context, name tools.Name, d Decision) error {
	if e.store == nil {
		return nil
	}
	return e.store.Set(ctx, name, d)
}
