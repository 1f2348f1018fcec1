package agent

import (
	"context"

	"github.com/agentforge/core/agentmodel"
	"github.com/agentforge/core/tools"
)

// Provider is a model backend capable of producing the next assistant
// message given a system prompt, the prepared conversation, and the
// available tool catalog. Implementations retry transient/rate-limited
// failures internally (exponential back-off, capped at 3 attempts / 30s)
// and return *agenterr.ProviderError for failures that survive retry, so
// the loop only ever has to decide what to do with a non-retriable error
// or a context-length failure.
type Provider interface {
	Complete(ctx context.Context, systemPrompt string, messages []agentmodel.Message, toolset []tools.Tool) (agentmodel.Message, error)

	// Summarize replaces messages with a shorter history that preserves the
	// conversation's intent, used to recover from ContextLengthExceeded when
	// the loop is configured to auto-summarize rather than surface the
	// decision to the caller.
	Summarize(ctx context.Context, messages []agentmodel.Message) ([]agentmodel.Message, error)
}
