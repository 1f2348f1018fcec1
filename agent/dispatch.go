package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentforge/core/agentmodel"
	"github.com/agentforge/core/permission"
	"github.com/agentforge/core/tools"
	"golang.org/x/sync/errgroup"
)

// dispatch resolves every requested tool call in one assistant message to a
// ToolResponsePart and returns them as a single user message. It implements
// the DISPATCH step by partitioning requests into four buckets: frontend
// calls delegated to the host, enable_extension calls that always require
// confirmation, every other platform tool (executed unconditionally, even
// in chat mode), and the remaining regular calls, which in chat mode all
// resolve to the chat-mode refusal and otherwise are classified through the
// permission engine with approved/read-only calls launched concurrently. It reports false if the turn's context was cancelled before
// every call resolved.
func (r *Run) dispatch(ctx context.Context, requests []agentmodel.ToolRequestPart) (agentmodel.Message, bool) {
	toolset := r.loop.extensions.ListTools()
	results := make([]agentmodel.Part, len(requests))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)

	for i, req := range requests {
		i, req := i, req

		if req.Call == nil {
			results[i] = agentmodel.ToolResponsePart{ID: req.ID, Error: req.ParseError}
			continue
		}

		switch {
		case r.isFrontendTool(req.Call.Name):
			part, ok := r.dispatchFrontend(ctx, req)
			if !ok {
				return agentmodel.Message{}, false
			}
			results[i] = part

		case req.Call.Name.IsPlatform() && req.Call.Name.Local() == "enable_extension":
			part, ok := r.dispatchEnableExtension(ctx, req)
			if !ok {
				return agentmodel.Message{}, false
			}
			results[i] = part

		case req.Call.Name.IsPlatform():
			// Every other platform tool (search_available_extensions,
			// list_resources, read_resource, ...) executes first and
			// unconditionally, even in chat mode: these calls have no side
			// effects worth gating behind a confirmation.
			call := *req.Call
			content, err := r.loop.extensions.DispatchToolCall(ctx, call)
			results[i] = toolResponseFromResult(req.ID, content, err)

		default:
			if r.loop.permissions.Mode() == permission.ModeChat {
				results[i] = agentmodel.ToolResponsePart{ID: req.ID, Error: chatModeCannedMessage}
				continue
			}
			tool, found := toolByName(toolset, req.Call.Name)
			if !found {
				// Not in the catalog: let the extension manager's own
				// resolution fail and surface its ToolNotFound rather than
				// inventing a permission decision for a tool with no
				// annotations to classify.
				call := *req.Call
				content, err := r.loop.extensions.DispatchToolCall(ctx, call)
				results[i] = toolResponseFromResult(req.ID, content, err)
				continue
			}

			level, clsErr := r.loop.permissions.Classify(ctx, tool, req.Call.Arguments)
			if clsErr != nil {
				r.loop.logger.Warn(ctx, "permission classification failed, defaulting to needs-approval", "tool", tool.Name, "error", clsErr)
			}

			switch level {
			case permission.Denied:
				msg := deniedCannedMessage
				if r.loop.permissions.Mode() == permission.ModeChat {
					msg = chatModeCannedMessage
				}
				results[i] = agentmodel.ToolResponsePart{ID: req.ID, Error: msg}

			case permission.Approved:
				call := *req.Call
				id := req.ID
				g.Go(func() error {
					content, err := r.loop.extensions.DispatchToolCall(gctx, call)
					part := toolResponseFromResult(id, content, err)
					mu.Lock()
					results[i] = part
					mu.Unlock()
					return nil
				})

			default: // NeedsApproval
				part, ok := r.dispatchNeedsApproval(ctx, req, tool)
				if !ok {
					return agentmodel.Message{}, false
				}
				mu.Lock()
				results[i] = part
				mu.Unlock()
			}
		}
	}

	_ = g.Wait() // g.Go bodies never return a non-nil error; dispatch failures resolve to error ToolResponseParts instead

	return agentmodel.NewUserMessage(time.Now(), results...), true
}

func (r *Run) isFrontendTool(name tools.Name) bool {
	_, ok := r.loop.frontendTools[name]
	return ok
}

// dispatchFrontend yields a FrontendToolRequestPart and blocks for the
// host's ProvideFrontendResult call.
func (r *Run) dispatchFrontend(ctx context.Context, req agentmodel.ToolRequestPart) (agentmodel.Part, bool) {
	ch := r.registerFrontend(req.ID)
	msg := agentmodel.NewAssistantMessage(time.Now(), agentmodel.FrontendToolRequestPart{ID: req.ID, Call: *req.Call})
	if !r.yield(ctx, msg) {
		return nil, false
	}
	select {
	case res := <-ch:
		if res.Error != "" {
			return agentmodel.ToolResponsePart{ID: req.ID, Error: res.Error}, true
		}
		return agentmodel.ToolResponsePart{ID: req.ID, Content: res.Content}, true
	case <-ctx.Done():
		return nil, false
	}
}

// dispatchNeedsApproval yields a ToolConfirmationRequestPart and blocks for
// the host's ConfirmTool call, recording AlwaysAllow before dispatch so the
// next turn's Classify call short-circuits without re-asking.
func (r *Run) dispatchNeedsApproval(ctx context.Context, req agentmodel.ToolRequestPart, tool tools.Tool) (agentmodel.Part, bool) {
	ch := r.registerConfirmation(req.ID)
	msg := agentmodel.NewAssistantMessage(time.Now(), agentmodel.ToolConfirmationRequestPart{
		ID:     req.ID,
		Name:   tool.Name,
		Args:   req.Call.Arguments,
		Prompt: confirmationPrompt(tool),
	})
	if !r.yield(ctx, msg) {
		return nil, false
	}
	select {
	case c := <-ch:
		switch c.Permission {
		case Deny:
			return agentmodel.ToolResponsePart{ID: req.ID, Error: deniedCannedMessage}, true
		case AlwaysAllow:
			if err := r.loop.permissions.RecordDecision(ctx, tool.Name, permission.DecisionAlwaysAllow); err != nil {
				r.loop.logger.Warn(ctx, "failed to persist always-allow decision", "tool", tool.Name, "error", err)
			}
		}
		content, err := r.loop.extensions.DispatchToolCall(ctx, *req.Call)
		return toolResponseFromResult(req.ID, content, err), true
	case <-ctx.Done():
		return nil, false
	}
}

// dispatchEnableExtension yields a ToolConfirmationRequestPart for an
// enable_extension request and, once approved, adds the named catalog
// extension through the extension manager. Unlike the regular bucket it never calls
// RecordDecision: the tool name is the same ("platform__enable_extension")
// for every distinct extension requested, so persisting AlwaysAllow under
// that name would blanket-approve enabling any future extension rather than
// the one the user actually confirmed.
func (r *Run) dispatchEnableExtension(ctx context.Context, req agentmodel.ToolRequestPart) (agentmodel.Part, bool) {
	ch := r.registerConfirmation(req.ID)

	prompt := "enable an extension"
	if args, err := parseEnableExtensionArgs(req.Call.Arguments); err == nil && args.ExtensionName != "" {
		prompt = fmt.Sprintf("enable extension %q", args.ExtensionName)
	}

	msg := agentmodel.NewAssistantMessage(time.Now(), agentmodel.ToolConfirmationRequestPart{
		ID:     req.ID,
		Name:   req.Call.Name,
		Args:   req.Call.Arguments,
		Prompt: prompt,
	})
	if !r.yield(ctx, msg) {
		return nil, false
	}
	select {
	case c := <-ch:
		if c.Permission == Deny {
			return agentmodel.ToolResponsePart{ID: req.ID, Error: deniedCannedMessage}, true
		}
		args, err := parseEnableExtensionArgs(req.Call.Arguments)
		if err != nil {
			return agentmodel.ToolResponsePart{ID: req.ID, Error: fmt.Sprintf("enable_extension: %v", err)}, true
		}
		for _, entry := range r.loop.extensions.Catalog() {
			if entry.Name != args.ExtensionName {
				continue
			}
			if err := r.loop.extensions.AddExtension(ctx, entry.Config, r.loop.allowlist); err != nil {
				return agentmodel.ToolResponsePart{ID: req.ID, Error: err.Error()}, true
			}
			return agentmodel.ToolResponsePart{ID: req.ID, Content: []tools.Content{tools.TextContent(fmt.Sprintf("enabled extension %q", args.ExtensionName))}}, true
		}
		return agentmodel.ToolResponsePart{ID: req.ID, Error: fmt.Sprintf("extension %q is not in the catalog", args.ExtensionName)}, true
	case <-ctx.Done():
		return nil, false
	}
}

func confirmationPrompt(t tools.Tool) string {
	if t.Annotations.Title != "" {
		return fmt.Sprintf("run %s?", t.Annotations.Title)
	}
	return fmt.Sprintf("run %s?", t.Name)
}

func toolByName(toolset []tools.Tool, name tools.Name) (tools.Tool, bool) {
	for _, t := range toolset {
		if t.Name == name {
			return t, true
		}
	}
	return tools.Tool{}, false
}

func toolResponseFromResult(id string, content []tools.Content, err error) agentmodel.Part {
	if err != nil {
		return agentmodel.ToolResponsePart{ID: id, Error: err.Error()}
	}
	return agentmodel.ToolResponsePart{ID: id, Content: content}
}
