package agent

import (
	"context"
	"sync"
	"time"

	"github.com/agentforge/core/agenterr"
	"github.com/agentforge/core/agentmodel"
	"github.com/agentforge/core/tokenbudget"
	"github.com/agentforge/core/tools"
)

// Run is one in-flight turn driven by a Loop. It is not restartable: once
// its Messages channel closes, the turn is over.
type Run struct {
	loop *Loop
	cfg  SessionConfig
	out  chan agentmodel.Message

	mu              sync.Mutex
	pendingConfirm  map[string]chan PermissionConfirmation
	pendingFrontend map[string]chan FrontendResult
}

// Run starts a new turn from messages and returns a handle to its output
// stream and confirmation/frontend-result delivery points. The caller must
// drain Messages() (or cancel ctx) or the driving goroutine will block
// forever trying to yield.
func (l *Loop) Run(ctx context.Context, messages []agentmodel.Message, cfg SessionConfig) *Run {
	r := &Run{
		loop:            l,
		cfg:             cfg,
		out:             make(chan agentmodel.Message),
		pendingConfirm:  make(map[string]chan PermissionConfirmation),
		pendingFrontend: make(map[string]chan FrontendResult),
	}
	go r.drive(ctx, messages)
	return r
}

// Messages returns the turn's output stream. It closes when the turn
// reaches DONE, is cancelled, or terminates with an unrecoverable error.
func (r *Run) Messages() <-chan agentmodel.Message { return r.out }

// ConfirmTool delivers a PermissionConfirmation for the ToolConfirmationRequestPart
// (regular bucket) with the given id. It reports false if no confirmation
// is pending under that id (already delivered, or never requested).
func (r *Run) ConfirmTool(id string, c PermissionConfirmation) bool {
	return r.deliverConfirmation(id, c)
}

// ConfirmEnableExtension delivers a PermissionConfirmation for a pending
// enable_extension request. Enable-extension requests reuse the same
// confirmation mechanism as the regular bucket; this method exists only to
// name the call site clearly at the host integration boundary.
func (r *Run) ConfirmEnableExtension(id string, c PermissionConfirmation) bool {
	return r.deliverConfirmation(id, c)
}

func (r *Run) deliverConfirmation(id string, c PermissionConfirmation) bool {
	r.mu.Lock()
	ch, ok := r.pendingConfirm[id]
	if ok {
		delete(r.pendingConfirm, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	ch <- c
	return true
}

// ProvideFrontendResult delivers the host's result for a pending
// FrontendToolRequestPart. It reports false if no result is pending under
// that id.
func (r *Run) ProvideFrontendResult(id string, res FrontendResult) bool {
	r.mu.Lock()
	ch, ok := r.pendingFrontend[id]
	if ok {
		delete(r.pendingFrontend, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	ch <- res
	return true
}

func (r *Run) registerConfirmation(id string) chan PermissionConfirmation {
	ch := make(chan PermissionConfirmation, 1)
	r.mu.Lock()
	r.pendingConfirm[id] = ch
	r.mu.Unlock()
	return ch
}

func (r *Run) registerFrontend(id string) chan FrontendResult {
	ch := make(chan FrontendResult, 1)
	r.mu.Lock()
	r.pendingFrontend[id] = ch
	r.mu.Unlock()
	return ch
}

// yield sends msg on the output channel, returning false if ctx was
// cancelled first.
func (r *Run) yield(ctx context.Context, msg agentmodel.Message) bool {
	select {
	case r.out <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// drive runs the PREPARE -> COMPLETE -> DISPATCH -> SUMMARIZE state machine
// until the turn reaches DONE, is cancelled, or fails terminally.
func (r *Run) drive(ctx context.Context, messages []agentmodel.Message) {
	defer close(r.out)

	history := append([]agentmodel.Message(nil), messages...)
	var pending []agentmodel.Message

	for {
		prepared, toolset, err := r.prepare(ctx, history, pending)
		if err != nil {
			r.yield(ctx, errorMessage(err))
			return
		}

		assistantMsg, err := r.loop.provider.Complete(ctx, r.loop.systemPrompt, prepared, toolset)
		if err != nil {
			if pe, ok := agenterr.AsProviderError(err); ok && pe.Kind == agenterr.ProviderErrorContextLengthExceeded {
				if !r.yield(ctx, contextLengthExceededMessage(pe.Message)) {
					return
				}
				if !r.loop.autoSummarize {
					return
				}
				summarized, sumErr := r.loop.provider.Summarize(ctx, history)
				if sumErr != nil {
					r.yield(ctx, errorMessage(sumErr))
					return
				}
				history = summarized
				pending = nil
				continue
			}
			r.yield(ctx, errorMessage(err))
			return
		}

		if !r.yield(ctx, assistantMsg) {
			return
		}

		requests := assistantMsg.ToolRequests()
		if len(requests) == 0 {
			return
		}

		userResponse, ok := r.dispatch(ctx, requests)
		if !ok {
			return
		}
		if !r.yield(ctx, userResponse) {
			return
		}

		pending = append(pending, assistantMsg, userResponse)
	}
}

func (r *Run) prepare(ctx context.Context, history, pending []agentmodel.Message) ([]agentmodel.Message, []tools.Tool, error) {
	toolset := r.loop.extensions.ListTools()

	entries, err := r.resourceEntries(ctx)
	if err != nil {
		return nil, nil, err
	}

	combined := make([]agentmodel.Message, 0, len(history)+len(pending))
	combined = append(combined, history...)
	combined = append(combined, pending...)

	baseline := tokenbudget.CountEverything(r.loop.counter, r.loop.systemPrompt, combined, toolset, nil)
	target := tokenbudget.Target(r.loop.contextLimit, r.loop.estimateFactor)
	survivors, _ := tokenbudget.Trim(baseline, entries, target)

	assistantStatus, userStatus := tokenbudget.StatusPair(time.Now(), survivors)

	prepared := make([]agentmodel.Message, 0, len(combined)+2)
	prepared = append(prepared, combined...)
	prepared = append(prepared, assistantStatus, userStatus)
	return prepared, toolset, nil
}

// resourceEntries gathers every active resource across every registered
// extension, fetching its current content so the token budgeter can cost
// and, if necessary, trim it. A resource whose content cannot be read is
// skipped rather than failing the whole turn.
func (r *Run) resourceEntries(ctx context.Context) ([]tokenbudget.ResourceEntry, error) {
	var out []tokenbudget.ResourceEntry
	byExtension, err := r.loop.extensions.ResourcesByExtension(ctx, "")
	if err != nil {
		return nil, err
	}
	for ext, resources := range byExtension {
		for _, res := range resources {
			content, err := r.loop.extensions.ReadResource(ctx, res.URI, ext)
			if err != nil {
				continue
			}
			var text string
			if len(content) > 0 {
				text = content[0].Text
			}
			out = append(out, tokenbudget.ResourceEntry{
				Extension: ext,
				Resource:  res,
				Content:   text,
				Tokens:    r.loop.counter.CountResource(res, text),
			})
		}
	}
	return out, nil
}

// errorMessage wraps a terminal error as the final assistant-role message
// of a turn: a single text part describing the failure kind and a terse
// message, per the stated policy that user-visible failures render only
// the kind and message, never a stack trace.
func errorMessage(err error) agentmodel.Message {
	return agentmodel.Text(agentmodel.RoleAssistant, time.Now(), err.Error())
}

// contextLengthExceededMessage builds the assistant-role message emitted
// when the provider reports its context window was exceeded even after
// trimming.
func contextLengthExceededMessage(reason string) agentmodel.Message {
	return agentmodel.NewAssistantMessage(time.Now(), agentmodel.ContextLengthExceededPart{Reason: reason})
}
