package tokenbudget

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/agentforge/core/agentmodel"
	"github.com/agentforge/core/tools"
)

// DefaultEstimateFactor is the fraction of a provider's advertised context
// window this package targets by default, leaving headroom for the
// provider's own response tokens and for estimation error in Counter.
const DefaultEstimateFactor = 0.8

// priorityEpsilon is the tolerance within which two resources are treated as
// tied on priority, in which case the more recent one sorts first.
const priorityEpsilon = 1e-3

// Target returns the token budget a context window of contextLimit tokens
// affords at estimateFactor. A non-positive estimateFactor falls back to
// DefaultEstimateFactor.
func Target(contextLimit int, estimateFactor float64) int {
	if estimateFactor <= 0 {
		estimateFactor = DefaultEstimateFactor
	}
	return int(float64(contextLimit) * estimateFactor)
}

// ResourceEntry is one candidate for trimming: a resource, the extension
// that owns it, and its estimated token cost as currently rendered.
type ResourceEntry struct {
	Extension string
	Resource  tools.Resource
	Content   string
	Tokens    int
}

// sortForTrimming orders entries by (priority DESC, timestamp DESC), so the
// lowest-priority, oldest entries sort last and are the first candidates
// popped off the tail.
func sortForTrimming(entries []ResourceEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		pi, pj := entries[i].Resource.PriorityOrZero(), entries[j].Resource.PriorityOrZero()
		if math.Abs(pi-pj) > priorityEpsilon {
			return pi > pj
		}
		return entries[i].Resource.Timestamp.After(entries[j].Resource.Timestamp)
	})
}

// Trim sorts entries by trimming order and pops from the tail until the
// running total (baseline plus the remaining entries' tokens) is at most
// target, or no entries remain. It returns the surviving entries, in
// trimming order, and the entries that were dropped.
func Trim(baseline int, entries []ResourceEntry, target int) (survivors, dropped []ResourceEntry) {
	ordered := append([]ResourceEntry(nil), entries...)
	sortForTrimming(ordered)

	total := baseline
	for _, e := range ordered {
		total += e.Tokens
	}

	end := len(ordered)
	for total > target && end > 0 {
		end--
		total -= ordered[end].Tokens
		dropped = append(dropped, ordered[end])
	}
	return ordered[:end], dropped
}

// StatusMethod and StatusID tag the synthetic tool-request/tool-response
// pair Render attaches to the end of a prepared conversation. A caller that
// reuses returned history across turns can identify and strip this exact
// pair by checking both fields, resolving the ambiguity spec left open
// between tagging the pair and never persisting it: this package tags it,
// so callers that do want to persist history (e.g. for audit logs) keep an
// accurate record. The reply loop itself appends a fresh pair to the
// conversation it prepares for each provider call and never adds it to the
// messages it carries forward, so it has no pair to strip.
const (
	StatusID     = "000"
	StatusMethod = "status"
)

// RenderStatus renders the surviving resources into the status text
// surfaced to the model, one line per resource in trimming order.
func RenderStatus(survivors []ResourceEntry) string {
	var b strings.Builder
	if len(survivors) == 0 {
		return "no resources are currently attached"
	}
	for _, e := range survivors {
		name := e.Resource.Name
		if name == "" {
			name = e.Resource.URI
		}
		fmt.Fprintf(&b, "%s/%s (priority %.2f): %s\n", e.Extension, name, e.Resource.PriorityOrZero(), e.Content)
	}
	return b.String()
}

// StatusPair builds the synthetic assistant tool-request + user
// tool-response pair carrying the rendered resource status, tagged with
// StatusID/StatusMethod so it can be identified and stripped later.
func StatusPair(now time.Time, survivors []ResourceEntry) (assistantMsg, userMsg agentmodel.Message) {
	statusText := RenderStatus(survivors)
	call := &tools.Call{Name: tools.Name(StatusMethod)}
	assistantMsg = agentmodel.NewAssistantMessage(now, agentmodel.ToolRequestPart{
		ID:   StatusID,
		Call: call,
	})
	userMsg = agentmodel.NewUserMessage(now, agentmodel.ToolResponsePart{
		ID:      StatusID,
		Content: []tools.Content{tools.TextContent(statusText)},
	})
	return assistantMsg, userMsg
}

// IsStatusPair reports whether a and b are exactly the synthetic status pair
// StatusPair produces: an assistant ToolRequestPart and a user
// ToolResponsePart both carrying StatusID. Callers that persist prepared
// history across turns should strip a trailing pair matching this check
// rather than blindly dropping the last two messages, per the documented
// resolution in StatusID's doc comment.
func IsStatusPair(a, b agentmodel.Message) bool {
	if a.Role != agentmodel.RoleAssistant || b.Role != agentmodel.RoleUser {
		return false
	}
	if len(a.Content) != 1 || len(b.Content) != 1 {
		return false
	}
	req, ok := a.Content[0].(agentmodel.ToolRequestPart)
	if !ok || req.ID != StatusID || req.Call == nil || string(req.Call.Name) != StatusMethod {
		return false
	}
	resp, ok := b.Content[0].(agentmodel.ToolResponsePart)
	return ok && resp.ID == StatusID
}

// StripTrailingStatusPair removes a trailing synthetic status pair from
// messages, if present, returning the slice unchanged otherwise.
func StripTrailingStatusPair(messages []agentmodel.Message) []agentmodel.Message {
	n := len(messages)
	if n < 2 {
		return messages
	}
	if IsStatusPair(messages[n-2], messages[n-1]) {
		return messages[:n-2]
	}
	return messages
}
