// Package tokenbudget estimates the token cost of a prospective inference
// and trims the lowest-value resources until the estimate fits inside a
// target budget.
package tokenbudget

import (
	"sync"

	"github.com/agentforge/core/agentmodel"
	"github.com/agentforge/core/tools"
	"github.com/pkoukk/tiktoken-go"
)

// Counter estimates token costs. Implementations must be monotone in bytes
// of content and must use the same tokenizer for every summand within a
// single call to CountEverything.
type Counter interface {
	CountText(text string) int
	CountMessage(m agentmodel.Message) int
	CountTool(t tools.Tool) int
	CountResource(r tools.Resource, content string) int
}

// TiktokenCounter counts tokens using the BPE tokenizer tiktoken-go
// provides, falling back to a byte-length heuristic when no encoding is
// registered for the configured model so the "monotone in bytes" invariant
// always holds, even for unknown models.
type TiktokenCounter struct {
	mu       sync.RWMutex
	encoding *tiktoken.Tiktoken
}

// NewTiktokenCounter resolves an encoding for model, falling back to
// cl100k_base and finally to a nil encoding (byte-length heuristic) if
// tiktoken-go has no data for either.
func NewTiktokenCounter(model string) *TiktokenCounter {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		enc = nil
	}
	return &TiktokenCounter{encoding: enc}
}

// CountText returns the estimated token count of text.
func (c *TiktokenCounter) CountText(text string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.encoding == nil {
		return byteHeuristic(text)
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// byteHeuristic estimates ~4 bytes per token, the same fallback ratio the
// corpus uses when no tokenizer is available.
func byteHeuristic(text string) int {
	return (len(text) + 3) / 4
}

// CountMessage estimates the token cost of one conversation message,
// including a fixed per-message overhead matching the "role + delimiters"
// overhead real chat wire formats charge.
func (c *TiktokenCounter) CountMessage(m agentmodel.Message) int {
	const perMessageOverhead = 3
	total := perMessageOverhead
	for _, part := range m.Content {
		total += c.countPart(part)
	}
	return total
}

func (c *TiktokenCounter) countPart(part agentmodel.Part) int {
	switch p := part.(type) {
	case agentmodel.TextPart:
		return c.CountText(p.Text)
	case agentmodel.ThinkingPart:
		return c.CountText(p.Text)
	case agentmodel.ImagePart:
		// Images are charged a flat estimate; providers bill these
		// out-of-band from text tokens and the exact figure varies per
		// provider, so this is intentionally a coarse constant.
		return 256
	case agentmodel.ToolRequestPart:
		if p.Call != nil {
			return c.CountText(string(p.Call.Name)) + c.CountText(string(p.Call.Arguments))
		}
		return c.CountText(p.ParseError)
	case agentmodel.ToolResponsePart:
		total := 0
		for _, block := range p.Content {
			total += c.CountText(block.Text)
		}
		return total + c.CountText(p.Error)
	case agentmodel.ToolConfirmationRequestPart:
		return c.CountText(p.Prompt) + c.CountText(string(p.Args))
	case agentmodel.ContextLengthExceededPart:
		return c.CountText(p.Reason)
	case agentmodel.FrontendToolRequestPart:
		return c.CountText(string(p.Call.Name)) + c.CountText(string(p.Call.Arguments))
	default:
		return 0
	}
}

// CountTool estimates the token cost of surfacing a tool's
// name/description/schema to the model.
func (c *TiktokenCounter) CountTool(t tools.Tool) int {
	return c.CountText(string(t.Name)) + c.CountText(t.Description) + c.CountText(string(t.RawInputSchema))
}

// CountResource estimates the token cost of surfacing a resource's
// rendered content in the status string.
func (c *TiktokenCounter) CountResource(r tools.Resource, content string) int {
	return c.CountText(r.URI) + c.CountText(content)
}

// CountEverything sums the token cost of the system prompt, every message,
// every tool, and every resource's content into a single estimate.
func CountEverything(counter Counter, systemPrompt string, messages []agentmodel.Message, toolset []tools.Tool, resources map[string]string) int {
	total := counter.CountText(systemPrompt)
	for _, m := range messages {
		total += counter.CountMessage(m)
	}
	for _, t := range toolset {
		total += counter.CountTool(t)
	}
	for uri, content := range resources {
		total += counter.CountResource(tools.Resource{URI: uri}, content)
	}
	return total
}
