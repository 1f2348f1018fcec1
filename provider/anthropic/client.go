// Package anthropic adapts the Anthropic Claude Messages API to
// agent.Provider, translating agentmodel's role/part union to and from
// github.com/anthropics/anthropic-sdk-go request/response shapes. It is
// grounded on the teacher's own Anthropic client
// (features/model/anthropic/client.go) but collapses its generic
// model.Client surface down to the two methods the reply loop needs.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentforge/core/agenterr"
	"github.com/agentforge/core/agentmodel"
	"github.com/agentforge/core/tools"
)

// MessagesClient captures the subset of the SDK client this adapter drives,
// letting tests substitute a fake in place of *sdk.MessageService.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Client implements agent.Provider against the Anthropic Messages API.
type Client struct {
	msg        MessagesClient
	model      string
	maxTokens  int
	maxRetries int
	backoffCap time.Duration
}

// Option configures a Client at construction.
type Option func(*Client)

// WithMaxRetries overrides the default retry budget (2 retries after the
// first try, so 3 attempts in all) for transient and rate-limited failures.
func WithMaxRetries(n int) Option { return func(c *Client) { c.maxRetries = n } }

// WithBackoffCap overrides the default 30s exponential back-off ceiling.
func WithBackoffCap(d time.Duration) Option { return func(c *Client) { c.backoffCap = d } }

// New builds a Client from an already-configured Messages client, the
// model identifier to request completions against, and a default
// max_tokens. model and maxTokens are required by the Messages API on
// every request.
func New(msg MessagesClient, model string, maxTokens int, opts ...Option) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if model == "" {
		return nil, errors.New("anthropic: model identifier is required")
	}
	if maxTokens <= 0 {
		return nil, errors.New("anthropic: max_tokens must be positive")
	}
	c := &Client{msg: msg, model: model, maxTokens: maxTokens, maxRetries: 2, backoffCap: 30 * time.Second}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// NewFromAPIKey is a convenience constructor over sdk.NewClient.
func NewFromAPIKey(apiKey, model string, maxTokens int, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, model, maxTokens, opts...)
}

// Complete issues a Messages.New call, retrying transient and
// rate-limited failures with exponential back-off capped at c.backoffCap.
func (c *Client) Complete(ctx context.Context, systemPrompt string, messages []agentmodel.Message, toolset []tools.Tool) (agentmodel.Message, error) {
	params, err := c.buildParams(systemPrompt, messages, toolset)
	if err != nil {
		return agentmodel.Message{}, &agenterr.ProviderError{Kind: agenterr.ProviderErrorPermanent, Message: err.Error(), Cause: err}
	}

	var lastErr error
	backoff := 500 * time.Millisecond
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		msg, err := c.msg.New(ctx, *params)
		if err == nil {
			return translateResponse(msg)
		}
		lastErr = err
		pe := classifyError(err)
		if !pe.Retryable() || attempt == c.maxRetries {
			return agentmodel.Message{}, pe
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return agentmodel.Message{}, ctx.Err()
		}
		if backoff *= 2; backoff > c.backoffCap {
			backoff = c.backoffCap
		}
	}
	return agentmodel.Message{}, classifyError(lastErr)
}

// Summarize asks the model to compress the conversation into a single
// user-role message preserving its intent, the shortest history shape the
// reply loop can safely continue from.
func (c *Client) Summarize(ctx context.Context, messages []agentmodel.Message) ([]agentmodel.Message, error) {
	const instruction = "Summarize the conversation above in a few sentences, preserving any outstanding tasks or commitments, so it can replace the full history."
	summaryPrompt := append(append([]agentmodel.Message(nil), messages...), agentmodel.Text(agentmodel.RoleUser, time.Now(), instruction))
	resp, err := c.Complete(ctx, "", summaryPrompt, nil)
	if err != nil {
		return nil, err
	}
	return []agentmodel.Message{agentmodel.Text(agentmodel.RoleUser, time.Now(), summaryText(resp))}, nil
}

func summaryText(m agentmodel.Message) string {
	for _, p := range m.Content {
		if tp, ok := p.(agentmodel.TextPart); ok {
			return tp.Text
		}
	}
	return ""
}

func (c *Client) buildParams(systemPrompt string, messages []agentmodel.Message, toolset []tools.Tool) (*sdk.MessageNewParams, error) {
	msgs, err := encodeMessages(messages)
	if err != nil {
		return nil, err
	}
	params := &sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		Messages:  msgs,
	}
	if systemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: systemPrompt}}
	}
	if len(toolset) > 0 {
		encoded, err := encodeTools(toolset)
		if err != nil {
			return nil, err
		}
		params.Tools = encoded
	}
	return params, nil
}

func encodeMessages(messages []agentmodel.Message) ([]sdk.MessageParam, error) {
	out := make([]sdk.MessageParam, 0, len(messages))
	for _, m := range messages {
		blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Content))
		for _, part := range m.Content {
			switch v := part.(type) {
			case agentmodel.TextPart:
				if v.Text != "" {
					blocks = append(blocks, sdk.NewTextBlock(v.Text))
				}
			case agentmodel.ToolRequestPart:
				if v.Call == nil {
					continue
				}
				var input any
				if len(v.Call.Arguments) > 0 {
					if err := json.Unmarshal(v.Call.Arguments, &input); err != nil {
						return nil, fmt.Errorf("anthropic: decode tool_use input for %s: %w", v.ID, err)
					}
				}
				blocks = append(blocks, sdk.NewToolUseBlock(v.ID, input, string(v.Call.Name)))
			case agentmodel.ToolResponsePart:
				text := v.Error
				isError := v.Error != ""
				if !isError {
					for _, c := range v.Content {
						text += c.Text
					}
				}
				blocks = append(blocks, sdk.NewToolResultBlock(v.ID, text, isError))
			case agentmodel.ThinkingPart, agentmodel.ImagePart, agentmodel.ContextLengthExceededPart, agentmodel.FrontendToolRequestPart, agentmodel.ToolConfirmationRequestPart:
				// Control and host-only parts never cross the wire to the
				// provider; they are resolved to a TextPart/ToolResponsePart
				// by the time a message reaches here in practice.
			}
		}
		if len(blocks) == 0 {
			continue
		}
		switch m.Role {
		case agentmodel.RoleUser:
			out = append(out, sdk.NewUserMessage(blocks...))
		case agentmodel.RoleAssistant:
			out = append(out, sdk.NewAssistantMessage(blocks...))
		}
	}
	if len(out) == 0 {
		return nil, errors.New("anthropic: at least one message with content is required")
	}
	return out, nil
}

func encodeTools(toolset []tools.Tool) ([]sdk.ToolUnionParam, error) {
	out := make([]sdk.ToolUnionParam, 0, len(toolset))
	for _, t := range toolset {
		schema, err := decodeSchema(t.RawInputSchema)
		if err != nil {
			return nil, fmt.Errorf("anthropic: tool %s schema: %w", t.Name, err)
		}
		u := sdk.ToolUnionParamOfTool(schema, string(t.Name))
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(t.Description)
		}
		out = append(out, u)
	}
	return out, nil
}

func decodeSchema(raw json.RawMessage) (sdk.ToolInputSchemaParam, error) {
	if len(raw) == 0 {
		return sdk.ToolInputSchemaParam{}, nil
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	return sdk.ToolInputSchemaParam{ExtraFields: fields}, nil
}

func translateResponse(msg *sdk.Message) (agentmodel.Message, error) {
	if msg == nil {
		return agentmodel.Message{}, errors.New("anthropic: nil response")
	}
	var parts []agentmodel.Part
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				parts = append(parts, agentmodel.TextPart{Text: block.Text})
			}
		case "thinking":
			if block.Thinking != "" {
				parts = append(parts, agentmodel.ThinkingPart{Text: block.Thinking})
			}
		case "tool_use":
			args, err := json.Marshal(block.Input)
			if err != nil {
				parts = append(parts, agentmodel.ToolRequestPart{ID: block.ID, ParseError: err.Error()})
				continue
			}
			parts = append(parts, agentmodel.ToolRequestPart{
				ID:   block.ID,
				Call: &tools.Call{Name: tools.Name(block.Name), Arguments: args},
			})
		}
	}
	return agentmodel.NewAssistantMessage(time.Now(), parts...), nil
}

// classifyError maps an Anthropic SDK error into the taxonomy the reply
// loop understands: a context-window overflow or rate limit is retriable
// or recoverable in a specific way, everything else is permanent.
func classifyError(err error) *agenterr.ProviderError {
	if err == nil {
		return nil
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return &agenterr.ProviderError{Kind: agenterr.ProviderErrorRateLimited, Message: "anthropic rate limited", Cause: err}
		case apiErr.StatusCode >= 500:
			return &agenterr.ProviderError{Kind: agenterr.ProviderErrorTransient, Message: "anthropic server error", Cause: err}
		case apiErr.StatusCode == 400 && strings.Contains(apiErr.Error(), "prompt is too long"):
			return &agenterr.ProviderError{Kind: agenterr.ProviderErrorContextLengthExceeded, Message: err.Error(), Cause: err}
		}
	}
	return &agenterr.ProviderError{Kind: agenterr.ProviderErrorPermanent, Message: "anthropic request failed", Cause: err}
}
