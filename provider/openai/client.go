// Package openai adapts the OpenAI Chat Completions API to agent.Provider
// using github.com/openai/openai-go, the same request/response shape the
// teacher's own model adapters (features/model/{anthropic,openai}) give
// each provider SDK a home for.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/agentforge/core/agenterr"
	"github.com/agentforge/core/agentmodel"
	"github.com/agentforge/core/tools"
)

// ChatClient captures the subset of the SDK this adapter drives.
type ChatClient interface {
	New(ctx context.Context, body oai.ChatCompletionNewParams, opts ...option.RequestOption) (*oai.ChatCompletion, error)
}

// Client implements agent.Provider against OpenAI's Chat Completions API.
type Client struct {
	chat       ChatClient
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

// New builds a Client from an already-configured chat-completions client.
func New(chat ChatClient, model string, maxTokens int, opts ...Option) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai: chat client is required")
	}
	if model == "" {
		return nil, errors.New("openai: model identifier is required")
	}
	c := &Client{chat: chat, model: model, maxTokens: maxTokens, maxRetries: 2, backoffCap: 30 * time.Second}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// NewFromAPIKey is a convenience constructor over oai.NewClient.
func NewFromAPIKey(apiKey, model string, maxTokens int, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	client := oai.NewClient(option.WithAPIKey(apiKey))
	return New(&client.Chat.Completions, model, maxTokens, opts...)
}

// Complete issues a chat completion request, retrying transient and
// rate-limited failures with exponential back-off capped at c.backoffCap.
func (c *Client) Complete(ctx context.Context, systemPrompt string, messages []agentmodel.Message, toolset []tools.Tool) (agentmodel.Message, error) {
	params, err := c.buildParams(systemPrompt, messages, toolset)
	if err != nil {
		return agentmodel.Message{}, &agenterr.ProviderError{Kind: agenterr.ProviderErrorPermanent, Message: err.Error(), Cause: err}
	}

	var lastErr error
	backoff := 500 * time.Millisecond
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, err := c.chat.New(ctx, *params)
		if err == nil {
			return translateResponse(resp)
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
// user-role message preserving its intent.
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

func (c *Client) buildParams(systemPrompt string, messages []agentmodel.Message, toolset []tools.Tool) (*oai.ChatCompletionNewParams, error) {
	msgs := make([]oai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if systemPrompt != "" {
		msgs = append(msgs, oai.SystemMessage(systemPrompt))
	}
	encodedMessages, err := encodeMessages(messages)
	if err != nil {
		return nil, err
	}
	msgs = append(msgs, encodedMessages...)

	params := &oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: msgs,
	}
	if c.maxTokens > 0 {
		params.MaxCompletionTokens = oai.Int(int64(c.maxTokens))
	}
	if len(toolset) > 0 {
		params.Tools = encodeTools(toolset)
	}
	return params, nil
}

func encodeMessages(messages []agentmodel.Message) ([]oai.ChatCompletionMessageParamUnion, error) {
	var out []oai.ChatCompletionMessageParamUnion
	for _, m := range messages {
		for _, part := range m.Content {
			switch v := part.(type) {
			case agentmodel.TextPart:
				if v.Text == "" {
					continue
				}
				if m.Role == agentmodel.RoleAssistant {
					out = append(out, oai.AssistantMessage(v.Text))
				} else {
					out = append(out, oai.UserMessage(v.Text))
				}
			case agentmodel.ToolRequestPart:
				if v.Call == nil {
					continue
				}
				out = append(out, oai.ChatCompletionMessageParamUnion{
					OfAssistant: &oai.ChatCompletionAssistantMessageParam{
						ToolCalls: []oai.ChatCompletionMessageToolCallParam{{
							ID: v.ID,
							Function: oai.ChatCompletionMessageToolCallFunctionParam{
								Name:      string(v.Call.Name),
								Arguments: string(v.Call.Arguments),
							},
						}},
					},
				})
			case agentmodel.ToolResponsePart:
				text := v.Error
				if text == "" {
					for _, c := range v.Content {
						text += c.Text
					}
				}
				out = append(out, oai.ToolMessage(text, v.ID))
			case agentmodel.ThinkingPart, agentmodel.ImagePart, agentmodel.ContextLengthExceededPart, agentmodel.FrontendToolRequestPart, agentmodel.ToolConfirmationRequestPart:
				// Control and host-only parts never cross the wire.
			}
		}
	}
	if len(out) == 0 {
		return nil, errors.New("openai: at least one message with content is required")
	}
	return out, nil
}

func encodeTools(toolset []tools.Tool) []oai.ChatCompletionToolUnionParam {
	out := make([]oai.ChatCompletionToolUnionParam, 0, len(toolset))
	for _, t := range toolset {
		var params map[string]any
		if len(t.RawInputSchema) > 0 {
			_ = json.Unmarshal(t.RawInputSchema, &params)
		}
		out = append(out, oai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        string(t.Name),
			Description: oai.String(t.Description),
			Parameters:  params,
		}))
	}
	return out
}

func translateResponse(resp *oai.ChatCompletion) (agentmodel.Message, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return agentmodel.Message{}, errors.New("openai: empty response")
	}
	msg := resp.Choices[0].Message
	var parts []agentmodel.Part
	if msg.Content != "" {
		parts = append(parts, agentmodel.TextPart{Text: msg.Content})
	}
	for _, call := range msg.ToolCalls {
		parts = append(parts, agentmodel.ToolRequestPart{
			ID:   call.ID,
			Call: &tools.Call{Name: tools.Name(call.Function.Name), Arguments: json.RawMessage(call.Function.Arguments)},
		})
	}
	return agentmodel.NewAssistantMessage(time.Now(), parts...), nil
}

func classifyError(err error) *agenterr.ProviderError {
	if err == nil {
		return nil
	}
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return &agenterr.ProviderError{Kind: agenterr.ProviderErrorRateLimited, Message: "openai rate limited", Cause: err}
		case apiErr.StatusCode >= 500:
			return &agenterr.ProviderError{Kind: agenterr.ProviderErrorTransient, Message: "openai server error", Cause: err}
		case apiErr.StatusCode == 400:
			return &agenterr.ProviderError{Kind: agenterr.ProviderErrorContextLengthExceeded, Message: err.Error(), Cause: err}
		}
	}
	return &agenterr.ProviderError{Kind: agenterr.ProviderErrorPermanent, Message: "openai request failed", Cause: err}
}
