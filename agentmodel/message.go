// Package agentmodel defines the conversation data model shared by the
// reply loop, extension manager, and token budgeter: messages, their typed
// content parts, and tool calls/results. Parts preserve structure rather
// than flattening to plain strings, the same discipline the teacher
// codebase applies to its own message model.
package agentmodel

import (
	"encoding/json"
	"time"

	"github.com/agentforge/core/tools"
)

// Role identifies the speaker for a Message.
type Role string

const (
	// RoleUser marks a message authored by the caller or by tool responses
	// folded back into the conversation.
	RoleUser Role = "user"
	// RoleAssistant marks a message produced by the model.
	RoleAssistant Role = "assistant"
)

// Part is a marker interface implemented by every content-part variant a
// Message may carry. It mirrors the teacher's closed Part-interface idiom
// (runtime/agent/model.Part) generalized to the full union this spec names.
type Part interface {
	isPart()
}

// TextPart is plain user- or model-visible text.
type TextPart struct {
	Text string
}

func (TextPart) isPart() {}

// ImagePart carries inline image bytes.
type ImagePart struct {
	Data []byte
	Mime string
}

func (ImagePart) isPart() {}

// ThinkingPart carries provider-issued reasoning text, treated as opaque by
// the reply loop and surfaced to the UI according to host policy.
type ThinkingPart struct {
	Text string
}

func (ThinkingPart) isPart() {}

// ToolRequestPart declares a single tool invocation requested by the model.
//
// Invariant: ID is unique within a conversation; a matching ToolResponsePart
// with the same ID must appear in a later message before another model turn
// may be billed.
type ToolRequestPart struct {
	ID string
	// Call is populated when the model successfully produced a well-formed
	// tool call.
	Call *tools.Call
	// ParseError is populated instead of Call when the model's tool-call
	// payload could not be parsed (e.g. malformed JSON arguments); the
	// extension manager never dispatches these, they resolve directly to an
	// InvalidParameters ToolResponsePart.
	ParseError string
}

func (ToolRequestPart) isPart() {}

// ToolResponsePart carries the outcome of a ToolRequestPart with the same ID.
type ToolResponsePart struct {
	ID string
	// Content holds the tool's successful result content blocks.
	Content []tools.Content
	// Error is set instead of Content when the tool call failed; the message
	// is the text surfaced back to the model so it can adapt.
	Error string
}

func (ToolResponsePart) isPart() {}

// ToolConfirmationRequestPart asks the host to approve or deny a pending
// tool call. The reply loop blocks on a matching PermissionConfirmation
// delivered out of band on the same ID.
type ToolConfirmationRequestPart struct {
	ID     string
	Name   tools.Name
	Args   json.RawMessage
	Prompt string
}

func (ToolConfirmationRequestPart) isPart() {}

// ContextLengthExceededPart signals that the prepared payload exceeded the
// provider's context window even after trimming and summarization.
type ContextLengthExceededPart struct {
	Reason string
}

func (ContextLengthExceededPart) isPart() {}

// FrontendToolRequestPart declares a tool call delegated to the host
// application rather than any MCP server or built-in handler.
type FrontendToolRequestPart struct {
	ID   string
	Call tools.Call
}

func (FrontendToolRequestPart) isPart() {}

// Message is an ordered sequence of content parts with a role and a
// timestamp.
type Message struct {
	Role      Role
	Timestamp time.Time
	Content   []Part
}

// Clone returns a deep-enough copy of m safe to mutate without affecting the
// caller's copy of the conversation; the reply loop never mutates caller
// memory and instead returns augmented copies through its output stream.
func (m Message) Clone() Message {
	out := Message{Role: m.Role, Timestamp: m.Timestamp}
	if len(m.Content) > 0 {
		out.Content = append([]Part(nil), m.Content...)
	}
	return out
}

// ToolRequestIDs returns the IDs of every ToolRequestPart in m, in order.
func (m Message) ToolRequestIDs() []string {
	var ids []string
	for _, p := range m.Content {
		if tr, ok := p.(ToolRequestPart); ok {
			ids = append(ids, tr.ID)
		}
	}
	return ids
}

// ToolRequests returns every ToolRequestPart in m, in order.
func (m Message) ToolRequests() []ToolRequestPart {
	var reqs []ToolRequestPart
	for _, p := range m.Content {
		if tr, ok := p.(ToolRequestPart); ok {
			reqs = append(reqs, tr)
		}
	}
	return reqs
}

// NewUserMessage constructs a user-role message with the given parts, timestamped now.
func NewUserMessage(now time.Time, parts ...Part) Message {
	return Message{Role: RoleUser, Timestamp: now, Content: parts}
}

// NewAssistantMessage constructs an assistant-role message with the given parts, timestamped now.
func NewAssistantMessage(now time.Time, parts ...Part) Message {
	return Message{Role: RoleAssistant, Timestamp: now, Content: parts}
}

// Text returns a single-part text Message, a common case in tests and canned responses.
func Text(role Role, now time.Time, text string) Message {
	return Message{Role: role, Timestamp: now, Content: []Part{TextPart{Text: text}}}
}
