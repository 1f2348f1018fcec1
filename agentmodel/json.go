package agentmodel

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentforge/core/tools"
)

// MarshalJSON encodes TextPart with a Kind discriminator so decode logic can
// recover the concrete part type from a generic Parts slice.
func (p TextPart) MarshalJSON() ([]byte, error) {
	type alias TextPart
	return json.Marshal(struct {
		Kind string `json:"kind"`
		alias
	}{Kind: "text", alias: alias(p)})
}

// MarshalJSON encodes ImagePart with a Kind discriminator.
func (p ImagePart) MarshalJSON() ([]byte, error) {
	type alias ImagePart
	return json.Marshal(struct {
		Kind string `json:"kind"`
		alias
	}{Kind: "image", alias: alias(p)})
}

// MarshalJSON encodes ThinkingPart with a Kind discriminator.
func (p ThinkingPart) MarshalJSON() ([]byte, error) {
	type alias ThinkingPart
	return json.Marshal(struct {
		Kind string `json:"kind"`
		alias
	}{Kind: "thinking", alias: alias(p)})
}

// MarshalJSON encodes ToolRequestPart with a Kind discriminator.
func (p ToolRequestPart) MarshalJSON() ([]byte, error) {
	type alias ToolRequestPart
	return json.Marshal(struct {
		Kind string `json:"kind"`
		alias
	}{Kind: "tool_request", alias: alias(p)})
}

// MarshalJSON encodes ToolResponsePart with a Kind discriminator.
func (p ToolResponsePart) MarshalJSON() ([]byte, error) {
	type alias ToolResponsePart
	return json.Marshal(struct {
		Kind string `json:"kind"`
		alias
	}{Kind: "tool_response", alias: alias(p)})
}

// MarshalJSON encodes ToolConfirmationRequestPart with a Kind discriminator.
func (p ToolConfirmationRequestPart) MarshalJSON() ([]byte, error) {
	type alias ToolConfirmationRequestPart
	return json.Marshal(struct {
		Kind string `json:"kind"`
		alias
	}{Kind: "tool_confirmation_request", alias: alias(p)})
}

// MarshalJSON encodes ContextLengthExceededPart with a Kind discriminator.
func (p ContextLengthExceededPart) MarshalJSON() ([]byte, error) {
	type alias ContextLengthExceededPart
	return json.Marshal(struct {
		Kind string `json:"kind"`
		alias
	}{Kind: "context_length_exceeded", alias: alias(p)})
}

// MarshalJSON encodes FrontendToolRequestPart with a Kind discriminator.
func (p FrontendToolRequestPart) MarshalJSON() ([]byte, error) {
	type alias FrontendToolRequestPart
	return json.Marshal(struct {
		Kind string `json:"kind"`
		alias
	}{Kind: "frontend_tool_request", alias: alias(p)})
}

// MarshalJSON encodes Message's parts through their discriminated encodings.
func (m Message) MarshalJSON() ([]byte, error) {
	type alias struct {
		Role      Role      `json:"role"`
		Timestamp string    `json:"timestamp"`
		Content   []Part    `json:"content"`
	}
	return json.Marshal(alias{Role: m.Role, Timestamp: m.Timestamp.Format(timeLayout), Content: m.Content})
}

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"

// kindEnvelope peeks at the "kind" discriminator of a serialized Part
// without committing to a concrete type.
type kindEnvelope struct {
	Kind string `json:"kind"`
}

// UnmarshalJSON decodes m, reconstructing concrete Part types from their
// Kind discriminators.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role      Role              `json:"role"`
		Timestamp string            `json:"timestamp"`
		Content   []json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	if raw.Timestamp != "" {
		ts, err := parseTimestamp(raw.Timestamp)
		if err != nil {
			return fmt.Errorf("message timestamp: %w", err)
		}
		m.Timestamp = ts
	}
	m.Content = make([]Part, 0, len(raw.Content))
	for _, rc := range raw.Content {
		part, err := decodePart(rc)
		if err != nil {
			return err
		}
		m.Content = append(m.Content, part)
	}
	return nil
}

func decodePart(raw json.RawMessage) (Part, error) {
	var env kindEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode part envelope: %w", err)
	}
	switch env.Kind {
	case "text":
		var p TextPart
		return p, unmarshalInto(raw, &p)
	case "image":
		var p ImagePart
		return p, unmarshalInto(raw, &p)
	case "thinking":
		var p ThinkingPart
		return p, unmarshalInto(raw, &p)
	case "tool_request":
		var p ToolRequestPart
		return p, unmarshalInto(raw, &p)
	case "tool_response":
		var p ToolResponsePart
		return p, unmarshalInto(raw, &p)
	case "tool_confirmation_request":
		var p ToolConfirmationRequestPart
		return p, unmarshalInto(raw, &p)
	case "context_length_exceeded":
		var p ContextLengthExceededPart
		return p, unmarshalInto(raw, &p)
	case "frontend_tool_request":
		var p FrontendToolRequestPart
		return p, unmarshalInto(raw, &p)
	default:
		return nil, fmt.Errorf("unknown content part kind %q", env.Kind)
	}
}

// unmarshalInto decodes raw into dst by aliasing dst's type to strip its
// custom MarshalJSON method and avoid infinite recursion.
func unmarshalInto(raw json.RawMessage, dst any) error {
	switch p := dst.(type) {
	case *TextPart:
		type alias TextPart
		var a alias
		if err := json.Unmarshal(raw, &a); err != nil {
			return err
		}
		*p = TextPart(a)
	case *ImagePart:
		type alias ImagePart
		var a alias
		if err := json.Unmarshal(raw, &a); err != nil {
			return err
		}
		*p = ImagePart(a)
	case *ThinkingPart:
		type alias ThinkingPart
		var a alias
		if err := json.Unmarshal(raw, &a); err != nil {
			return err
		}
		*p = ThinkingPart(a)
	case *ToolRequestPart:
		type alias struct {
			ID         string      `json:"ID"`
			Call       *tools.Call `json:"Call"`
			ParseError string      `json:"ParseError"`
		}
		var a alias
		if err := json.Unmarshal(raw, &a); err != nil {
			return err
		}
		*p = ToolRequestPart{ID: a.ID, Call: a.Call, ParseError: a.ParseError}
	case *ToolResponsePart:
		type alias ToolResponsePart
		var a alias
		if err := json.Unmarshal(raw, &a); err != nil {
			return err
		}
		*p = ToolResponsePart(a)
	case *ToolConfirmationRequestPart:
		type alias ToolConfirmationRequestPart
		var a alias
		if err := json.Unmarshal(raw, &a); err != nil {
			return err
		}
		*p = ToolConfirmationRequestPart(a)
	case *ContextLengthExceededPart:
		type alias ContextLengthExceededPart
		var a alias
		if err := json.Unmarshal(raw, &a); err != nil {
			return err
		}
		*p = ContextLengthExceededPart(a)
	case *FrontendToolRequestPart:
		type alias FrontendToolRequestPart
		var a alias
		if err := json.Unmarshal(raw, &a); err != nil {
			return err
		}
		*p = FrontendToolRequestPart(a)
	default:
		return fmt.Errorf("unmarshalInto: unsupported part type %T", dst)
	}
	return nil
}

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
