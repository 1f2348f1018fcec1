package tools

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Annotations carry hints about a tool's side effects. A tool lacking
// annotations is treated as potentially side-effecting.
type Annotations struct {
	// ReadOnly marks a tool that never mutates state, making it eligible for
	// auto-approval regardless of permission mode.
	ReadOnly bool
	// Title is an optional human-friendly label for confirmation prompts.
	Title string
}

// Tool describes a callable capability exposed by an extension, as surfaced
// to the model.
type Tool struct {
	// Name is the fully qualified "extension__local" identifier.
	Name Name
	// Description is shown to the model to decide when to call the tool.
	Description string
	// InputSchema is the JSON Schema for the tool's arguments, compiled once
	// at registration time so dispatch-time validation never re-parses it.
	InputSchema *jsonschema.Schema
	// RawInputSchema is the schema document the tool was registered with,
	// retained for surfacing to the model and for re-compilation if needed.
	RawInputSchema json.RawMessage
	// Annotations carries optional side-effect hints.
	Annotations Annotations
}

// CompileSchema parses and compiles a JSON Schema document for a tool's
// input, returning a *jsonschema.Schema ready for Validate calls. An empty
// or missing schema is treated as "accepts any object" and returns (nil, nil).
func CompileSchema(raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse input schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	const resourceURI = "mem://tool-input-schema.json"
	if err := c.AddResource(resourceURI, doc); err != nil {
		return nil, fmt.Errorf("add input schema resource: %w", err)
	}
	schema, err := c.Compile(resourceURI)
	if err != nil {
		return nil, fmt.Errorf("compile input schema: %w", err)
	}
	return schema, nil
}

// Validate checks args (already decoded into a JSON-compatible value, e.g.
// map[string]any) against the tool's input schema. A tool with no schema
// accepts any arguments.
func (t *Tool) Validate(args any) error {
	if t.InputSchema == nil {
		return nil
	}
	if err := t.InputSchema.Validate(args); err != nil {
		return fmt.Errorf("arguments do not satisfy schema for %s: %w", t.Name, err)
	}
	return nil
}

// Call is a tool invocation requested by the model: a fully qualified name
// and JSON-compatible arguments.
type Call struct {
	// Name is the fully qualified "extension__local" tool identifier.
	Name Name
	// Arguments is the structured argument value decoded from the model's
	// tool-call JSON.
	Arguments json.RawMessage
}

// Content is one block of a tool result or resource payload.
type Content struct {
	// Type discriminates the content block ("text" or "blob").
	Type ContentType
	// Text carries the textual payload when Type is ContentText.
	Text string
	// Blob carries base64-decoded binary content when Type is ContentBlob.
	Blob []byte
	// MimeType is the content's MIME type, when known.
	MimeType string
}

// ContentType discriminates a Content block's payload shape.
type ContentType string

const (
	// ContentText marks a Content block carrying plain text.
	ContentText ContentType = "text"
	// ContentBlob marks a Content block carrying binary data.
	ContentBlob ContentType = "blob"
)

// TextContent is a convenience constructor for a text Content block.
func TextContent(text string) Content { return Content{Type: ContentText, Text: text} }
