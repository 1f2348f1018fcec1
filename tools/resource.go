package tools

import "time"

// ResourceMimeKind discriminates whether a Resource's content is text or
// binary, per the MCP resource content shapes (TextResourceContents vs
// BlobResourceContents).
type ResourceMimeKind string

const (
	// ResourceText marks a resource whose content is UTF-8 text.
	ResourceText ResourceMimeKind = "text"
	// ResourceBlob marks a resource whose content is binary, base64 on the wire.
	ResourceBlob ResourceMimeKind = "blob"
)

// Resource describes a piece of context an extension can surface to the
// model, independent of whether its content has been fetched.
//
// Invariant: URI is unique per owning extension.
type Resource struct {
	// URI identifies the resource within its owning extension.
	URI string
	// MimeType discriminates text vs. binary content.
	MimeType ResourceMimeKind
	// Name is an optional human-readable label.
	Name string
	// Priority in [0,1] controls trimming order; a missing priority is
	// treated as 0.0 by the token budgeter.
	Priority *float64
	// Timestamp records when the resource was last produced or viewed.
	Timestamp time.Time
	// Active reports whether the resource has been viewed or produced since
	// the last clear; only active resources are surfaced to the model.
	Active bool
}

// PriorityOrZero returns the resource's priority, defaulting to 0.0 when unset.
func (r Resource) PriorityOrZero() float64 {
	if r.Priority == nil {
		return 0
	}
	return *r.Priority
}
