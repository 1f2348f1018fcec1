// Package tools defines the tool, resource, and extension-configuration
// types shared by the extension manager, permission engine, and reply loop.
package tools

import "strings"

// Separator is the reserved substring splitting an extension name from its
// local tool name in a fully qualified tool identifier. Tool names inside an
// extension must not contain it.
const Separator = "__"

// PlatformExtension is the pseudo-extension name for tools dispatched by the
// extension manager itself rather than any MCP server.
const PlatformExtension = "platform"

// Name is a fully qualified tool identifier of the form
// "extension__local". It is a strong string type so call sites cannot
// accidentally mix qualified and unqualified tool names.
type Name string

// Qualify builds a fully qualified Name from an extension and a local tool
// name. It does not validate that local lacks the separator; callers
// constructing names for registration should use Tool.Validate.
func Qualify(extension, local string) Name {
	return Name(extension + Separator + local)
}

// Split resolves a qualified tool name into its extension and local parts.
// Resolution is a single split on the first occurrence of Separator, per the
// tool-name grammar. It returns ok=false when name has no separator.
func (n Name) Split() (extension, local string, ok bool) {
	s := string(n)
	idx := strings.Index(s, Separator)
	if idx < 0 {
		return "", "", false
	}
	return s[:idx], s[idx+len(Separator):], true
}

// Extension returns the extension component of a qualified name, or "" if
// the name has no separator.
func (n Name) Extension() string {
	ext, _, ok := n.Split()
	if !ok {
		return ""
	}
	return ext
}

// Local returns the local tool component of a qualified name, or "" if the
// name has no separator.
func (n Name) Local() string {
	_, local, ok := n.Split()
	if !ok {
		return ""
	}
	return local
}

// IsPlatform reports whether n is dispatched by the extension manager's
// built-in platform tools rather than a registered MCP server.
func (n Name) IsPlatform() bool {
	return n.Extension() == PlatformExtension
}

func (n Name) String() string { return string(n) }

// ValidLocalName reports whether a local tool name may be registered under
// an extension: it must be non-empty and must not itself contain the
// separator (which would make the qualified name ambiguous to split).
func ValidLocalName(local string) bool {
	return local != "" && !strings.Contains(local, Separator)
}
