package extension

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentforge/core/agenterr"
	"github.com/agentforge/core/tools"
)

// platformToolset lists the tool descriptors surfaced under the
// platform__ prefix; enable_extension is listed for discovery but is never
// dispatched through DispatchToolCall (see RegisterPlatformTools).
var platformToolset = []tools.Tool{
	{Name: tools.Name("read_resource"), Description: "Read a resource by URI from a registered extension."},
	{Name: tools.Name("list_resources"), Description: "List active resources, optionally scoped to one extension."},
	{Name: tools.Name("search_available_extensions"), Description: "List known extensions that are not yet enabled."},
	{Name: tools.Name("enable_extension"), Description: "Enable a known extension; always requires user confirmation.", Annotations: tools.Annotations{ReadOnly: false}},
}

// RegisterPlatformTools installs the platform__* builtin tools on m. It
// takes the manager handle explicitly so the handler closures can call back
// into m (ReadResource, ResourcesByExtension, Catalog) without the manager
// holding a reference to itself at construction time.
func RegisterPlatformTools(m *Manager) {
	m.RegisterBuiltin(tools.PlatformExtension, platformToolset, func(ctx context.Context, local string, args []byte) ([]tools.Content, error) {
		switch local {
		case "read_resource":
			return platformReadResource(ctx, m, args)
		case "list_resources":
			return platformListResources(ctx, m, args)
		case "search_available_extensions":
			return platformSearchAvailableExtensions(m)
		case "enable_extension":
			return nil, &agenterr.InvalidParameters{Message: "enable_extension must be dispatched through the confirmation path, not called directly"}
		default:
			return nil, &agenterr.ToolNotFound{Name: tools.Qualify(tools.PlatformExtension, local).String()}
		}
	})
}

func platformReadResource(ctx context.Context, m *Manager, args []byte) ([]tools.Content, error) {
	var params struct {
		URI           string `json:"uri"`
		ExtensionName string `json:"extension_name"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, &agenterr.InvalidParameters{Message: fmt.Sprintf("read_resource: %v", err)}
	}
	if strings.TrimSpace(params.URI) == "" {
		return nil, &agenterr.InvalidParameters{Message: "read_resource: uri is required"}
	}
	return m.ReadResource(ctx, params.URI, params.ExtensionName)
}

func platformListResources(ctx context.Context, m *Manager, args []byte) ([]tools.Content, error) {
	var params struct {
		ExtensionName string `json:"extension_name"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, &agenterr.InvalidParameters{Message: fmt.Sprintf("list_resources: %v", err)}
		}
	}
	byExt, err := m.ResourcesByExtension(ctx, params.ExtensionName)
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	for ext, resources := range byExt {
		for _, r := range resources {
			fmt.Fprintf(&b, "%s: %s (%s)\n", ext, r.URI, r.MimeType)
		}
	}
	return newTextResponse(b.String()), nil
}

func platformSearchAvailableExtensions(m *Manager) ([]tools.Content, error) {
	catalog := m.Catalog()
	var b strings.Builder
	for _, entry := range catalog {
		fmt.Fprintf(&b, "%s: %s\n", entry.Name, entry.Description)
	}
	return newTextResponse(b.String()), nil
}
