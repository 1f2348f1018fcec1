// Package extension implements the registry of named extensions (MCP
// servers and built-in handlers) that the reply loop dispatches tool calls
// through: registration, namespaced tool-name resolution, dispatch, and
// resource aggregation.
package extension

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentforge/core/agenterr"
	"github.com/agentforge/core/mcp"
	"github.com/agentforge/core/telemetry"
	"github.com/agentforge/core/tools"
)

// BuiltinHandler executes a platform or built-in tool call directly,
// without going through an MCP session.
type BuiltinHandler func(ctx context.Context, local string, args []byte) ([]tools.Content, error)

// ResourceProvider is implemented by a built-in extension that tracks its
// own resources (for example, files the text editor has viewed or written)
// and can read them back by URI, the same way a registered MCP server's
// resources are surfaced and read.
type ResourceProvider interface {
	Resources() []tools.Resource
	ReadResource(ctx context.Context, uri string) ([]tools.Content, error)
}

// registration is the tagged variant naming how a registered extension's
// tool calls are actually executed. Exactly one of builtin/session is
// populated; this replaces a runtime type-switch with a closed set of cases
// the compiler can help enforce at construction. provider is optional and
// only ever set alongside builtin.
type registration struct {
	name    string
	timeout time.Duration

	builtin  BuiltinHandler
	session  *mcp.Session
	provider ResourceProvider

	tools     []tools.Tool
	resources []tools.Resource
}

// Manager holds the live set of registered extensions and routes tool
// calls by name prefix. Registration mutates the map under a write lock;
// lookups and dispatch only need a read lock, and dispatch never holds the
// lock while a tool call is in flight.
type Manager struct {
	mu   sync.RWMutex
	regs map[string]*registration

	catalog []ExtensionCatalogEntry

	logger telemetry.Logger
	tracer telemetry.Tracer
}

// ExtensionCatalogEntry describes a known-but-not-yet-enabled extension,
// returned by the platform__search_available_extensions tool.
type ExtensionCatalogEntry struct {
	Name        string
	Description string
	Config      tools.Config
}

// New constructs an empty Manager. The platform tools are registered
// separately via RegisterPlatformTools once the Manager handle exists,
// breaking the circular dependency between the manager and its own
// platform-tool closures.
func New(opts ...Option) *Manager {
	m := &Manager{
		regs:   make(map[string]*registration),
		logger: telemetry.NewNoopLogger(),
		tracer: telemetry.NewNoopTracer(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Option configures a Manager at construction.
type Option func(*Manager)

// WithLogger overrides the manager's logger.
func WithLogger(l telemetry.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithTracer overrides the manager's tracer.
func WithTracer(t telemetry.Tracer) Option { return func(m *Manager) { m.tracer = t } }

// WithCatalog seeds the static catalog returned by
// search_available_extensions.
func WithCatalog(entries []ExtensionCatalogEntry) Option {
	return func(m *Manager) { m.catalog = entries }
}

// registerLocked installs reg under its name, replacing any prior
// registration of the same name. Callers must hold m.mu for writing.
func (m *Manager) registerLocked(reg *registration) {
	next := make(map[string]*registration, len(m.regs)+1)
	for k, v := range m.regs {
		next[k] = v
	}
	next[reg.name] = reg
	m.regs = next
}

// RegisterBuiltin installs a built-in extension whose tool calls are
// served in-process by handler.
func (m *Manager) RegisterBuiltin(name string, toolset []tools.Tool, handler BuiltinHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registerLocked(&registration{name: name, builtin: handler, tools: toolset})
}

// RegisterBuiltinWithResources is RegisterBuiltin plus a ResourceProvider,
// for a built-in extension (such as the text editor) that tracks its own
// file:// or str:/// resources rather than fetching a static list once at
// startup the way an MCP-backed extension does.
func (m *Manager) RegisterBuiltinWithResources(name string, toolset []tools.Tool, handler BuiltinHandler, provider ResourceProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registerLocked(&registration{name: name, builtin: handler, tools: toolset, provider: provider})
}

// RegisterSession installs an MCP-backed extension whose tools and
// resources were already fetched during AddExtension. timeout bounds every
// call_tool dispatched to this extension; zero means
// tools.DefaultCallTimeout.
func (m *Manager) RegisterSession(name string, session *mcp.Session, toolset []tools.Tool, resources []tools.Resource, timeout time.Duration) {
	if timeout <= 0 {
		timeout = tools.DefaultCallTimeout
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registerLocked(&registration{name: name, session: session, tools: toolset, resources: resources, timeout: timeout})
}

// Unregister removes name from the registry, shutting down its MCP session
// if it has one. It is a no-op if name is not registered.
func (m *Manager) Unregister(name string) {
	m.mu.Lock()
	reg, ok := m.regs[name]
	if ok {
		next := make(map[string]*registration, len(m.regs))
		for k, v := range m.regs {
			if k != name {
				next[k] = v
			}
		}
		m.regs = next
	}
	m.mu.Unlock()
	if ok && reg.session != nil {
		reg.session.Shutdown()
	}
}

func (m *Manager) lookup(name string) (*registration, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reg, ok := m.regs[name]
	return reg, ok
}

// Names returns the currently registered extension names.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.regs))
	for name := range m.regs {
		names = append(names, name)
	}
	return names
}

// ListTools returns every tool across every registered extension, prefixed
// "extension__local" per the tool-naming grammar.
func (m *Manager) ListTools() []tools.Tool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []tools.Tool
	for _, reg := range m.regs {
		for _, t := range reg.tools {
			local := t.Name.Local()
			if local == "" {
				local = string(t.Name)
			}
			qualified := t
			qualified.Name = tools.Qualify(reg.name, local)
			out = append(out, qualified)
		}
	}
	return out
}

// Catalog returns the static list of known-but-unenabled extensions.
func (m *Manager) Catalog() []ExtensionCatalogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ExtensionCatalogEntry(nil), m.catalog...)
}

// DispatchToolCall resolves call.Name to a registered extension and
// invokes it, mapping results to agentmodel content. It is the single
// dispatch path used for platform, builtin, and MCP-backed tools alike.
func (m *Manager) DispatchToolCall(ctx context.Context, call tools.Call) ([]tools.Content, error) {
	ctx, span := m.tracer.Start(ctx, "extension.dispatch_tool_call")
	defer span.End()

	ext, local, ok := call.Name.Split()
	if !ok {
		err := &agenterr.InvalidToolName{Name: string(call.Name)}
		span.RecordError(err)
		return nil, err
	}
	reg, ok := m.lookup(ext)
	if !ok {
		err := &agenterr.ToolNotFound{Name: string(call.Name)}
		span.RecordError(err)
		return nil, err
	}

	switch {
	case reg.builtin != nil:
		content, err := reg.builtin(ctx, local, call.Arguments)
		if err != nil {
			span.RecordError(err)
		}
		return content, err
	case reg.session != nil:
		return m.dispatchMCP(ctx, reg, local, call.Arguments)
	default:
		err := &agenterr.ToolNotFound{Name: string(call.Name)}
		span.RecordError(err)
		return nil, err
	}
}

func (m *Manager) dispatchMCP(ctx context.Context, reg *registration, local string, args []byte) ([]tools.Content, error) {
	ctx, cancel := context.WithTimeout(ctx, reg.timeout)
	defer cancel()
	result, err := reg.session.CallTool(ctx, local, args)
	if err != nil {
		return nil, err
	}
	content := make([]tools.Content, 0, len(result.Content))
	var errText string
	for _, c := range result.Content {
		if c.Type == "text" {
			content = append(content, tools.TextContent(c.Text))
			if result.IsError {
				errText = c.Text
			}
			continue
		}
		content = append(content, tools.Content{Type: tools.ContentBlob, Blob: c.Data, MimeType: c.MimeType})
	}
	if result.IsError {
		if errText == "" {
			errText = "tool execution failed"
		}
		return content, &agenterr.ExecutionError{Message: errText}
	}
	return content, nil
}

// ResourcesByExtension aggregates every active resource from every
// registered extension, skipping an extension that fails to list its
// resources rather than failing the whole call.
func (m *Manager) ResourcesByExtension(ctx context.Context, extensionName string) (map[string][]tools.Resource, error) {
	m.mu.RLock()
	regs := make([]*registration, 0, len(m.regs))
	for name, reg := range m.regs {
		if extensionName != "" && name != extensionName {
			continue
		}
		regs = append(regs, reg)
	}
	m.mu.RUnlock()

	out := make(map[string][]tools.Resource, len(regs))
	for _, reg := range regs {
		var active []tools.Resource
		for _, r := range reg.resources {
			if r.Active {
				active = append(active, r)
			}
		}
		if reg.provider != nil {
			for _, r := range reg.provider.Resources() {
				if r.Active {
					active = append(active, r)
				}
			}
		}
		if len(active) > 0 {
			out[reg.name] = active
		}
	}
	return out, nil
}

// ReadResource reads a single resource by URI, optionally scoped to one
// extension. If extensionName is empty every registered MCP-backed or
// ResourceProvider-backed extension is tried.
func (m *Manager) ReadResource(ctx context.Context, uri, extensionName string) ([]tools.Content, error) {
	m.mu.RLock()
	candidates := make([]*registration, 0, 1)
	for name, reg := range m.regs {
		if extensionName != "" && name != extensionName {
			continue
		}
		if reg.session != nil || reg.provider != nil {
			candidates = append(candidates, reg)
		}
	}
	m.mu.RUnlock()

	var lastErr error
	for _, reg := range candidates {
		if reg.provider != nil {
			content, err := reg.provider.ReadResource(ctx, uri)
			if err != nil {
				lastErr = err
				continue
			}
			return content, nil
		}
		contents, err := reg.session.ReadResource(ctx, uri)
		if err != nil {
			lastErr = err
			continue
		}
		if contents.Text != "" {
			return []tools.Content{tools.TextContent(contents.Text)}, nil
		}
		return []tools.Content{{Type: tools.ContentBlob, Blob: contents.Blob, MimeType: contents.MimeType}}, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("resource %q not found in any registered extension", uri)
}

// newTextResponse is a small helper shared by the platform-tool handlers in
// platform.go for building a single-text-part response.
func newTextResponse(text string) []tools.Content {
	return []tools.Content{tools.TextContent(text)}
}
