package extension

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/agentforge/core/agenterr"
	"github.com/agentforge/core/mcp"
	"github.com/agentforge/core/tools"
)

// AddExtension validates, spawns, and registers a new extension per
// spec: environment keys are filtered through the reserved-keys set,
// stdio commands are checked against the command allow-list, the
// transport is spawned, the MCP handshake is performed, and the
// resulting tool/resource catalog is fetched and registered.
func (m *Manager) AddExtension(ctx context.Context, cfg tools.Config, allowlist *AllowlistChecker) error {
	switch c := cfg.(type) {
	case tools.StdioConfig:
		return m.addStdio(ctx, c, allowlist)
	case tools.SSEConfig:
		return m.addSSE(ctx, c)
	case tools.BuiltinConfig:
		return fmt.Errorf("builtin extension %q must be registered via RegisterBuiltin, not AddExtension", c.Name)
	default:
		return fmt.Errorf("unknown extension config type %T", cfg)
	}
}

func (m *Manager) addStdio(ctx context.Context, cfg tools.StdioConfig, allowlist *AllowlistChecker) error {
	filteredEnv, dropped := tools.FilterEnv(cfg.Envs)
	for _, key := range dropped {
		m.logger.Warn(ctx, "dropped reserved environment variable", "extension", cfg.Name, "key", key)
	}
	if !allowlist.Allows(cfg.Cmd) {
		return &agenterr.UnauthorizedCommand{Command: cfg.Cmd}
	}

	transport, err := mcp.NewStdioTransport(ctx, cfg.Cmd, cfg.Args, filteredEnv)
	if err != nil {
		return fmt.Errorf("spawn extension %q: %w", cfg.Name, err)
	}
	session := mcp.NewSession(cfg.Name, transport, mcp.WithLogger(m.logger), mcp.WithTracer(m.tracer))
	return m.initializeAndRegister(ctx, cfg.Name, session, tools.Timeout(cfg))
}

func (m *Manager) addSSE(ctx context.Context, cfg tools.SSEConfig) error {
	header := http.Header{}
	transport, err := mcp.NewSSETransport(ctx, cfg.URI, header)
	if err != nil {
		return fmt.Errorf("connect extension %q: %w", cfg.Name, err)
	}
	session := mcp.NewSession(cfg.Name, transport, mcp.WithLogger(m.logger), mcp.WithTracer(m.tracer))
	return m.initializeAndRegister(ctx, cfg.Name, session, tools.Timeout(cfg))
}

func (m *Manager) initializeAndRegister(ctx context.Context, name string, session *mcp.Session, timeout time.Duration) error {
	if _, err := session.Initialize(ctx, mcp.ClientInfo{Name: "agentforge", Version: "0.1.0"}); err != nil {
		session.Shutdown()
		return fmt.Errorf("initialize extension %q: %w", name, err)
	}

	toolset, err := fetchTools(ctx, session)
	if err != nil {
		session.Shutdown()
		return fmt.Errorf("list_tools on %q: %w", name, err)
	}
	resources, err := fetchResources(ctx, session)
	if err != nil {
		m.logger.Warn(ctx, "list_resources failed, registering with no resources", "extension", name, "err", err)
		resources = nil
	}

	m.RegisterSession(name, session, toolset, resources, timeout)
	return nil
}

func fetchTools(ctx context.Context, session *mcp.Session) ([]tools.Tool, error) {
	var out []tools.Tool
	cursor := ""
	for {
		page, err := session.ListTools(ctx, cursor)
		if err != nil {
			return nil, err
		}
		for _, td := range page.Tools {
			schema, err := tools.CompileSchema(td.InputSchema)
			if err != nil {
				return nil, fmt.Errorf("compile schema for tool %q: %w", td.Name, err)
			}
			out = append(out, tools.Tool{
				Name:           tools.Name(td.Name),
				Description:    td.Description,
				InputSchema:    schema,
				RawInputSchema: td.InputSchema,
			})
		}
		if page.NextCursor == "" {
			return out, nil
		}
		cursor = page.NextCursor
	}
}

func fetchResources(ctx context.Context, session *mcp.Session) ([]tools.Resource, error) {
	var out []tools.Resource
	cursor := ""
	for {
		page, err := session.ListResources(ctx, cursor)
		if err != nil {
			return nil, err
		}
		for _, rd := range page.Resources {
			mime := tools.ResourceText
			if rd.MimeType == "blob" {
				mime = tools.ResourceBlob
			}
			priority := rd.Priority
			out = append(out, tools.Resource{
				URI:      rd.URI,
				MimeType: mime,
				Name:     rd.Name,
				Priority: &priority,
				Active:   true,
			})
		}
		if page.NextCursor == "" {
			return out, nil
		}
		cursor = page.NextCursor
	}
}
