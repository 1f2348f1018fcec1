// Command agentforge-demo wires a reply loop end-to-end: a scripted
// provider, the built-in text_editor extension, and a second extension
// served over an in-process MCP transport (no external server process),
// the way the teacher's cmd/demo wires a stub planner against an
// in-memory engine for a runnable, dependency-free walkthrough.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/agentforge/core/agentmodel"
	"github.com/agentforge/core/extension"
	"github.com/agentforge/core/extension/builtin/texteditor"
	"github.com/agentforge/core/mcp"
	"github.com/agentforge/core/permission"
	"github.com/agentforge/core/tools"

	"github.com/agentforge/core/agent"
)

func main() {
	ctx := context.Background()
	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "agentforge-demo:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	manager := extension.New()
	extension.RegisterPlatformTools(manager)
	editor := texteditor.New()
	manager.RegisterBuiltinWithResources("editor", texteditor.Toolset(), editor.Handle, editor)

	session, stopServer, err := dialWeatherExtension(ctx)
	if err != nil {
		return fmt.Errorf("connect weather extension: %w", err)
	}
	defer stopServer()
	manager.RegisterSession("weather", session, weatherToolset(), nil, 5*time.Second)

	perms := permission.New(permission.ModeAuto, permission.NewInmemStore(), nil)
	provider := &scriptedProvider{
		turns: []agentmodel.Message{
			agentmodel.NewAssistantMessage(time.Now(), agentmodel.ToolRequestPart{
				ID:   "1",
				Call: &tools.Call{Name: "weather__forecast", Arguments: json.RawMessage(`{"city":"Boston"}`)},
			}),
			agentmodel.Text(agentmodel.RoleAssistant, time.Now(), "It looks clear in Boston today."),
		},
	}

	loop := agent.New(provider, manager, perms, nil, agent.Config{
		SystemPrompt: "You are a terse assistant with access to a weather tool and a text editor.",
		ContextLimit: 100_000,
		Model:        "gpt-4o",
	})

	initial := []agentmodel.Message{agentmodel.Text(agentmodel.RoleUser, time.Now(), "What's the weather in Boston?")}
	run := loop.Run(ctx, initial, agent.SessionConfig{ID: "demo-session"})
	for msg := range run.Messages() {
		printMessage(msg)
	}
	return nil
}

func printMessage(msg agentmodel.Message) {
	for _, part := range msg.Content {
		switch p := part.(type) {
		case agentmodel.TextPart:
			fmt.Printf("[%s] %s\n", msg.Role, p.Text)
		case agentmodel.ToolRequestPart:
			if p.Call != nil {
				fmt.Printf("[%s] tool_request %s(%s)\n", msg.Role, p.Call.Name, string(p.Call.Arguments))
			}
		case agentmodel.ToolResponsePart:
			if p.Error != "" {
				fmt.Printf("[%s] tool_response error=%s\n", msg.Role, p.Error)
				continue
			}
			for _, c := range p.Content {
				fmt.Printf("[%s] tool_response %s\n", msg.Role, c.Text)
			}
		}
	}
}

// scriptedProvider returns its turns in order, ignoring the conversation it
// is given, so the demo is reproducible without a network call.
type scriptedProvider struct {
	turns []agentmodel.Message
	next  int
}

func (p *scriptedProvider) Complete(context.Context, string, []agentmodel.Message, []tools.Tool) (agentmodel.Message, error) {
	if p.next >= len(p.turns) {
		return agentmodel.Text(agentmodel.RoleAssistant, time.Now(), ""), nil
	}
	msg := p.turns[p.next]
	p.next++
	return msg, nil
}

func (p *scriptedProvider) Summarize(_ context.Context, messages []agentmodel.Message) ([]agentmodel.Message, error) {
	return messages, nil
}

func weatherToolset() []tools.Tool {
	return []tools.Tool{{Name: "weather__forecast", Description: "Returns a one-line forecast for a city."}}
}

// dialWeatherExtension spins up a goroutine MCP server on the other end of
// an in-process pipe and returns a session connected to it, letting the
// demo show a full MCP round trip without spawning an external process.
func dialWeatherExtension(ctx context.Context) (*mcp.Session, func(), error) {
	clientR, serverW := io.Pipe()
	serverR, clientW := io.Pipe()

	transport := newPipeTransport(clientW, clientR)
	go serveWeather(serverW, serverR)

	sess := mcp.NewSession("weather", transport)
	if _, err := sess.Initialize(ctx, mcp.ClientInfo{Name: "agentforge-demo", Version: "0.1.0"}); err != nil {
		sess.Shutdown()
		return nil, func() {}, err
	}
	return sess, sess.Shutdown, nil
}

// pipeTransport frames JSON-RPC messages one per line over an io.Pipe pair,
// the same newline-delimited shape mcp.StdioTransport uses over a child
// process's stdio.
type pipeTransport struct {
	w io.WriteCloser
	r *bufio.Reader
}

func newPipeTransport(w io.WriteCloser, r io.Reader) *pipeTransport {
	return &pipeTransport{w: w, r: bufio.NewReader(r)}
}

func (t *pipeTransport) Send(f mcp.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	_, err = t.w.Write(append(data, '\n'))
	return err
}

func (t *pipeTransport) Recv() (mcp.Frame, error) {
	line, err := t.r.ReadBytes('\n')
	if len(line) == 0 && err != nil {
		return mcp.Frame{}, err
	}
	var f mcp.Frame
	if err := json.Unmarshal(line, &f); err != nil {
		return mcp.Frame{}, err
	}
	return f, nil
}

func (t *pipeTransport) Close() error { return t.w.Close() }

// serveWeather answers the handful of MCP methods the session needs during
// initialize and a single tools/call, then exits when its pipe closes.
func serveWeather(w io.WriteCloser, r io.Reader) {
	defer w.Close()
	br := bufio.NewReader(r)
	enc := func(f mcp.Frame) { data, _ := json.Marshal(f); w.Write(append(data, '\n')) }

	for {
		line, err := br.ReadBytes('\n')
		if len(line) == 0 && err != nil {
			return
		}
		var f mcp.Frame
		if err := json.Unmarshal(line, &f); err != nil {
			continue
		}
		switch f.Method {
		case "initialize":
			result, _ := json.Marshal(mcp.ServerInfo{Name: "weather", Version: "0.1.0", ProtocolVersion: "2024-11-05"})
			enc(mcp.Frame{JSONRPC: "2.0", ID: f.ID, Result: result})
		case "notifications/initialized":
			// no response expected
		case "tools/call":
			result, _ := json.Marshal(mcp.CallToolResult{
				Content: []mcp.ContentBlock{{Type: "text", Text: "Sunny, high of 68F."}},
			})
			enc(mcp.Frame{JSONRPC: "2.0", ID: f.ID, Result: result})
		default:
			if f.ID != nil {
				enc(mcp.Frame{JSONRPC: "2.0", ID: f.ID, Result: json.RawMessage(`{}`)})
			}
		}
	}
}
