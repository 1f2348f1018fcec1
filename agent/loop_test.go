package agent_test

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/agentforge/core/agent"
	"github.com/agentforge/core/agentmodel"
	"github.com/agentforge/core/extension"
	"github.com/agentforge/core/mcp"
	"github.com/agentforge/core/permission"
	"github.com/agentforge/core/tools"
	"github.com/stretchr/testify/require"
)

// scriptedProvider returns one scripted message per Complete call, in
// order, ignoring the conversation it was handed; it is a stand-in for a
// real model backend across the end-to-end scenarios below.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []agentmodel.Message
	calls     int
}

func (p *scriptedProvider) Complete(context.Context, string, []agentmodel.Message, []tools.Tool) (agentmodel.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls >= len(p.responses) {
		return agentmodel.Message{}, io.ErrUnexpectedEOF
	}
	resp := p.responses[p.calls]
	p.calls++
	return resp, nil
}

func (p *scriptedProvider) Summarize(_ context.Context, messages []agentmodel.Message) ([]agentmodel.Message, error) {
	return messages, nil
}

func drain(t *testing.T, run *agent.Run) []agentmodel.Message {
	t.Helper()
	var got []agentmodel.Message
	timeout := time.After(2 * time.Second)
	for {
		select {
		case m, ok := <-run.Messages():
			if !ok {
				return got
			}
			got = append(got, m)
		case <-timeout:
			t.Fatal("timed out waiting for run to finish")
		}
	}
}

func textOf(t *testing.T, m agentmodel.Message) string {
	t.Helper()
	require.Len(t, m.Content, 1)
	tp, ok := m.Content[0].(agentmodel.TextPart)
	require.True(t, ok, "expected a TextPart, got %T", m.Content[0])
	return tp.Text
}

func toolResponse(t *testing.T, m agentmodel.Message) agentmodel.ToolResponsePart {
	t.Helper()
	require.Len(t, m.Content, 1)
	rp, ok := m.Content[0].(agentmodel.ToolResponsePart)
	require.True(t, ok, "expected a ToolResponsePart, got %T", m.Content[0])
	return rp
}

func newLoop(provider agent.Provider, ext *extension.Manager, mode permission.Mode) *agent.Loop {
	perms := permission.New(mode, permission.NewInmemStore(), nil)
	return agent.New(provider, ext, perms, nil, agent.Config{
		SystemPrompt: "you are a test harness",
		ContextLimit: 100_000,
		Model:        "gpt-4o",
	})
}

// TestScenarioASimpleEcho covers a single assistant text reply with no
// tool calls at all.
func TestScenarioASimpleEcho(t *testing.T) {
	provider := &scriptedProvider{responses: []agentmodel.Message{
		agentmodel.Text(agentmodel.RoleAssistant, time.Now(), "Hello!"),
	}}
	ext := extension.New()
	loop := newLoop(provider, ext, permission.ModeAuto)

	run := loop.Run(context.Background(), []agentmodel.Message{
		agentmodel.Text(agentmodel.RoleUser, time.Now(), "Hi"),
	}, agent.SessionConfig{})

	got := drain(t, run)
	require.Len(t, got, 1)
	require.Equal(t, "Hello!", textOf(t, got[0]))
}

// TestScenarioBSingleToolCall covers a round trip through a builtin
// extension: tool request, tool response, final text.
func TestScenarioBSingleToolCall(t *testing.T) {
	call := &tools.Call{Name: tools.Qualify("test", "echo"), Arguments: json.RawMessage(`{"message":"test"}`)}
	provider := &scriptedProvider{responses: []agentmodel.Message{
		agentmodel.NewAssistantMessage(time.Now(), agentmodel.ToolRequestPart{ID: "1", Call: call}),
		agentmodel.Text(agentmodel.RoleAssistant, time.Now(), "Done!"),
	}}

	ext := extension.New()
	echoTool := tools.Tool{Name: tools.Qualify("test", "echo"), Annotations: tools.Annotations{ReadOnly: true}}
	ext.RegisterBuiltin("test", []tools.Tool{echoTool}, func(_ context.Context, local string, args []byte) ([]tools.Content, error) {
		var a struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(args, &a)
		return []tools.Content{tools.TextContent(a.Message)}, nil
	})

	loop := newLoop(provider, ext, permission.ModeAuto)
	run := loop.Run(context.Background(), []agentmodel.Message{
		agentmodel.Text(agentmodel.RoleUser, time.Now(), "echo test"),
	}, agent.SessionConfig{})

	got := drain(t, run)
	require.Len(t, got, 3)

	reqs := got[0].ToolRequests()
	require.Len(t, reqs, 1)
	require.Equal(t, "1", reqs[0].ID)

	resp := toolResponse(t, got[1])
	require.Equal(t, "1", resp.ID)
	require.Empty(t, resp.Error)
	require.Len(t, resp.Content, 1)
	require.Equal(t, "test", resp.Content[0].Text)

	require.Equal(t, "Done!", textOf(t, got[2]))
}

// TestScenarioCUnknownTool covers a tool request naming an extension that
// was never registered: the extension manager's own ToolNotFound
// resolution surfaces as the tool-response error.
func TestScenarioCUnknownTool(t *testing.T) {
	call := &tools.Call{Name: tools.Qualify("nope", "tool")}
	provider := &scriptedProvider{responses: []agentmodel.Message{
		agentmodel.NewAssistantMessage(time.Now(), agentmodel.ToolRequestPart{ID: "1", Call: call}),
		agentmodel.Text(agentmodel.RoleAssistant, time.Now(), "noted"),
	}}

	ext := extension.New()
	loop := newLoop(provider, ext, permission.ModeAuto)
	run := loop.Run(context.Background(), []agentmodel.Message{
		agentmodel.Text(agentmodel.RoleUser, time.Now(), "try something"),
	}, agent.SessionConfig{})

	got := drain(t, run)
	require.Len(t, got, 3)

	resp := toolResponse(t, got[1])
	require.Equal(t, "1", resp.ID)
	require.Contains(t, resp.Error, "nope__tool")

	require.Equal(t, "noted", textOf(t, got[2]))
}

// TestScenarioEPermissionDenialInApproveMode covers a shell-like tool with
// no read-only annotation and no stored decision under approve mode: the
// run must block on a confirmation, and a Deny must resolve to the canned
// decline text without the tool ever dispatching.
func TestScenarioEPermissionDenialInApproveMode(t *testing.T) {
	call := &tools.Call{Name: tools.Qualify("dev", "shell"), Arguments: json.RawMessage(`{"command":"ls"}`)}
	provider := &scriptedProvider{responses: []agentmodel.Message{
		agentmodel.NewAssistantMessage(time.Now(), agentmodel.ToolRequestPart{ID: "1", Call: call}),
		agentmodel.Text(agentmodel.RoleAssistant, time.Now(), "okay, skipping that"),
	}}

	dispatched := false
	ext := extension.New()
	ext.RegisterBuiltin("dev", []tools.Tool{{Name: tools.Qualify("dev", "shell")}}, func(context.Context, string, []byte) ([]tools.Content, error) {
		dispatched = true
		return nil, nil
	})

	loop := newLoop(provider, ext, permission.ModeApprove)
	run := loop.Run(context.Background(), []agentmodel.Message{
		agentmodel.Text(agentmodel.RoleUser, time.Now(), "run ls"),
	}, agent.SessionConfig{})

	var got []agentmodel.Message
	for m := range run.Messages() {
		got = append(got, m)
		if len(m.Content) == 1 {
			if cr, ok := m.Content[0].(agentmodel.ToolConfirmationRequestPart); ok {
				require.Equal(t, "1", cr.ID)
				require.True(t, run.ConfirmTool(cr.ID, agent.PermissionConfirmation{Permission: agent.Deny}))
			}
		}
	}

	require.False(t, dispatched, "tool must not run after a Deny")
	require.Len(t, got, 4) // assistant tool-request, confirmation request, denial response, final text

	resp := toolResponse(t, got[2])
	require.Equal(t, "1", resp.ID)
	require.Contains(t, resp.Error, "declined")

	require.Equal(t, "okay, skipping that", textOf(t, got[3]))
}

// TestScenarioGPlatformToolsRunInChatMode covers chat mode denying a
// regular tool call while a platform__ tool (other than enable_extension)
// still executes unconditionally, per the always-approved rule for
// platform tools.
func TestScenarioGPlatformToolsRunInChatMode(t *testing.T) {
	searchCall := &tools.Call{Name: tools.Qualify(tools.PlatformExtension, "search_available_extensions")}
	shellCall := &tools.Call{Name: tools.Qualify("dev", "shell"), Arguments: json.RawMessage(`{"command":"ls"}`)}
	provider := &scriptedProvider{responses: []agentmodel.Message{
		agentmodel.NewAssistantMessage(time.Now(),
			agentmodel.ToolRequestPart{ID: "1", Call: searchCall},
			agentmodel.ToolRequestPart{ID: "2", Call: shellCall},
		),
		agentmodel.Text(agentmodel.RoleAssistant, time.Now(), "noted"),
	}}

	dispatched := false
	ext := extension.New()
	extension.RegisterPlatformTools(ext)
	ext.RegisterBuiltin("dev", []tools.Tool{{Name: tools.Qualify("dev", "shell")}}, func(context.Context, string, []byte) ([]tools.Content, error) {
		dispatched = true
		return nil, nil
	})

	loop := newLoop(provider, ext, permission.ModeChat)
	run := loop.Run(context.Background(), []agentmodel.Message{
		agentmodel.Text(agentmodel.RoleUser, time.Now(), "what can you do, then run ls"),
	}, agent.SessionConfig{})

	got := drain(t, run)
	require.Len(t, got, 3)

	aggregate := got[1]
	require.Len(t, aggregate.Content, 2)
	byID := map[string]agentmodel.ToolResponsePart{}
	for _, part := range aggregate.Content {
		byID[part.(agentmodel.ToolResponsePart).ID] = part.(agentmodel.ToolResponsePart)
	}

	require.Empty(t, byID["1"].Error, "platform tool must run even in chat mode")
	require.False(t, dispatched, "regular tool must not run in chat mode")
	require.Contains(t, byID["2"].Error, "chat mode")

	require.Equal(t, "noted", textOf(t, got[2]))
}

// fakeMCPTransport is an in-memory mcp.Transport connecting a Session
// directly to the scripted server goroutine started in
// TestScenarioFExtensionCrashMidTurn, avoiding a real subprocess.
type fakeMCPTransport struct {
	out    chan mcp.Frame
	in     chan mcp.Frame
	closed chan struct{}
	once   sync.Once
}

func newFakeMCPTransport() *fakeMCPTransport {
	return &fakeMCPTransport{
		out:    make(chan mcp.Frame),
		in:     make(chan mcp.Frame),
		closed: make(chan struct{}),
	}
}

func (t *fakeMCPTransport) Send(f mcp.Frame) error {
	select {
	case t.out <- f:
		return nil
	case <-t.closed:
		return io.ErrClosedPipe
	}
}

func (t *fakeMCPTransport) Recv() (mcp.Frame, error) {
	select {
	case f := <-t.in:
		return f, nil
	case <-t.closed:
		return mcp.Frame{}, io.EOF
	}
}

func (t *fakeMCPTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

// runFakeMCPServer answers initialize and tools/call requests on
// transport. callDelay simulates how long the extension takes to respond
// to a tool call; isError marks every tools/call response as a failed
// execution (CallToolResult.IsError), the shape an MCP server returns on
// an internal crash.
func runFakeMCPServer(t *testing.T, transport *fakeMCPTransport, callDelay time.Duration, isError bool, errText string) {
	t.Helper()
	go func() {
		for {
			select {
			case f := <-transport.out:
				switch f.Method {
				case "initialize":
					result, _ := json.Marshal(mcp.ServerInfo{Name: "fake", ProtocolVersion: "2024-11-05"})
					select {
					case transport.in <- mcp.Frame{JSONRPC: "2.0", ID: f.ID, Result: result}:
					case <-transport.closed:
					}
				case "notifications/initialized":
					// no response expected
				case "tools/call":
					time.Sleep(callDelay)
					block := mcp.ContentBlock{Type: "text", Text: "ok"}
					if isError {
						block.Text = errText
					}
					result, _ := json.Marshal(mcp.CallToolResult{Content: []mcp.ContentBlock{block}, IsError: isError})
					select {
					case transport.in <- mcp.Frame{JSONRPC: "2.0", ID: f.ID, Result: result}:
					case <-transport.closed:
					}
				}
			case <-transport.closed:
				return
			}
		}
	}()
}

// TestScenarioFExtensionCrashMidTurn covers two parallel tool requests
// where one extension succeeds and the other reports an execution
// failure: the aggregate user message must carry both outcomes and the
// turn must continue to the provider's follow-up text.
func TestScenarioFExtensionCrashMidTurn(t *testing.T) {
	callA := &tools.Call{Name: tools.Qualify("a", "work"), Arguments: json.RawMessage(`{}`)}
	callB := &tools.Call{Name: tools.Qualify("b", "work"), Arguments: json.RawMessage(`{}`)}
	provider := &scriptedProvider{responses: []agentmodel.Message{
		agentmodel.NewAssistantMessage(time.Now(),
			agentmodel.ToolRequestPart{ID: "a1", Call: callA},
			agentmodel.ToolRequestPart{ID: "b1", Call: callB},
		),
		agentmodel.Text(agentmodel.RoleAssistant, time.Now(), "continuing"),
	}}

	ext := extension.New()
	ext.RegisterBuiltin("a", []tools.Tool{{Name: tools.Qualify("a", "work"), Annotations: tools.Annotations{ReadOnly: true}}},
		func(context.Context, string, []byte) ([]tools.Content, error) {
			time.Sleep(10 * time.Millisecond)
			return []tools.Content{tools.TextContent("a done")}, nil
		})

	transportB := newFakeMCPTransport()
	runFakeMCPServer(t, transportB, 5*time.Millisecond, true, "extension B crashed")
	sessionB := mcp.NewSession("b", transportB)
	defer sessionB.Shutdown()
	_, err := sessionB.Initialize(context.Background(), mcp.ClientInfo{Name: "agentforge", Version: "test"})
	require.NoError(t, err)
	ext.RegisterSession("b", sessionB, []tools.Tool{{Name: tools.Qualify("b", "work"), Annotations: tools.Annotations{ReadOnly: true}}}, nil, 0)

	loop := newLoop(provider, ext, permission.ModeAuto)
	run := loop.Run(context.Background(), []agentmodel.Message{
		agentmodel.Text(agentmodel.RoleUser, time.Now(), "do both"),
	}, agent.SessionConfig{})

	got := drain(t, run)
	require.Len(t, got, 3)

	aggregate := got[1]
	require.Len(t, aggregate.Content, 2)

	byID := map[string]agentmodel.ToolResponsePart{}
	for _, part := range aggregate.Content {
		rp := part.(agentmodel.ToolResponsePart)
		byID[rp.ID] = rp
	}

	require.Empty(t, byID["a1"].Error)
	require.Equal(t, "a done", byID["a1"].Content[0].Text)

	require.NotEmpty(t, byID["b1"].Error)
	require.Contains(t, byID["b1"].Error, "extension B crashed")

	require.Equal(t, "continuing", textOf(t, got[2]))
}
