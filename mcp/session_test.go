package mcp

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// pipeTransport connects a Session directly to an in-process fake server
// over an io.Pipe, avoiding a real subprocess or HTTP listener in tests.
type pipeTransport struct{ *lineTransport }

func newPipePair() (*pipeTransport, *pipeTransport) {
	clientR, serverW := io.Pipe()
	serverR, clientW := io.Pipe()
	client := &pipeTransport{newLineTransport(clientW, clientR, clientW)}
	server := &pipeTransport{newLineTransport(serverW, serverR, serverW)}
	return client, server
}

// fakeServer replies to initialize and tools/call requests read off a
// transport, simulating the other end of an MCP session.
func fakeServer(t *testing.T, transport Transport) {
	t.Helper()
	go func() {
		for {
			f, err := transport.Recv()
			if err != nil {
				return
			}
			switch f.Method {
			case "initialize":
				result, _ := json.Marshal(ServerInfo{Name: "fake", ProtocolVersion: protocolVersion})
				_ = transport.Send(Frame{JSONRPC: "2.0", ID: f.ID, Result: result})
			case "notifications/initialized":
				// no response expected
			case "tools/call":
				result, _ := json.Marshal(CallToolResult{Content: []ContentBlock{{Type: "text", Text: "ok"}}})
				_ = transport.Send(Frame{JSONRPC: "2.0", ID: f.ID, Result: result})
			default:
				_ = transport.Send(Frame{JSONRPC: "2.0", ID: f.ID, Error: &RPCErrorObject{Code: JSONRPCMethodNotFound, Message: "unknown method"}})
			}
		}
	}()
}

func TestSessionInitializeAndCallTool(t *testing.T) {
	client, server := newPipePair()
	fakeServer(t, server)
	sess := NewSession("test", client)
	defer sess.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	info, err := sess.Initialize(ctx, ClientInfo{Name: "agentforge", Version: "test"})
	require.NoError(t, err)
	require.Equal(t, "fake", info.Name)

	result, err := sess.CallTool(ctx, "echo", json.RawMessage(`{"message":"hi"}`))
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	require.Equal(t, "ok", result.Content[0].Text)
}

func TestSessionRPCError(t *testing.T) {
	client, server := newPipePair()
	fakeServer(t, server)
	sess := NewSession("test", client)
	defer sess.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := sess.ListPrompts(ctx, "")
	require.Error(t, err)
}

func TestSessionShutdownRejectsSubsequentCalls(t *testing.T) {
	client, server := newPipePair()
	fakeServer(t, server)
	sess := NewSession("test", client)
	sess.Shutdown()

	ctx := context.Background()
	_, err := sess.CallTool(ctx, "echo", nil)
	require.Error(t, err)
	require.True(t, sess.Closed())
}

// failAfterTransport wraps a Transport and makes every Send after the
// first failAfter calls return an error, simulating a connection that dies
// mid-session rather than one that was never usable.
type failAfterTransport struct {
	Transport
	failAfter int
	sent      int
}

func (t *failAfterTransport) Send(f Frame) error {
	t.sent++
	if t.sent > t.failAfter {
		return io.ErrClosedPipe
	}
	return t.Transport.Send(f)
}

func TestSessionCallUnblocksWhenSendFails(t *testing.T) {
	client, server := newPipePair()
	fakeServer(t, server)
	flaky := &failAfterTransport{Transport: client, failAfter: 2}
	sess := NewSession("test", flaky)
	defer sess.Shutdown()

	ctx := context.Background()
	_, err := sess.Initialize(ctx, ClientInfo{Name: "agentforge", Version: "test"})
	require.NoError(t, err)

	// The context passed here has no deadline; before the fix this call
	// would hang forever once Send started failing instead of resolving
	// with the transport error.
	done := make(chan struct{})
	var callErr error
	go func() {
		_, callErr = sess.CallTool(ctx, "echo", nil)
		close(done)
	}()

	select {
	case <-done:
		require.Error(t, callErr)
	case <-time.After(2 * time.Second):
		t.Fatal("CallTool did not unblock after Send failed")
	}
	require.True(t, sess.Closed())
}

func TestSessionMonotonicIDs(t *testing.T) {
	client, server := newPipePair()
	fakeServer(t, server)
	sess := NewSession("test", client)
	defer sess.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := sess.Initialize(ctx, ClientInfo{Name: "agentforge", Version: "test"})
	require.NoError(t, err)

	first := sess.nextID.Add(1)
	second := sess.nextID.Add(1)
	require.Greater(t, second, first)
}
