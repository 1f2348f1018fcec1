package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/agentforge/core/agenterr"
	"github.com/agentforge/core/telemetry"
)

const protocolVersion = "2024-11-05"

// outbound is a pending write: either a request awaiting a correlated
// response (resultCh non-nil) or a notification (resultCh nil, fire and
// forget).
type outbound struct {
	frame    Frame
	resultCh chan Frame
}

// Session owns a Transport and turns it into a reliable, multiplexed
// request/response and notification channel. A single background goroutine
// (run) is the only writer of the transport and, through one helper
// goroutine it starts, its only reader, matching responses to callers by
// monotonically increasing request id.
type Session struct {
	name      string
	transport Transport
	logger    telemetry.Logger
	tracer    telemetry.Tracer

	nextID  atomic.Uint64
	closed  atomic.Bool
	closeCh chan struct{}
	sendCh  chan outbound

	mu       sync.Mutex
	pending  map[uint64]chan Frame
	closeErr error

	doneCh chan struct{}
}

// Option configures a Session at construction.
type Option func(*Session)

// WithLogger overrides the session's logger; the default discards output.
func WithLogger(l telemetry.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithTracer overrides the session's tracer; the default creates no spans.
func WithTracer(t telemetry.Tracer) Option {
	return func(s *Session) { s.tracer = t }
}

// NewSession starts a background multiplexing goroutine over transport.
// name identifies the owning extension for error messages and telemetry.
func NewSession(name string, transport Transport, opts ...Option) *Session {
	s := &Session{
		name:      name,
		transport: transport,
		logger:    telemetry.NewNoopLogger(),
		tracer:    telemetry.NewNoopTracer(),
		closeCh:   make(chan struct{}),
		sendCh:    make(chan outbound),
		pending:   make(map[uint64]chan Frame),
		doneCh:    make(chan struct{}),
	}
	go s.run()
	return s
}

// run is the session's single writer of the transport; the helper goroutine
// it starts is the only reader. It multiplexes three event sources: outbound writes requested by API calls,
// inbound frames read from the transport, and the shutdown signal.
func (s *Session) run() {
	defer close(s.doneCh)

	recvCh := make(chan Frame)
	recvErrCh := make(chan error, 1)
	go func() {
		for {
			f, err := s.transport.Recv()
			if err != nil {
				recvErrCh <- err
				return
			}
			recvCh <- f
		}
	}()

	for {
		select {
		case ob := <-s.sendCh:
			if err := s.transport.Send(ob.frame); err != nil {
				s.failAll(&agenterr.Transport{Op: "send", Cause: err})
				return
			}
			if ob.resultCh != nil && ob.frame.ID != nil {
				s.mu.Lock()
				s.pending[*ob.frame.ID] = ob.resultCh
				s.mu.Unlock()
			}

		case f := <-recvCh:
			if f.IsResponse() {
				s.resolve(*f.ID, f)
			}
			// Notifications are dropped at this layer; a concrete host may
			// subscribe to them via a future extension of this session.

		case err := <-recvErrCh:
			s.failAll(&agenterr.Transport{Op: "recv", Cause: err})
			return

		case <-s.closeCh:
			s.failAll(&agenterr.SessionClosed{Extension: s.name})
			return
		}
	}
}

func (s *Session) resolve(id uint64, f Frame) {
	s.mu.Lock()
	ch, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()
	if ok {
		ch <- f
	}
}

func (s *Session) failAll(cause error) {
	s.closed.Store(true)
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[uint64]chan Frame)
	s.closeErr = cause
	s.mu.Unlock()
	errFrame := Frame{Error: &RPCErrorObject{Code: JSONRPCInternalError, Message: cause.Error()}}
	for _, ch := range pending {
		ch <- errFrame
	}
	_ = s.transport.Close()
}

// call sends a request frame and blocks until its matching response
// arrives, the session closes, or ctx is canceled.
func (s *Session) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if s.closed.Load() {
		return nil, &agenterr.SessionClosed{Extension: s.name}
	}
	id := s.nextID.Add(1)
	resultCh := make(chan Frame, 1)
	req := Frame{JSONRPC: "2.0", ID: &id, Method: method, Params: params}

	select {
	case s.sendCh <- outbound{frame: req, resultCh: resultCh}:
	case <-s.doneCh:
		return nil, &agenterr.SessionClosed{Extension: s.name}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case resp := <-resultCh:
		if resp.ID == nil {
			// failAll's drain frame carries no id: report the closing cause.
			return nil, s.closeCause()
		}
		if resp.Error != nil {
			return nil, &agenterr.RPCError{Code: resp.Error.Code, Message: resp.Error.Message}
		}
		return resp.Result, nil
	case <-s.doneCh:
		// The send that would have registered resultCh into pending may
		// itself have been what caused run() to exit (a failed Send never
		// reaches the registration step), so resultCh can be orphaned with
		// nothing left to resolve it. Watching doneCh here guarantees this
		// call still unblocks with the session's closing cause instead of
		// hanging until ctx's deadline, or forever if it has none.
		return nil, s.closeCause()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// closeCause returns the error that caused the session to close, falling
// back to a generic SessionClosed if run() exited before recording one.
func (s *Session) closeCause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeErr != nil {
		return s.closeErr
	}
	return &agenterr.SessionClosed{Extension: s.name}
}

// notify sends a notification frame (no id, no response expected).
func (s *Session) notify(ctx context.Context, method string, params any) error {
	if s.closed.Load() {
		return &agenterr.SessionClosed{Extension: s.name}
	}
	frame := Frame{JSONRPC: "2.0", Method: method, Params: params}
	select {
	case s.sendCh <- outbound{frame: frame}:
		return nil
	case <-s.doneCh:
		return &agenterr.SessionClosed{Extension: s.name}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Initialize performs the MCP handshake: an initialize request followed by
// the notifications/initialized notification. It must be the first call
// made on a session.
func (s *Session) Initialize(ctx context.Context, info ClientInfo) (ServerInfo, error) {
	ctx, span := s.tracer.Start(ctx, "mcp.initialize")
	defer span.End()

	params := map[string]any{
		"protocolVersion": protocolVersion,
		"clientInfo":      info,
		"capabilities":    ClientCapabilities{},
	}
	raw, err := s.call(ctx, "initialize", params)
	if err != nil {
		span.RecordError(err)
		return ServerInfo{}, err
	}
	var server ServerInfo
	if err := json.Unmarshal(raw, &server); err != nil {
		return ServerInfo{}, fmt.Errorf("decode initialize result: %w", err)
	}
	if err := s.notify(ctx, "notifications/initialized", nil); err != nil {
		return ServerInfo{}, err
	}
	return server, nil
}

// ListTools returns one page of the server's tool catalog.
func (s *Session) ListTools(ctx context.Context, cursor string) (PagedTools, error) {
	ctx, span := s.tracer.Start(ctx, "mcp.list_tools")
	defer span.End()
	params := map[string]any{}
	if cursor != "" {
		params["cursor"] = cursor
	}
	raw, err := s.call(ctx, "tools/list", params)
	if err != nil {
		span.RecordError(err)
		return PagedTools{}, err
	}
	var out PagedTools
	return out, json.Unmarshal(raw, &out)
}

// ListResources returns one page of the server's resource catalog.
func (s *Session) ListResources(ctx context.Context, cursor string) (PagedResources, error) {
	ctx, span := s.tracer.Start(ctx, "mcp.list_resources")
	defer span.End()
	params := map[string]any{}
	if cursor != "" {
		params["cursor"] = cursor
	}
	raw, err := s.call(ctx, "resources/list", params)
	if err != nil {
		span.RecordError(err)
		return PagedResources{}, err
	}
	var out PagedResources
	return out, json.Unmarshal(raw, &out)
}

// ListPrompts returns one page of the server's prompt catalog.
func (s *Session) ListPrompts(ctx context.Context, cursor string) (json.RawMessage, error) {
	ctx, span := s.tracer.Start(ctx, "mcp.list_prompts")
	defer span.End()
	params := map[string]any{}
	if cursor != "" {
		params["cursor"] = cursor
	}
	raw, err := s.call(ctx, "prompts/list", params)
	if err != nil {
		span.RecordError(err)
	}
	return raw, err
}

// ReadResource fetches the contents of a single resource by URI.
func (s *Session) ReadResource(ctx context.Context, uri string) (ResourceContents, error) {
	ctx, span := s.tracer.Start(ctx, "mcp.read_resource")
	defer span.End()
	raw, err := s.call(ctx, "resources/read", map[string]any{"uri": uri})
	if err != nil {
		span.RecordError(err)
		return ResourceContents{}, err
	}
	var wrapper struct {
		Contents []ResourceContents `json:"contents"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return ResourceContents{}, fmt.Errorf("decode resources/read result: %w", err)
	}
	if len(wrapper.Contents) == 0 {
		return ResourceContents{URI: uri}, nil
	}
	return wrapper.Contents[0], nil
}

// CallTool invokes a tool by its local name (unprefixed) with the given
// JSON-encoded arguments, propagating the current trace context in the
// request's _meta field.
func (s *Session) CallTool(ctx context.Context, localName string, args json.RawMessage) (CallToolResult, error) {
	ctx, span := s.tracer.Start(ctx, "mcp.call_tool")
	defer span.End()

	params := map[string]any{"name": localName, "arguments": args}
	addTraceMeta(ctx, params)

	raw, err := s.call(ctx, "tools/call", params)
	if err != nil {
		span.RecordError(err)
		return CallToolResult{}, err
	}
	var out CallToolResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return CallToolResult{}, fmt.Errorf("decode tools/call result: %w", err)
	}
	return out, nil
}

// Shutdown idempotently closes the session, resolving any pending requests
// with SessionClosed and stopping the background goroutine.
func (s *Session) Shutdown() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.closeCh)
	}
	<-s.doneCh
}

// Closed reports whether the session has latched closed.
func (s *Session) Closed() bool { return s.closed.Load() }
