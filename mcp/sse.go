package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// SSETransport implements Transport over the MCP HTTP+SSE wire format: a
// persistent GET stream delivers an initial "endpoint" event naming the URL
// subsequent requests POST to, then delivers every response and
// notification as "message" events on that same stream. Framing logic is
// generalized from the teacher's one-shot readSSEEvent scanner into a
// persistent multiplexed reader.
type SSETransport struct {
	client  *http.Client
	headers http.Header
	postURL string
	stream  io.ReadCloser
	reader  *bufio.Reader
	cancel  context.CancelFunc
}

// NewSSETransport connects to sseURL, waits for the server's "endpoint"
// event, and returns a transport ready for Send/Recv.
func NewSSETransport(ctx context.Context, sseURL string, headers http.Header) (*SSETransport, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, sseURL, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build sse request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	otel.GetTextMapPropagator().Inject(streamCtx, propagation.HeaderCarrier(req.Header))

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("dial sse endpoint: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("sse endpoint status %d: %s", resp.StatusCode, string(raw))
	}

	t := &SSETransport{
		client:  client,
		headers: headers,
		stream:  resp.Body,
		reader:  bufio.NewReader(resp.Body),
		cancel:  cancel,
	}

	event, data, err := readSSEEvent(t.reader)
	if err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("read endpoint event: %w", err)
	}
	if event != "endpoint" {
		_ = t.Close()
		return nil, fmt.Errorf("expected endpoint event, got %q", event)
	}
	postURL, err := resolvePostURL(sseURL, strings.TrimSpace(string(data)))
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	t.postURL = postURL
	return t, nil
}

func resolvePostURL(sseURL, endpoint string) (string, error) {
	base, err := url.Parse(sseURL)
	if err != nil {
		return "", fmt.Errorf("parse sse url: %w", err)
	}
	ref, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint event: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

// Send POSTs f to the server-provided endpoint. The response carries no
// body of interest; the actual reply arrives later as a "message" event on
// the SSE stream.
func (t *SSETransport) Send(f Frame) error {
	body, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, t.postURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build post request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range t.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	injectTraceHeaders(req.Context(), req.Header)
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("post frame: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("post frame status %d: %s", resp.StatusCode, string(raw))
	}
	return nil
}

// Recv blocks until the next "message" event arrives on the SSE stream and
// decodes it as a Frame. Comment and notification-only events are skipped.
func (t *SSETransport) Recv() (Frame, error) {
	for {
		event, data, err := readSSEEvent(t.reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Frame{}, io.ErrUnexpectedEOF
			}
			return Frame{}, err
		}
		switch event {
		case "message", "":
			var f Frame
			if err := json.Unmarshal(data, &f); err != nil {
				return Frame{}, fmt.Errorf("decode sse frame: %w", err)
			}
			return f, nil
		default:
			continue
		}
	}
}

// Close terminates the SSE stream.
func (t *SSETransport) Close() error {
	t.cancel()
	return t.stream.Close()
}

// readSSEEvent reads one event from an SSE stream, accumulating multi-line
// "data:" fields and returning the event name plus joined data payload.
// Generalized from the teacher's single-shot response scanner into a
// reusable reader for a persistent stream.
func readSSEEvent(reader *bufio.Reader) (string, []byte, error) {
	var event string
	var data []byte
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if event == "" && len(data) == 0 {
				continue
			}
			return event, data, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if after, ok := strings.CutPrefix(line, "event:"); ok {
			event = strings.TrimSpace(after)
			continue
		}
		if after, ok := strings.CutPrefix(line, "data:"); ok {
			chunk := strings.TrimPrefix(after, " ")
			if len(data) > 0 {
				data = append(data, '\n')
			}
			data = append(data, chunk...)
			continue
		}
	}
}
