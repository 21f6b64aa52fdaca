package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// EventType classifies transport lifecycle events.
type EventType int

const (
	// EventOpened fires once the server accepted the exchange.
	EventOpened EventType = iota
	// EventRecord delivers one raw stream record, in server order.
	EventRecord
	// EventClosed fires when the server ended the stream normally.
	EventClosed
	// EventError reports a transport-level failure; terminal.
	EventError
)

// TransportEvent is one callback from an open exchange.
type TransportEvent struct {
	Type EventType
	Data string
	Err  error
}

// Request is the outbound exchange body. ConversationID may be provisional;
// the server answers with the canonical id inside the stream.
type Request struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id"`
}

// Client opens streaming exchanges against the remote inference endpoint.
// It carries no business logic; one Open call maps to one HTTP request
// whose response body is an unbounded server-push record stream.
type Client struct {
	endpoint string
	token    string
	httpc    *http.Client
}

// NewClient builds a transport client. headerTimeout bounds the wait for
// response headers only; the stream itself has no protocol timeout, a stall
// surfaces as a transport error from the connection layer.
func NewClient(endpoint, token string, headerTimeout time.Duration) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = headerTimeout
	return &Client{
		endpoint: endpoint,
		token:    token,
		httpc:    &http.Client{Transport: transport},
	}
}

// Handle represents one in-flight exchange.
type Handle struct {
	events    chan TransportEvent
	cancel    context.CancelFunc
	cancelled atomic.Bool
	once      sync.Once
}

// Events exposes the ordered event stream. The channel closes after the
// terminal event, or silently after Cancel.
func (h *Handle) Events() <-chan TransportEvent {
	return h.events
}

// Cancel aborts the exchange. Idempotent; events observed by the reader
// after cancellation are dropped, never delivered.
func (h *Handle) Cancel() {
	h.once.Do(func() {
		h.cancelled.Store(true)
		h.cancel()
	})
}

func (h *Handle) emit(ctx context.Context, ev TransportEvent) bool {
	if h.cancelled.Load() {
		return false
	}
	select {
	case h.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Open initiates the exchange without blocking the caller. Network I/O and
// event delivery happen on a dedicated reader goroutine.
func (c *Client) Open(ctx context.Context, req Request) (*Handle, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal stream request: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Cache-Control", "no-cache")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	h := &Handle{
		events: make(chan TransportEvent, 16),
		cancel: cancel,
	}
	go c.run(ctx, httpReq, h)
	return h, nil
}

func (c *Client) run(ctx context.Context, httpReq *http.Request, h *Handle) {
	defer close(h.events)
	defer h.cancel()

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		h.emit(ctx, TransportEvent{Type: EventError, Err: err})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		h.emit(ctx, TransportEvent{Type: EventError, Err: fmt.Errorf("unexpected upstream status: %d", resp.StatusCode)})
		return
	}

	if !h.emit(ctx, TransportEvent{Type: EventOpened}) {
		return
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if h.cancelled.Load() {
			return
		}
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			// comment lines, event names and blank separators carry nothing here
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if !h.emit(ctx, TransportEvent{Type: EventRecord, Data: payload}) {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if h.cancelled.Load() || ctx.Err() != nil {
			return
		}
		h.emit(ctx, TransportEvent{Type: EventError, Err: err})
		return
	}
	h.emit(ctx, TransportEvent{Type: EventClosed})
}
