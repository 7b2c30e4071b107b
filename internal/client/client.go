// Package client implements the MCP client façade: Initialize, ToolsList,
// and ToolsCall over any Transport, correlating streamed notifications
// and final responses by JSON-RPC request id.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/relaymcp/relaymcp/internal/protocol"
)

// Transport is the client-side wire abstraction: Send writes one frame,
// Frames delivers every frame received back (responses, errors, and
// notifications, undifferentiated), Close tears the connection down.
type Transport interface {
	Send(frame []byte) error
	Frames() <-chan []byte
	Close() error
}

// NotificationFunc receives one streamed tool notification's raw params.
// Returning false abandons further streaming: the client stops invoking
// the callback again for the remainder of the call, but still waits for
// and returns the final response.
type NotificationFunc func(method string, params json.RawMessage) bool

// Client is a single MCP session's request/response/notification
// correlation layer, independent of which Transport it rides on.
type Client struct {
	t      Transport
	nextID uint64

	mu              sync.Mutex
	pending         map[uint64]chan frameResult
	activeNotify    NotificationFunc
	notifyAbandoned bool

	done chan struct{}
}

type frameResult struct {
	result json.RawMessage
	err    *protocol.RPCError
}

// New wraps t, starting the background read loop that demultiplexes
// incoming frames to waiting callers.
func New(t Transport) *Client {
	c := &Client{
		t:       t,
		pending: make(map[uint64]chan frameResult),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	defer close(c.done)
	for frame := range c.t.Frames() {
		c.handleFrame(frame)
	}
}

func (c *Client) handleFrame(frame []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return
	}

	if env.HasMethod() {
		// Server-initiated notifications carry no id; only one
		// tools/call can be in flight per session in this core, so the
		// currently registered callback is the only plausible target.
		c.mu.Lock()
		notify := c.activeNotify
		abandoned := c.notifyAbandoned
		c.mu.Unlock()
		if notify != nil && !abandoned {
			if !notify(env.Method, env.Params) {
				c.mu.Lock()
				c.notifyAbandoned = true
				c.mu.Unlock()
			}
		}
		return
	}

	if !env.HasID() {
		return
	}

	var id uint64
	if err := json.Unmarshal(env.ID, &id); err != nil {
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		return
	}

	if env.Error != nil {
		ch <- frameResult{err: env.Error}
		return
	}
	ch <- frameResult{result: env.Result}
}

func (c *Client) nextRequestID() uint64 {
	return atomic.AddUint64(&c.nextID, 1)
}

// call sends a request and waits for exactly one reply. Streaming tool
// calls go through call too: notifications that arrive before the reply
// are handed to the active NotificationFunc by the read loop.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := c.nextRequestID()
	ch := make(chan frameResult, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	frame, err := c.encodeRequest(id, method, params)
	if err != nil {
		return nil, err
	}
	if err := c.t.Send(frame); err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		return res.result, nil
	}
}

func (c *Client) encodeRequest(id uint64, method string, params any) ([]byte, error) {
	idJSON, _ := json.Marshal(id)
	var paramsJSON json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		paramsJSON = b
	}
	req := protocol.Request{JSONRPC: "2.0", ID: idJSON, Method: method, Params: paramsJSON}
	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return b, nil
}

// Initialize performs the MCP handshake.
func (c *Client) Initialize(ctx context.Context, clientName, clientVersion string) (*protocol.InitializeResult, error) {
	params := protocol.InitializeParams{
		ProtocolVersion: protocol.ProtocolVersion,
		ClientInfo:      protocol.ClientInfo{Name: clientName, Version: clientVersion},
	}
	raw, err := c.call(ctx, "initialize", params)
	if err != nil {
		return nil, err
	}
	var result protocol.InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode initialize result: %w", err)
	}
	if err := c.notify(ctx, "notifications/initialized", nil); err != nil {
		return nil, err
	}
	return &result, nil
}

// notify sends a fire-and-forget JSON-RPC notification (no id, no
// reply expected).
func (c *Client) notify(_ context.Context, method string, params any) error {
	var paramsJSON json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal notification params: %w", err)
		}
		paramsJSON = b
	}
	note := protocol.Notification{JSONRPC: "2.0", Method: method, Params: paramsJSON}
	b, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return c.t.Send(b)
}

// Ping issues a liveness check.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, "ping", nil)
	return err
}

// SetLoggingLevel requests the server adjust its log verbosity.
func (c *Client) SetLoggingLevel(ctx context.Context, level string) error {
	_, err := c.call(ctx, "logging/setLevel", protocol.LoggingSetLevelParams{Level: level})
	return err
}

// ToolDescriptor is one entry of a "tools/list" response.
type ToolDescriptor struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	InputSchema  json.RawMessage `json:"inputSchema"`
	OutputSchema json.RawMessage `json:"outputSchema,omitempty"`
}

// ToolsList returns every tool the server currently advertises.
func (c *Client) ToolsList(ctx context.Context) ([]ToolDescriptor, error) {
	raw, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var result struct {
		Tools []ToolDescriptor `json:"tools"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode tools/list result: %w", err)
	}
	return result.Tools, nil
}

// ToolsCall invokes a tool. Any notifications the server streams before
// its final response are delivered to notify as they arrive; the
// returned content is the final response's payload.
func (c *Client) ToolsCall(ctx context.Context, name string, arguments map[string]string, notify NotificationFunc) ([]protocol.ContentItem, json.RawMessage, error) {
	c.mu.Lock()
	c.activeNotify = notify
	c.notifyAbandoned = false
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.activeNotify = nil
		c.notifyAbandoned = false
		c.mu.Unlock()
	}()

	raw, err := c.call(ctx, "tools/call", protocol.ToolsCallParams{Name: name, Arguments: arguments})
	if err != nil {
		return nil, nil, err
	}
	var result struct {
		Content           []protocol.ContentItem `json:"content"`
		StructuredContent json.RawMessage        `json:"structuredContent,omitempty"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, nil, fmt.Errorf("decode tools/call result: %w", err)
	}
	return result.Content, result.StructuredContent, nil
}

// Close shuts the underlying transport down and waits for the read loop
// to drain.
func (c *Client) Close() error {
	err := c.t.Close()
	<-c.done
	return err
}
