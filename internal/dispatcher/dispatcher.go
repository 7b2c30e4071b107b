// Package dispatcher implements the MCP method table: decoding an
// inbound JSON-RPC frame, routing it to the matching handler, and
// encoding the response or error frame to send back.
package dispatcher

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/relaymcp/relaymcp/internal/protocol"
	"github.com/relaymcp/relaymcp/internal/registry"
	"github.com/relaymcp/relaymcp/internal/sessionreg"
)

// Sender writes frames back to a session; satisfied by
// transport.Transport.
type Sender interface {
	Send(sessionID string, frame []byte, finish bool) error
}

// Dispatcher owns the method table and wires the registry and session
// registry together for a running server.
type Dispatcher struct {
	ServerName    string
	ServerVersion string

	Tools    *registry.Registry
	Sessions *sessionreg.Registry
	Send     Sender
	LogLevel func(level string)
}

// Handle decodes one inbound frame for sessionID and dispatches it.
// Parse errors and structurally invalid requests are answered directly;
// everything else goes through the method table. It reports whether
// handling the frame sent any response or notification: false only for
// the bare fire-and-forget notifications, which a request-response
// transport (HTTP) needs to distinguish from a request awaiting a
// reply.
func (d *Dispatcher) Handle(sessionID string, raw []byte) bool {
	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		d.sendError(sessionID, nil, protocol.CodeParseError, "Parse error")
		return true
	}

	if !env.HasMethod() {
		d.sendError(sessionID, nil, protocol.CodeInvalidRequest, "Invalid request")
		return true
	}

	if env.Method == "notifications/initialized" || env.Method == "notifications/cancelled" {
		d.handleNotification(sessionID, env.Method, env.Params)
		return false
	}

	if !env.HasID() {
		d.sendError(sessionID, nil, protocol.CodeInvalidRequest, "Invalid request")
		return true
	}

	session, ok := d.Sessions.Get(sessionID)
	if !ok {
		session = d.Sessions.Create(sessionID, uuid.NewString())
	}
	session.SetInFlight(env.ID)

	switch env.Method {
	case "initialize":
		d.handleInitialize(sessionID, session, env.ID, env.Params)
	case "logging/setLevel":
		d.handleLoggingSetLevel(sessionID, env.ID, env.Params)
	case "ping":
		d.handlePing(sessionID, env.ID)
	case "tools/list":
		d.handleToolsList(sessionID, env.ID)
	case "tools/call":
		d.handleToolsCall(sessionID, session, env.ID, env.Params)
	default:
		d.sendError(sessionID, env.ID, protocol.CodeMethodNotFound, "Method not found")
	}
	return true
}

func (d *Dispatcher) handleNotification(sessionID, method string, params json.RawMessage) {
	slog.Debug("notification received", "session_id", sessionID, "method", method)
}

func (d *Dispatcher) handleInitialize(sessionID string, session *sessionreg.Session, id, params json.RawMessage) {
	var p protocol.InitializeParams
	if len(params) > 0 {
		_ = json.Unmarshal(params, &p)
	}
	session.Roots = p.Roots
	session.Initialized = true

	result := protocol.InitializeResult{
		ProtocolVersion: protocol.ProtocolVersion,
		Capabilities: protocol.Capabilities{
			Logging: map[string]any{},
			Tools:   map[string]any{},
		},
		ServerInfo: protocol.ServerInfo{Name: d.ServerName, Version: d.ServerVersion},
	}
	d.sendResult(sessionID, id, result)
}

func (d *Dispatcher) handleLoggingSetLevel(sessionID string, id, params json.RawMessage) {
	var p protocol.LoggingSetLevelParams
	if len(params) > 0 {
		_ = json.Unmarshal(params, &p)
	}
	if p.Level != "" && d.LogLevel != nil {
		d.LogLevel(p.Level)
	}
	d.sendResult(sessionID, id, map[string]any{})
}

func (d *Dispatcher) handlePing(sessionID string, id json.RawMessage) {
	start := time.Now()
	d.sendResult(sessionID, id, map[string]any{})
	slog.Debug("ping round trip", "session_id", sessionID, "elapsed", time.Since(start))
}

func (d *Dispatcher) handleToolsList(sessionID string, id json.RawMessage) {
	d.sendResult(sessionID, id, map[string]any{"tools": d.Tools.ListPayload()})
}

func (d *Dispatcher) handleToolsCall(sessionID string, session *sessionreg.Session, id, params json.RawMessage) {
	var p protocol.ToolsCallParams
	if len(params) > 0 {
		_ = json.Unmarshal(params, &p)
	}

	tool := d.Tools.Get(p.Name)
	if tool == nil {
		d.sendError(sessionID, id, protocol.CodeInvalidParams, "Unknown tool: invalid_tool_name")
		return
	}

	args, err := tool.ResolveArgs(p.Arguments)
	if err != nil {
		d.sendError(sessionID, id, protocol.CodeInvalidParams, "Unknown tool: missing_required_params")
		return
	}

	notify := func(items []registry.ContentItem) {
		d.sendToolNotification(sessionID, tool, items)
	}

	items, err := tool.Handle(sessionID, args, notify)
	if err != nil {
		d.sendError(sessionID, id, protocol.CodeInternalError, err.Error())
		return
	}
	d.sendToolResult(sessionID, session, tool, items)
}

// sendToolNotification emits one intermediate "notifications/<tool>"
// frame: no id, not the final response, the transport stream stays
// open.
func (d *Dispatcher) sendToolNotification(sessionID string, tool *registry.Tool, items []registry.ContentItem) {
	note := protocol.OutboundNotification{
		JSONRPC: "2.0",
		Method:  "notifications/" + tool.Name,
		Params:  tool.EncodeResult(items),
	}
	frame, err := json.Marshal(note)
	if err != nil {
		slog.Error("marshal tool notification failed", "error", err)
		return
	}
	if err := d.Send.Send(sessionID, frame, false); err != nil {
		slog.Warn("send tool notification failed", "session_id", sessionID, "error", err)
	}
}

// sendToolResult emits the final, id-bearing response for a tools/call
// and clears the session's in-flight correlation state.
func (d *Dispatcher) sendToolResult(sessionID string, session *sessionreg.Session, tool *registry.Tool, items []registry.ContentItem) {
	id := session.InFlight()
	result := tool.EncodeResult(items)
	d.sendResultRaw(sessionID, id, result, true)
	session.ClearInFlight()
}

func (d *Dispatcher) sendResult(sessionID string, id json.RawMessage, result any) {
	b, err := json.Marshal(result)
	if err != nil {
		slog.Error("marshal result failed", "error", err)
		return
	}
	d.sendResultRaw(sessionID, id, b, true)
}

func (d *Dispatcher) sendResultRaw(sessionID string, id json.RawMessage, result json.RawMessage, finish bool) {
	resp := protocol.Response{JSONRPC: "2.0", ID: id, Result: result}
	frame, err := json.Marshal(resp)
	if err != nil {
		slog.Error("marshal response failed", "error", err)
		return
	}
	if err := d.Send.Send(sessionID, frame, finish); err != nil {
		slog.Warn("send failed", "session_id", sessionID, "error", err)
	}
}

func (d *Dispatcher) sendError(sessionID string, id json.RawMessage, code int, message string) {
	errResp := protocol.ErrorResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   protocol.RPCError{Code: code, Message: message},
	}
	frame, err := json.Marshal(errResp)
	if err != nil {
		slog.Error("marshal error response failed", "error", err)
		return
	}
	if err := d.Send.Send(sessionID, frame, true); err != nil {
		slog.Warn("send error failed", "session_id", sessionID, "error", fmt.Sprint(err))
	}
}
