package server

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/relaymcp/relaymcp/internal/registry"
	"github.com/relaymcp/relaymcp/internal/transport/stdio"
)

// pipeHarness wires a Server to a stdio transport over in-memory pipes,
// so a test can drive the wire protocol end to end without a real
// process boundary.
type pipeHarness struct {
	toServer   *io.PipeWriter
	fromServer *bufio.Reader
	done       chan error
}

func newHarness(t *testing.T) *pipeHarness {
	t.Helper()
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	srv := New("test-server", "0.0.1", &slog.LevelVar{})
	srv.AddTool(registry.Tool{
		Name: "echo",
		InputSchema: []registry.PropertySpec{
			{Name: "text", Type: registry.PropertyString, Required: true},
		},
		Handle: func(sessionID string, args map[string]string, notify func([]registry.ContentItem)) ([]registry.ContentItem, error) {
			return []registry.ContentItem{{Text: args["text"]}}, nil
		},
	})

	tr := stdio.New(inR, outW)
	done := make(chan error, 1)
	go func() { done <- srv.Run(tr) }()

	h := &pipeHarness{toServer: inW, fromServer: bufio.NewReader(outR), done: done}
	t.Cleanup(func() { inW.Close() })
	return h
}

func (h *pipeHarness) send(t *testing.T, frame string) {
	t.Helper()
	if _, err := h.toServer.Write([]byte(frame + "\n")); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func (h *pipeHarness) readFrame(t *testing.T) map[string]any {
	t.Helper()
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := h.fromServer.ReadString('\n')
		ch <- result{line, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			t.Fatalf("read frame: %v", r.err)
		}
		var decoded map[string]any
		if err := json.Unmarshal([]byte(r.line), &decoded); err != nil {
			t.Fatalf("unmarshal frame %q: %v", r.line, err)
		}
		return decoded
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a response frame")
		return nil
	}
}

func TestEndToEndInitializeListAndCall(t *testing.T) {
	h := newHarness(t)

	h.send(t, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","clientInfo":{"name":"t","version":"1"}}}`)
	initResp := h.readFrame(t)
	if initResp["id"].(float64) != 1 {
		t.Fatalf("unexpected id in initialize response: %v", initResp["id"])
	}

	h.send(t, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)

	h.send(t, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	listResp := h.readFrame(t)
	result := listResp["result"].(map[string]any)
	tools := result["tools"].([]any)
	if len(tools) != 1 {
		t.Fatalf("expected 1 registered tool, got %d", len(tools))
	}

	h.send(t, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo","arguments":{"text":"hi there"}}}`)
	callResp := h.readFrame(t)
	if callResp["id"].(float64) != 3 {
		t.Fatalf("expected final response to carry request id 3, got %v", callResp["id"])
	}
	content := callResp["result"].(map[string]any)["content"].([]any)
	first := content[0].(map[string]any)
	if first["text"] != "hi there" {
		t.Fatalf("unexpected echoed text: %v", first["text"])
	}
}

func TestEndToEndUnknownMethodReturnsMethodNotFound(t *testing.T) {
	h := newHarness(t)

	h.send(t, `{"jsonrpc":"2.0","id":1,"method":"nonexistent/method"}`)
	resp := h.readFrame(t)
	errObj, ok := resp["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected an error response, got %v", resp)
	}
	if errObj["code"].(float64) != -32601 {
		t.Fatalf("expected method not found code, got %v", errObj["code"])
	}
}

func TestEndToEndPingRoundTrip(t *testing.T) {
	h := newHarness(t)

	h.send(t, `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	resp := h.readFrame(t)
	if resp["id"].(float64) != 1 {
		t.Fatalf("unexpected ping response: %v", resp)
	}
	if _, ok := resp["result"]; !ok {
		t.Fatalf("expected a result object in the ping response")
	}
}
