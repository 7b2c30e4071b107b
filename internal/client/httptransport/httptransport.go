// Package httptransport is the client-side Streamable HTTP transport:
// every Send issues a POST whose response body is read as an SSE stream,
// with each "data:" frame forwarded to the caller as it arrives.
package httptransport

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// SessionIDHeader matches the server side's header name.
const SessionIDHeader = "Mcp-Session-Id"

// ErrAuthRequired is returned when the server answers 401; callers
// should run the authorization subsystem and retry once.
var ErrAuthRequired = fmt.Errorf("authorization required")

// TokenProvider returns the current bearer token to attach, or "" if
// none is available yet.
type TokenProvider func() string

// Transport speaks the client side of the Streamable HTTP transport.
type Transport struct {
	URL   string
	Token TokenProvider

	client    *http.Client
	sessionMu sync.Mutex
	sessionID string

	frames chan []byte
	errc   chan error
}

// New returns a transport posting to url, optionally attaching a bearer
// token from token on every request.
func New(url string, token TokenProvider) *Transport {
	return &Transport{
		URL:    url,
		Token:  token,
		client: &http.Client{},
		frames: make(chan []byte, 16),
		errc:   make(chan error, 1),
	}
}

// Send POSTs frame and streams the SSE response back onto Frames.
func (t *Transport) Send(frame []byte) error {
	req, err := http.NewRequest(http.MethodPost, t.URL, bytes.NewReader(frame))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	t.sessionMu.Lock()
	sid := t.sessionID
	t.sessionMu.Unlock()
	if sid != "" {
		req.Header.Set(SessionIDHeader, sid)
	}
	if t.Token != nil {
		if tok := t.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return ErrAuthRequired
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if newSID := resp.Header.Get(SessionIDHeader); newSID != "" {
		t.sessionMu.Lock()
		t.sessionID = newSID
		t.sessionMu.Unlock()
	}

	go t.readSSE(resp.Body)
	return nil
}

func (t *Transport) readSSE(body io.ReadCloser) {
	defer body.Close()
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		t.frames <- []byte(data)
	}
}

// Frames returns the channel of decoded SSE "data:" payloads.
func (t *Transport) Frames() <-chan []byte { return t.frames }

// Close is a no-op: the underlying http.Client has no persistent
// connection state this transport owns beyond per-request bodies,
// already closed by readSSE.
func (t *Transport) Close() error { return nil }
