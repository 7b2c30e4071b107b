// Package httpmcp implements the server side of the Streamable HTTP MCP
// transport: every message is a POST whose response body is an SSE
// stream of one or more "data:" frames, terminated when the request
// (and any notifications it produces) is fully answered.
package httpmcp

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relaymcp/relaymcp/internal/sessionreg"
)

// SessionIDHeader is the header name sessions are bound to, matching the
// MCP Streamable HTTP convention.
const SessionIDHeader = "Mcp-Session-Id"

// protectedResourcePath is the discovery endpoint's fixed prefix; it is
// always served (and advertised) suffixed with the server's entry point,
// matching the original server's
// "/.well-known/oauth-protected-resource" + m_entry_point routing.
const protectedResourcePath = "/.well-known/oauth-protected-resource"

// Authenticator validates an inbound bearer token against this server's
// own canonical audience. A nil Authenticator disables auth entirely.
type Authenticator interface {
	Validate(bearerToken string) error
}

// Transport serves the MCP endpoint over HTTP with SSE-streamed
// responses and owns the session registry's lifecycle at the HTTP layer.
type Transport struct {
	Addr                 string
	EntryPoint           string
	CertFile             string
	KeyFile              string
	Auth                 Authenticator
	Sessions             *sessionreg.Registry
	SweepInterval        time.Duration
	AuthorizationServers []string
	ScopesSupported      []string

	recv func(sessionID string, frame []byte) bool

	mu      sync.Mutex
	streams map[string]*responseStream

	srv *http.Server
}

// responseStream is the single in-flight HTTP response body a session's
// current request is being streamed into. The SSE status line and
// headers are written lazily, on the first Send, so a frame that turns
// out to need no response (a bare notification) can still be answered
// 202 Accepted instead.
type responseStream struct {
	w          http.ResponseWriter
	flusher    http.Flusher
	done       chan struct{}
	headerOnce sync.Once
}

func (s *responseStream) writeHeader(sessionID string) {
	s.headerOnce.Do(func() {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set(SessionIDHeader, sessionID)
		s.w.WriteHeader(http.StatusOK)
		s.flusher.Flush()
	})
}

// New constructs a transport listening on addr, serving the MCP endpoint
// at entryPoint (e.g. "/mcp").
func New(addr, entryPoint string, sessions *sessionreg.Registry, auth Authenticator) *Transport {
	return &Transport{
		Addr:          addr,
		EntryPoint:    entryPoint,
		Auth:          auth,
		Sessions:      sessions,
		SweepInterval: 30 * time.Second,
		streams:       make(map[string]*responseStream),
	}
}

// Run starts the HTTP listener and blocks until it's shut down.
func (t *Transport) Run(recv func(sessionID string, frame []byte) bool) error {
	t.recv = recv

	mux := http.NewServeMux()
	mux.HandleFunc(protectedResourcePath+t.EntryPoint, t.handleProtectedResourceMetadata)
	mux.HandleFunc(t.EntryPoint, t.handleEntryPoint)

	t.srv = &http.Server{Addr: t.Addr, Handler: t.withCORS(mux)}

	go t.sweepLoop()

	if t.CertFile != "" && t.KeyFile != "" {
		t.srv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		return t.srv.ListenAndServeTLS(t.CertFile, t.KeyFile)
	}
	if err := t.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http transport: %w", err)
	}
	return nil
}

func (t *Transport) sweepLoop() {
	ticker := time.NewTicker(t.SweepInterval)
	defer ticker.Stop()
	t.Sessions.Run(ticker.C, func(id string) {
		t.closeStream(id)
		slog.Debug("session evicted", "session_id", id)
	})
}

func (t *Transport) withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+SessionIDHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// protectedResourceMetadata is the OAuth 2.0 Protected Resource Metadata
// document (RFC 9728) this server publishes at
// /.well-known/oauth-protected-resource<entrypoint>.
type protectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	ScopesSupported        []string `json:"scopes_supported"`
	BearerMethodsSupported []string `json:"bearer_methods_supported"`
}

func (t *Transport) handleProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	authServers := t.AuthorizationServers
	if authServers == nil {
		authServers = []string{}
	}
	scopes := t.ScopesSupported
	if scopes == nil {
		scopes = []string{}
	}
	doc := protectedResourceMetadata{
		Resource:               t.canonicalURL(r),
		AuthorizationServers:   authServers,
		ScopesSupported:        scopes,
		BearerMethodsSupported: []string{"header"},
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		slog.Error("encode protected resource metadata failed", "error", err)
	}
}

// protectedResourcePath returns the path this server serves (and must
// advertise in 401 challenges) for protected-resource discovery: the
// well-known prefix suffixed with this server's entry point, mirroring
// the original server's "/.well-known/oauth-protected-resource" +
// m_entry_point construction.
func (t *Transport) protectedResourcePath() string {
	return protectedResourcePath + t.EntryPoint
}

// canonicalURL is this endpoint's URL as the request reached it (scheme +
// request host + entry point), published as the discovery document's
// resource. Bearer tokens are checked against the Authenticator's own
// audience, not against this value.
func (t *Transport) canonicalURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + t.EntryPoint
}

func (t *Transport) handleEntryPoint(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		t.handlePost(w, r)
	case http.MethodDelete:
		t.handleDelete(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (t *Transport) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(SessionIDHeader)
	if id != "" {
		t.Sessions.Delete(id)
		t.closeStream(id)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (t *Transport) handlePost(w http.ResponseWriter, r *http.Request) {
	if t.Auth != nil {
		if err := t.Auth.Validate(bearerFrom(r)); err != nil {
			scheme := "http"
			if r.TLS != nil {
				scheme = "https"
			}
			metadataURL := scheme + "://" + r.Host + t.protectedResourcePath()
			w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer resource_metadata=%q`, metadataURL))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	sessionID := r.Header.Get(SessionIDHeader)
	isInitialize := looksLikeInitialize(body)
	if sessionID == "" {
		if !isInitialize {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		sessionID, err = sessionreg.NewID()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		t.Sessions.Create(sessionID, uuid.NewString())
	} else if _, ok := t.Sessions.Get(sessionID); !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	stream := &responseStream{w: w, flusher: flusher, done: make(chan struct{})}
	t.mu.Lock()
	t.streams[sessionID] = stream
	t.mu.Unlock()

	// recv reports whether handling the frame produced a response or
	// notification. A bare notification (e.g. notifications/initialized)
	// produces neither: no SSE stream was ever opened, so answer 202
	// Accepted instead of hanging on a done channel nothing will close.
	if produced := t.recv(sessionID, body); !produced {
		t.closeStream(sessionID)
		w.Header().Set(SessionIDHeader, sessionID)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	<-stream.done
}

// Send writes one SSE "data:" frame for sessionID's current response
// stream; finish closes it out so the HTTP response body ends. The
// response's SSE status line and headers are committed lazily, on the
// first Send, so a frame that turns out to need no response can still
// be answered 202 Accepted from handlePost.
func (t *Transport) Send(sessionID string, frame []byte, finish bool) error {
	t.mu.Lock()
	stream := t.streams[sessionID]
	t.mu.Unlock()
	if stream == nil {
		return fmt.Errorf("no open response stream for session %s", sessionID)
	}

	stream.writeHeader(sessionID)

	if _, err := fmt.Fprintf(stream.w, "event: message\ndata: %s\n\n", frame); err != nil {
		return fmt.Errorf("sse write: %w", err)
	}
	stream.flusher.Flush()

	if finish {
		t.closeStream(sessionID)
	}
	return nil
}

func (t *Transport) closeStream(sessionID string) {
	t.mu.Lock()
	stream := t.streams[sessionID]
	delete(t.streams, sessionID)
	t.mu.Unlock()
	if stream != nil {
		close(stream.done)
	}
}

// Close shuts the HTTP listener down.
func (t *Transport) Close() error {
	if t.srv == nil {
		return nil
	}
	return t.srv.Close()
}

func bearerFrom(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

// looksLikeInitialize does a cheap scan for the initialize method so a
// brand new session can be minted without a full JSON parse on the hot
// path; the dispatcher performs the authoritative parse afterward.
func looksLikeInitialize(body []byte) bool {
	return containsMethod(body, "initialize")
}

func containsMethod(body []byte, method string) bool {
	needle := []byte(`"method":"` + method + `"`)
	return indexOf(body, needle) >= 0 || indexOf(body, []byte(`"method": "`+method+`"`)) >= 0
}

func indexOf(haystack, needle []byte) int {
	n, m := len(haystack), len(needle)
	if m == 0 || m > n {
		return -1
	}
	for i := 0; i+m <= n; i++ {
		if string(haystack[i:i+m]) == string(needle) {
			return i
		}
	}
	return -1
}
