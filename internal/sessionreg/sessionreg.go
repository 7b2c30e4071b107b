// Package sessionreg implements the server-side session registry: id
// generation, lookup, and timeout-driven sweep eviction.
package sessionreg

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/relaymcp/relaymcp/internal/protocol"
)

// livenessTicks is how many sweep ticks a session survives with no
// traffic before eviction: set on creation and on every touch, then
// decremented each sweep; a session is erased on the tick its counter
// reaches zero, so it survives exactly one silent tick and is evicted on
// the second, matching the original server's is_alive counter.
const livenessTicks = 2

// Session is one live MCP connection's server-side state.
type Session struct {
	ID          string
	CreatedAt   time.Time
	TraceID     string
	Roots       []protocol.Root
	LogLevel    string
	Initialized bool

	mu         sync.Mutex
	alive      int
	inFlightID []byte
}

// Registry tracks live sessions and sweeps out stale ones.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// New returns an empty session registry.
func New() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// NewID returns a cryptographically random, URL-safe session id with 256
// bits of entropy, comfortably over the minimum 128-bit requirement.
func NewID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Create registers a new session and returns it.
func (r *Registry) Create(id, traceID string) *Session {
	s := &Session{ID: id, CreatedAt: time.Now(), TraceID: traceID, alive: livenessTicks}
	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	return s
}

// Get returns the named session and marks it as alive for the current
// sweep window, or (nil, false) if it doesn't exist.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		s.mu.Lock()
		s.alive = livenessTicks
		s.mu.Unlock()
	}
	return s, ok
}

// Delete removes a session, e.g. on an explicit client DELETE.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Sweep decrements every session's liveness counter and evicts any that
// reach zero, returning the evicted ids so callers can release their
// transport-side resources (SSE streams, pending notifications).
func (r *Registry) Sweep() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []string
	for id, s := range r.sessions {
		s.mu.Lock()
		s.alive--
		dead := s.alive <= 0
		s.mu.Unlock()
		if dead {
			delete(r.sessions, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// Run sweeps the registry on every tick, returning when tick is closed.
func (r *Registry) Run(tick <-chan time.Time, onEvict func(id string)) {
	for range tick {
		for _, id := range r.Sweep() {
			if onEvict != nil {
				onEvict(id)
			}
		}
	}
}

// SetInFlight records the JSON-RPC id of the request currently being
// serviced on this session, so streamed notifications and the eventual
// response/error can carry the correct id.
func (s *Session) SetInFlight(id []byte) {
	s.mu.Lock()
	s.inFlightID = id
	s.mu.Unlock()
}

// InFlight returns the currently recorded in-flight request id, or nil.
func (s *Session) InFlight() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlightID
}

// ClearInFlight drops the in-flight id once a final response has been
// sent for it.
func (s *Session) ClearInFlight() {
	s.mu.Lock()
	s.inFlightID = nil
	s.mu.Unlock()
}
