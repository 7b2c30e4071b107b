// Package transport defines the server-side transport contract: how raw
// JSON-RPC frames move between the dispatcher and a connected client,
// independent of whether the wire is a stdio pipe or an HTTP/SSE stream.
package transport

// Transport is implemented once per wire format (stdio, HTTP+SSE).
type Transport interface {
	// Run blocks, reading frames and invoking recv for each one, until
	// the transport is closed or its input is exhausted. recv returns
	// whether processing the frame produced any response or
	// notification Send: false means the frame was a bare
	// fire-and-forget notification, letting an HTTP-backed transport
	// reply 202 Accepted instead of opening a response stream.
	Run(recv func(sessionID string, frame []byte) bool) error

	// Send writes one JSON-RPC frame (a response, error, or
	// notification) to the named session. finish indicates this is the
	// last frame for the request currently in flight on that session
	// (relevant to the HTTP transport, which closes the response body
	// on finish; a no-op for stdio).
	Send(sessionID string, frame []byte, finish bool) error

	// Close shuts the transport down.
	Close() error
}
