// Package stdio implements the server side of the stdio transport: one
// implicit session, identified by the empty string, reading
// newline-delimited JSON-RPC frames from an input stream and writing
// responses to an output stream.
package stdio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
)

// SessionID is the fixed, single session identity stdio connections use.
const SessionID = ""

// DefaultMaxRequestSize is the largest single frame this transport will
// accept, matching the original server's fixed `m_max_request_size`
// buffer.
const DefaultMaxRequestSize = 128 * 1024

// Transport implements transport.Transport over a pair of byte streams.
type Transport struct {
	in  io.Reader
	out io.Writer

	// MaxRequestSize bounds a single inbound frame. A frame at or past
	// this size is rejected with a transport-level error rather than
	// silently truncated or accepted. Zero means DefaultMaxRequestSize.
	MaxRequestSize int

	writeMu sync.Mutex
}

// New wraps in/out (typically os.Stdin/os.Stdout) as a server transport.
func New(in io.Reader, out io.Writer) *Transport {
	return &Transport{in: in, out: out, MaxRequestSize: DefaultMaxRequestSize}
}

func (t *Transport) maxRequestSize() int {
	if t.MaxRequestSize > 0 {
		return t.MaxRequestSize
	}
	return DefaultMaxRequestSize
}

// Run scans newline-delimited frames from the input stream, invoking recv
// for each with the fixed stdio SessionID, until EOF, a scan error, or a
// frame exceeding MaxRequestSize.
// recv's return value is irrelevant here: stdio has no request/response
// framing to distinguish, every frame is just written back in turn.
func (t *Transport) Run(recv func(sessionID string, frame []byte) bool) error {
	max := t.maxRequestSize()
	scanner := bufio.NewScanner(t.in)
	scanner.Buffer(make([]byte, 0, min(64*1024, max)), max)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		frame := make([]byte, len(line))
		copy(frame, line)
		recv(SessionID, frame)
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return fmt.Errorf("stdio request exceeds max size of %d bytes", max)
		}
		return fmt.Errorf("stdio scan: %w", err)
	}
	return nil
}

// Send writes one frame terminated by a newline. finish is ignored:
// stdio has no concept of closing mid-stream.
func (t *Transport) Send(sessionID string, frame []byte, finish bool) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.out.Write(frame); err != nil {
		return fmt.Errorf("stdio write: %w", err)
	}
	if _, err := t.out.Write([]byte("\n")); err != nil {
		return fmt.Errorf("stdio write newline: %w", err)
	}
	return nil
}

// Close is a no-op; stdio streams are closed by the owning process.
func (t *Transport) Close() error { return nil }
