// Package stdiotransport is the client-side stdio transport: it spawns
// the MCP server as a child process and speaks newline-delimited
// JSON-RPC over its stdin/stdout pipes.
package stdiotransport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/relaymcp/relaymcp/internal/client/procclient"
)

// Transport owns the spawned child process and its pipes.
type Transport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	frames  chan []byte
	writeMu sync.Mutex
}

// Spawn starts command with args, wiring its stdin/stdout for the
// transport and beginning the background read loop immediately.
func Spawn(ctx context.Context, command string, args []string) (*Transport, error) {
	cmd := exec.CommandContext(ctx, command, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", command, err)
	}

	t := &Transport{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		frames: make(chan []byte, 16),
	}
	go t.readLoop()
	return t, nil
}

func (t *Transport) readLoop() {
	defer close(t.frames)
	scanner := bufio.NewScanner(t.stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		frame := make([]byte, len(line))
		copy(frame, line)
		t.frames <- frame
	}
}

// Send writes one newline-terminated frame to the child's stdin.
func (t *Transport) Send(frame []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.stdin.Write(frame); err != nil {
		return fmt.Errorf("write stdin: %w", err)
	}
	if _, err := t.stdin.Write([]byte("\n")); err != nil {
		return fmt.Errorf("write stdin newline: %w", err)
	}
	return nil
}

// Frames returns the channel of frames read from the child's stdout.
func (t *Transport) Frames() <-chan []byte { return t.frames }

// Close stops the child process, escalating from a graceful signal to a
// forced kill after a grace period.
func (t *Transport) Close() error {
	_ = t.stdin.Close()
	return procclient.Stop(t.cmd)
}
