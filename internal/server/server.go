// Package server is the top-level MCP server: it owns a tool registry
// and a session registry, and drives whichever transport it's run with
// through the dispatcher.
package server

import (
	"fmt"
	"log/slog"

	"github.com/relaymcp/relaymcp/internal/dispatcher"
	"github.com/relaymcp/relaymcp/internal/registry"
	"github.com/relaymcp/relaymcp/internal/sessionreg"
	"github.com/relaymcp/relaymcp/internal/transport"
)

// Server is the public API a binary embeds: construct it, register
// tools, then Run it over a transport.
type Server struct {
	Name    string
	Version string

	tools      *registry.Registry
	sessions   *sessionreg.Registry
	levelVar   *slog.LevelVar
	dispatcher *dispatcher.Dispatcher
}

// New constructs a server with the given name/version, used to fill the
// "serverInfo" field of every "initialize" response.
func New(name, version string, levelVar *slog.LevelVar) *Server {
	return &Server{
		Name:     name,
		Version:  version,
		tools:    registry.New(),
		sessions: sessionreg.New(),
		levelVar: levelVar,
	}
}

// AddTool registers a tool, mirroring the original server's AddTool
// signature but in idiomatic Go form (struct literal + typed handler).
func (s *Server) AddTool(t registry.Tool) {
	s.tools.Add(t)
}

// Run drives t until it stops, dispatching every received frame through
// the method table.
func (s *Server) Run(t transport.Transport) error {
	s.dispatcher = &dispatcher.Dispatcher{
		ServerName:    s.Name,
		ServerVersion: s.Version,
		Tools:         s.tools,
		Sessions:      s.sessions,
		Send:          t,
		LogLevel:      s.setLogLevel,
	}

	if err := t.Run(s.dispatcher.Handle); err != nil {
		return fmt.Errorf("run transport: %w", err)
	}
	return nil
}

func (s *Server) setLogLevel(level string) {
	if s.levelVar == nil {
		return
	}
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(level)); err != nil {
		slog.Warn("unrecognized log level requested", "level", level)
		return
	}
	s.levelVar.Set(lv)
}

// Sessions exposes the session registry so a transport can drive its
// sweep loop (the HTTP transport does this itself; the stdio transport
// has exactly one implicit session and needs no sweeping).
func (s *Server) Sessions() *sessionreg.Registry { return s.sessions }
