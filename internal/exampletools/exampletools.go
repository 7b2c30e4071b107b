// Package exampletools registers a small set of demonstration tools used
// by the bundled server binary: one scalar-output tool and one
// structured-output tool that also streams a progress notification,
// exercising every path through the tool registry and dispatcher.
package exampletools

import (
	"fmt"
	"strconv"

	"github.com/relaymcp/relaymcp/internal/registry"
	"github.com/relaymcp/relaymcp/internal/server"
)

// Register adds the demonstration tools to srv.
func Register(srv *server.Server) {
	srv.AddTool(registry.Tool{
		Name:        "echo",
		Description: "Echoes the given text back as a scalar result.",
		InputSchema: []registry.PropertySpec{
			{Name: "text", Type: registry.PropertyString, Description: "Text to echo back.", Required: true},
		},
		Handle: func(sessionID string, args map[string]string, notify func([]registry.ContentItem)) ([]registry.ContentItem, error) {
			return []registry.ContentItem{{Text: args["text"]}}, nil
		},
	})

	srv.AddTool(registry.Tool{
		Name:        "count_to",
		Description: "Counts from 1 to n, streaming a notification for each step, and returns the final count as structured output.",
		InputSchema: []registry.PropertySpec{
			{Name: "n", Type: registry.PropertyNumber, Description: "Upper bound to count to.", Required: true},
		},
		OutputSchema: []registry.PropertySpec{
			{Name: "final", Type: registry.PropertyNumber, Description: "The final count reached.", Required: true},
			{Name: "label", Type: registry.PropertyString, Description: "A human-readable label for the result.", Required: true},
		},
		Handle: func(sessionID string, args map[string]string, notify func([]registry.ContentItem)) ([]registry.ContentItem, error) {
			n, err := strconv.Atoi(args["n"])
			if err != nil {
				return nil, fmt.Errorf("parse n: %w", err)
			}
			for i := 1; i <= n; i++ {
				notify([]registry.ContentItem{{Fields: map[string]string{"final": strconv.Itoa(i), "label": fmt.Sprintf("step %d", i)}}})
			}
			return []registry.ContentItem{{Fields: map[string]string{
				"final": strconv.Itoa(n),
				"label": fmt.Sprintf("reached %d", n),
			}}}, nil
		},
	})
}
