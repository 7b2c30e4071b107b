package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/relaymcp/relaymcp/internal/client"
	"github.com/relaymcp/relaymcp/internal/client/httptransport"
	"github.com/relaymcp/relaymcp/internal/client/stdiotransport"
)

// cmdCall connects to an MCP server and invokes a tool, or lists tools
// when --tool is omitted.
//
// stdio:  relaymcp call --command=./server --tool=echo --args=text=hi
// http:   relaymcp call --url=https://example.com/mcp --tool=echo --args=text=hi
func cmdCall(args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var t client.Transport
	switch {
	case flagValue(args, "command") != "":
		command := flagValue(args, "command")
		st, err := stdiotransport.Spawn(ctx, command, splitCommandArgs(flagValue(args, "command-args")))
		if err != nil {
			return fmt.Errorf("spawn server: %w", err)
		}
		defer st.Close()
		t = st
	case flagValue(args, "url") != "":
		t = httptransport.New(flagValue(args, "url"), nil)
	default:
		return fmt.Errorf("usage: relaymcp call --command=<path> | --url=<mcp-endpoint> [--tool=<name>] [--args=k=v,k=v]")
	}

	c := client.New(t)
	defer c.Close()

	if _, err := c.Initialize(ctx, "relaymcp", "0.1.0"); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	toolName := flagValue(args, "tool")
	if toolName == "" {
		tools, err := c.ToolsList(ctx)
		if err != nil {
			return fmt.Errorf("tools/list: %w", err)
		}
		for _, tool := range tools {
			fmt.Printf("%s: %s\n", tool.Name, tool.Description)
		}
		return nil
	}

	arguments := parseArgs(flagValue(args, "args"))
	content, structured, err := c.ToolsCall(ctx, toolName, arguments, func(method string, params json.RawMessage) bool {
		fmt.Printf("[%s] %s\n", method, params)
		return true
	})
	if err != nil {
		return fmt.Errorf("tools/call: %w", err)
	}

	for _, item := range content {
		fmt.Println(item.Text)
	}
	if len(structured) > 0 {
		fmt.Println(string(structured))
	}
	return nil
}

func parseArgs(raw string) map[string]string {
	out := map[string]string{}
	if raw == "" {
		return out
	}
	for _, pair := range strings.Split(raw, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		out[kv[0]] = kv[1]
	}
	return out
}

func splitCommandArgs(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Fields(raw)
}
