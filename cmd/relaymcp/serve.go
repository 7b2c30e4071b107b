package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/relaymcp/relaymcp/internal/config"
	"github.com/relaymcp/relaymcp/internal/exampletools"
	"github.com/relaymcp/relaymcp/internal/oauthserver"
	"github.com/relaymcp/relaymcp/internal/server"
	"github.com/relaymcp/relaymcp/internal/transport/httpmcp"
	"github.com/relaymcp/relaymcp/internal/transport/stdio"
)

func cmdServe(args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.Default()
	if file := flagValue(args, "config"); file != "" {
		loaded, err := config.LoadFile(file)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	config.ApplyFlags(cfg,
		flagValue(args, "addr"),
		flagValue(args, "entry-point"),
		flagValue(args, "tls-cert"),
		flagValue(args, "tls-key"),
		hasFlag(args, "require-auth"),
	)

	levelVar := &slog.LevelVar{}
	_ = levelVar.UnmarshalText([]byte(cfg.LogLevel))
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)

	srv := server.New(cfg.ServerName, cfg.ServerVersion, levelVar)
	exampletools.Register(srv)

	transportMode := flagValue(args, "transport")
	if transportMode == "" {
		transportMode = "stdio"
	}

	switch transportMode {
	case "stdio":
		logger.Info("starting in stdio mode")
		t := stdio.New(os.Stdin, os.Stdout)
		return srv.Run(t)
	case "http":
		logger.Info("starting in http mode", "addr", cfg.ListenAddr, "entry_point", cfg.EntryPoint)
		var auth httpmcp.Authenticator
		if cfg.RequireAuth {
			auth = oauthserver.NewValidator(canonicalAudience(cfg))
		}
		t := httpmcp.New(cfg.ListenAddr, cfg.EntryPoint, srv.Sessions(), auth)
		t.CertFile = cfg.TLSCertFile
		t.KeyFile = cfg.TLSKeyFile
		t.SweepInterval = cfg.SweepInterval
		t.AuthorizationServers = cfg.AuthorizationServers
		t.ScopesSupported = cfg.ScopesSupported

		group, gctx := errgroup.WithContext(ctx)
		group.Go(func() error {
			return srv.Run(t)
		})
		group.Go(func() error {
			<-gctx.Done()
			logger.Info("shutting down http server")
			return t.Close()
		})
		return group.Wait()
	default:
		return fmt.Errorf("unknown transport: %s", transportMode)
	}
}

func canonicalAudience(cfg *config.Config) string {
	scheme := "http"
	if cfg.TLSCertFile != "" {
		scheme = "https"
	}
	return scheme + "://" + cfg.ListenAddr + cfg.EntryPoint
}
