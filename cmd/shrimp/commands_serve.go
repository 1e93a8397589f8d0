package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shrimp/shrimp/internal/httpapi"
)

func buildServeCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP/SSE server and any enabled channel adapters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	rt, err := buildRuntime(configPath)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &httpapi.Server{
		Orchestrator:  rt.orchestrator,
		Shell:         rt.shellManager,
		Channels:      rt.channels,
		Metrics:       rt.metrics,
		Logger:        rt.logger,
		DBPath:        rt.cfg.Database.Path,
		DefaultModel:  rt.cfg.LLM.DefaultModel,
		AllowedModels: rt.cfg.LLM.AllowedModels,
	}
	if err := server.Start(rt.cfg.Server.ListenAddr); err != nil {
		return err
	}

	for name, adapter := range rt.channels {
		if err := adapter.Start(ctx); err != nil {
			rt.logger.Error("start channel adapter", "channel", name, "error", err)
		}
	}

	rt.logger.Info("shrimp serving", "addr", rt.cfg.Server.ListenAddr)
	<-ctx.Done()
	rt.logger.Info("shutting down")

	for name, adapter := range rt.channels {
		if err := adapter.Stop(); err != nil {
			rt.logger.Error("stop channel adapter", "channel", name, "error", err)
		}
	}
	return server.Stop(context.Background())
}
