package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vectorgate/vectorgate"
	"github.com/vectorgate/vectorgate/internal/log"
	"github.com/vectorgate/vectorgate/internal/mcp"
)

func stdioCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "stdio",
		Short: "Start the MCP server on stdio",
		Long: `Start the MCP (Model Context Protocol) server on stdio.

This lets an AI assistant store and search documents through vectorgate's
nine tools without a running HTTP server. Configuration is loaded from
environment variables and an optional .env file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStdio(envFile)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file")

	return cmd
}

func runStdio(envFile string) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	// Logging goes to stderr, never stdout: stdout is the MCP transport.
	logger := log.NewLoggerWithWriter(os.Stderr, cfg.LogFormat(), cfg.LogLevel())
	slogger := logger.Slog()
	slogger.Info("starting MCP server", slog.String("version", version))

	opts, err := buildGatewayOptions(cfg, slogger)
	if err != nil {
		return fmt.Errorf("build gateway options: %w", err)
	}

	gw, err := vectorgate.New(opts...)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}
	defer func() {
		if err := gw.Close(); err != nil {
			slogger.Error("failed to close gateway", slog.Any("error", err))
		}
	}()

	mcpServer := mcp.NewServer(gw.Engine(), version, cfg.DefaultCollection(), slogger)
	return mcpServer.ServeStdio()
}
