package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/vectorgate/vectorgate"
	"github.com/vectorgate/vectorgate/infrastructure/api"
	apimiddleware "github.com/vectorgate/vectorgate/infrastructure/api/middleware"
	"github.com/vectorgate/vectorgate/internal/config"
	"github.com/vectorgate/vectorgate/internal/log"
	"github.com/vectorgate/vectorgate/internal/mcp"
)

func serveCmd() *cobra.Command {
	var (
		envFile string
		host    string
		port    int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server, mounting the MCP tool server at /mcp.

Configuration is loaded in the following order (later sources override earlier):
  1. Default values
  2. .env file (if --env-file specified or .env exists in current directory)
  3. Environment variables
  4. Command line flags

Environment variables (VECTORGATE_-prefixed):
  HOST, PORT                    Bind address (default: 0.0.0.0:8080)
  LOG_LEVEL, LOG_FORMAT          Logging (default: INFO, pretty)
  API_KEYS                      Comma-separated keys gating mutating HTTP requests
  BACKEND_URL, BACKEND_API_KEY   Qdrant gRPC address and credential
  MODELS_FILE                   YAML catalogue of embedding models to register
  DEFAULT_MODEL_ID               Resolver fallback model_id
  COLLECTION_MODEL_MAP           Comma-separated collection=model_id exact rules
  COLLECTION_PATTERN_MAP         Comma-separated substring=model_id pattern rules`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(envFile, host, port)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")
	cmd.Flags().StringVar(&host, "host", "", "Server host to bind to (default: 0.0.0.0)")
	cmd.Flags().IntVar(&port, "port", 0, "Server port to listen on (default: 8080)")

	return cmd
}

func runServe(envFile, host string, port int) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	cfg = applyServeOverrides(cfg, host, port)

	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	logger := log.NewLogger(cfg)
	slogger := logger.Slog()

	opts, err := buildGatewayOptions(cfg, slogger)
	if err != nil {
		return fmt.Errorf("build gateway options: %w", err)
	}

	slogger.LogAttrs(context.Background(), slog.LevelInfo, "starting vectorgate", append(
		[]slog.Attr{slog.String("version", version)}, cfg.LogAttrs()...)...)

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

	srv := api.NewServer(cfg.Addr(), slogger, cfg.CORSAllowedOrigins())
	router := srv.Router()
	router.Use(apimiddleware.Logging(slogger))
	router.Use(apimiddleware.WriteProtect(apimiddleware.NewAuthConfigWithKeys(cfg.APIKeys())))

	router.Get("/health", healthHandler)
	router.Get("/healthz", healthHandler)
	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"name":"vectorgate","version":%q}`, version)
	})

	// MCP is mounted without chi's Timeout middleware: it streams
	// responses and manages its own session state, which Timeout's
	// ResponseWriter wrapping breaks.
	router.Group(func(r chi.Router) {
		r.Mount("/mcp", server.NewStreamableHTTPServer(mcpServer.MCPServer()))
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slogger.Info("shutting down server")
		cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slogger.Error("shutdown error", slog.Any("error", err))
		}
	}()

	slogger.Info("listening", slog.String("addr", cfg.Addr()))
	if err := srv.Start(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

func applyServeOverrides(cfg config.AppConfig, host string, port int) config.AppConfig {
	var opts []config.AppConfigOption
	if host != "" {
		opts = append(opts, config.WithHost(host))
	}
	if port != 0 {
		opts = append(opts, config.WithPort(port))
	}
	return cfg.Apply(opts...)
}
