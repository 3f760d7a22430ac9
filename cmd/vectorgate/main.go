// Package main is the entry point for the vectorgate CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vectorgate/vectorgate/internal/config"
)

// Version information set via ldflags during build.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vectorgate",
		Short: "Collection-aware semantic storage and search gateway",
		Long:  `vectorgate embeds and indexes documents into a Qdrant-backed vector store, resolving each collection to exactly one embedding model and exposing store/search operations as MCP tools.`,
	}

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(stdioCmd())
	cmd.AddCommand(versionCmd())

	return cmd
}

// loadConfig loads configuration from a .env file and environment variables.
func loadConfig(envFile string) (config.AppConfig, error) {
	cfg, err := config.LoadConfig(envFile)
	if err != nil {
		return config.AppConfig{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
