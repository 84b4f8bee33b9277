package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/mcp-go"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/gpuprep/internal/app"
	"github.com/felixgeelhaar/gpuprep/internal/config"
	mcptools "github.com/felixgeelhaar/gpuprep/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for AI agent integration",
	Long: `Start a Model Context Protocol (MCP) server exposing the read-only
gpuprep operations to AI agents. Nothing that changes the host is exposed.

Available tools:
  - gpuprep_plan      Show which steps apply would run
  - gpuprep_validate  Validate the manifest
  - gpuprep_facts     Gather host facts
  - gpuprep_status    Get version info and server state
  - gpuprep_verify    Check the model files against the hub

Examples:
  gpuprep mcp                     # Start stdio MCP server
  gpuprep mcp --http :8080        # Start HTTP MCP server
  gpuprep mcp -c /etc/gpuprep.yaml`,
	RunE: runMCP,
}

var mcpHTTP string

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().StringVar(&mcpHTTP, "http", "", "Start HTTP server on address (e.g., :8080)")
}

// mcpLoader loads a manifest per tool call. Stdout belongs to the stdio
// transport, so printed output is discarded and logs go to stderr.
func mcpLoader(configPath string) (*app.Provisioner, error) {
	m, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return newProvisioner(m, io.Discard).WithLogger(newLogger(os.Stderr)), nil
}

func runMCP(_ *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	defaultConfig, err := configPath()
	if err != nil {
		defaultConfig = config.DefaultNames[0]
	}

	srv := mcp.NewServer(mcp.ServerInfo{
		Name:    "gpuprep",
		Version: version,
	})

	versionInfo := mcptools.VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
	}
	mcptools.RegisterAll(srv, mcpLoader, defaultConfig, versionInfo)

	if mcpHTTP != "" {
		return mcp.ServeHTTP(ctx, srv, mcpHTTP)
	}
	return mcp.ServeStdio(ctx, srv)
}
