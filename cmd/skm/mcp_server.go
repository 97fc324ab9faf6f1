package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forest6511/skm/internal/config"
	"github.com/forest6511/skm/internal/mcp"
)

func init() {
	rootCmd.AddCommand(mcpServerCmd)
}

// mcpServerCmd starts the MCP server for AI coding assistant integration
var mcpServerCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Start the MCP server for AI coding assistant integration",
	Long: `Start a read-only MCP server over stdio.

Available tools:
  - key_list:       List keys with type, size, fingerprint and status
  - key_public:     Public key line and fingerprint of a key
  - key_audit:      Audit report for the key directory
  - backup_inspect: Header details of a .skm archive

No tool returns private key material or accepts a passphrase.

Policy:
  Create mcp-policy.yaml (mode 0600) next to config.yaml to hide keys from
  the tools and to allow backup_inspect outside the export directory:

    version: 1
    hidden_keys: ["prod_*"]
    archive_dirs: ["~/backups"]

Example MCP configuration:
  {
    "mcpServers": {
      "skm": {
        "type": "stdio",
        "command": "/path/to/skm",
        "args": ["mcp-server"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCPServer(cmd.Context())
	},
}

func runMCPServer(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var policyDir string
	if path, err := config.DefaultPath(); err == nil {
		policyDir = filepath.Dir(path)
	}

	mcp.Version = version
	server, err := mcp.NewServer(ctx, &mcp.ServerOptions{
		SSHDir:    cfg.SSHDir,
		ExportDir: cfg.ExportDir,
		PolicyDir: policyDir,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	if err := server.Run(ctx); err != nil {
		// Don't report context canceled as an error
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
