// Package mcp implements a read-only MCP (Model Context Protocol) server for
// skm. Tools expose key names, public keys and archive headers; no tool
// returns private key material or accepts a passphrase.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/forest6511/skm/internal/logging"
	"github.com/forest6511/skm/pkg/keydir"
)

// Version is reported to MCP clients.
var Version = "dev"

// Server represents the MCP server for skm.
type Server struct {
	server      *mcp.Server
	dir         *keydir.Dir
	policy      *Policy
	archiveDirs []string
	log         logging.Logger
}

// ServerOptions contains configuration options for the MCP server.
type ServerOptions struct {
	// SSHDir is the key directory served.
	SSHDir string

	// ExportDir is always readable by backup_inspect.
	ExportDir string

	// PolicyDir holds mcp-policy.yaml. Empty disables policy loading.
	PolicyDir string

	// Logger receives diagnostics. Nil discards them.
	Logger logging.Logger
}

// NewServer creates a new MCP server instance.
func NewServer(ctx context.Context, opts *ServerOptions) (*Server, error) {
	if opts == nil || opts.SSHDir == "" {
		return nil, errors.New("ssh directory is required")
	}
	log := logging.OrNop(opts.Logger)

	var policy *Policy
	if opts.PolicyDir != "" {
		p, err := LoadPolicy(opts.PolicyDir)
		switch {
		case err == nil:
			policy = p
		case errors.Is(err, ErrPolicyNotFound):
		default:
			return nil, fmt.Errorf("failed to load MCP policy: %w", err)
		}
	}

	s := &Server{
		server: mcp.NewServer(
			&mcp.Implementation{Name: "skm", Version: Version},
			nil,
		),
		dir:    keydir.New(opts.SSHDir),
		policy: policy,
		log:    log,
	}

	s.archiveDirs = []string{}
	if opts.ExportDir != "" {
		s.archiveDirs = append(s.archiveDirs, opts.ExportDir)
	}
	if home, err := os.UserHomeDir(); err == nil {
		s.archiveDirs = append(s.archiveDirs, policy.archiveDirs(home)...)
	}

	s.registerTools()
	log.Debug(ctx, "mcp server ready", "ssh_dir", opts.SSHDir, "policy", policy != nil)
	return s, nil
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "key_list",
		Description: "List SSH keys in the key directory with type, size, fingerprint and status. Optional glob filter. Does NOT return key material.",
	}, s.handleKeyList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "key_public",
		Description: "Return the public key line (authorized_keys format) and fingerprint of a named key.",
	}, s.handleKeyPublic)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "key_audit",
		Description: "Audit the key directory for weak RSA keys, duplicates, loose permissions and missing public keys.",
	}, s.handleKeyAudit)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "backup_inspect",
		Description: "Read the unencrypted header of a .skm backup archive (format, version, sizes). Does not decrypt.",
	}, s.handleBackupInspect)
}

// Run starts the MCP server using stdio transport.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}
