package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/forest6511/skm/internal/cli"
	"github.com/forest6511/skm/pkg/backup"
	"github.com/forest6511/skm/pkg/keydir"
	"github.com/forest6511/skm/pkg/security"
	"github.com/forest6511/skm/pkg/sshkey"
)

// maxArchiveSize bounds files read by backup_inspect.
const maxArchiveSize = 16 << 20

// KeyListInput represents input for key_list tool.
type KeyListInput struct {
	Filter string `json:"filter,omitempty"`
}

// KeyListOutput represents output for key_list tool.
type KeyListOutput struct {
	Keys []KeyInfo `json:"keys"`
}

// KeyInfo describes a key without its material.
type KeyInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Bits        int    `json:"bits,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Comment     string `json:"comment,omitempty"`
	Status      string `json:"status"`
	ModTime     string `json:"modified,omitempty"`
}

// KeyPublicInput represents input for key_public tool.
type KeyPublicInput struct {
	Name string `json:"name"`
}

// KeyPublicOutput represents output for key_public tool.
type KeyPublicOutput struct {
	Name        string `json:"name"`
	PublicKey   string `json:"public_key"`
	Fingerprint string `json:"fingerprint"`
}

// KeyAuditInput represents input for key_audit tool.
type KeyAuditInput struct{}

// BackupInspectInput represents input for backup_inspect tool.
type BackupInspectInput struct {
	Path string `json:"path"`
}

// BackupInspectOutput represents output for backup_inspect tool.
type BackupInspectOutput struct {
	Path           string `json:"path"`
	Format         string `json:"format"`
	Version        int    `json:"version,omitempty"`
	Size           int    `json:"size"`
	CiphertextSize int    `json:"ciphertext_size,omitempty"`
	Armored        bool   `json:"armored,omitempty"`
}

func (s *Server) visibleKeys() ([]*keydir.Key, error) {
	keys, err := s.dir.Scan()
	if err != nil {
		return nil, err
	}
	out := keys[:0]
	for _, k := range keys {
		if s.policy.KeyVisible(k.Name) {
			out = append(out, k)
		}
	}
	return out, nil
}

// handleKeyList handles the key_list tool call.
func (s *Server) handleKeyList(_ context.Context, _ *mcp.CallToolRequest, input KeyListInput) (*mcp.CallToolResult, KeyListOutput, error) {
	keys, err := s.visibleKeys()
	if err != nil {
		return nil, KeyListOutput{}, fmt.Errorf("failed to list keys: %w", err)
	}

	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.Name
	}
	matched, err := cli.Filter(input.Filter, names)
	if err != nil {
		return nil, KeyListOutput{}, err
	}
	want := make(map[string]bool, len(matched))
	for _, n := range matched {
		want[n] = true
	}

	output := KeyListOutput{Keys: make([]KeyInfo, 0, len(matched))}
	for _, k := range keys {
		if !want[k.Name] {
			continue
		}
		info := KeyInfo{
			Name:        k.Name,
			Fingerprint: k.Fingerprint,
			Comment:     k.Comment,
			Status:      k.Status.String(),
		}
		if k.Type.Valid() {
			info.Type = k.Type.String()
		}
		if k.Bits != nil {
			info.Bits = *k.Bits
		}
		if !k.ModTime.IsZero() {
			info.ModTime = k.ModTime.UTC().Format("2006-01-02T15:04:05Z")
		}
		output.Keys = append(output.Keys, info)
	}
	return nil, output, nil
}

// handleKeyPublic handles the key_public tool call.
func (s *Server) handleKeyPublic(_ context.Context, _ *mcp.CallToolRequest, input KeyPublicInput) (*mcp.CallToolResult, KeyPublicOutput, error) {
	if input.Name == "" {
		return nil, KeyPublicOutput{}, errors.New("name is required")
	}
	if !s.policy.KeyVisible(input.Name) {
		return nil, KeyPublicOutput{}, fmt.Errorf("%w: %s", keydir.ErrKeyNotFound, input.Name)
	}

	k, err := s.dir.Find(input.Name)
	if err != nil {
		return nil, KeyPublicOutput{}, err
	}
	if k.Status == keydir.StatusMissingPublic {
		return nil, KeyPublicOutput{}, fmt.Errorf("%s has no public key file", input.Name)
	}
	data, err := os.ReadFile(k.PublicPath)
	if err != nil {
		return nil, KeyPublicOutput{}, fmt.Errorf("failed to read public key: %w", err)
	}
	rec := &sshkey.Record{Name: input.Name, PublicKey: data}
	fp, err := rec.Fingerprint()
	if err != nil {
		return nil, KeyPublicOutput{}, err
	}

	return nil, KeyPublicOutput{
		Name:        input.Name,
		PublicKey:   strings.TrimSpace(string(data)),
		Fingerprint: fp,
	}, nil
}

// handleKeyAudit handles the key_audit tool call.
func (s *Server) handleKeyAudit(_ context.Context, _ *mcp.CallToolRequest, _ KeyAuditInput) (*mcp.CallToolResult, security.Report, error) {
	keys, err := s.visibleKeys()
	if err != nil {
		return nil, security.Report{}, fmt.Errorf("failed to list keys: %w", err)
	}
	return nil, *security.Audit(keys), nil
}

// handleBackupInspect handles the backup_inspect tool call.
func (s *Server) handleBackupInspect(_ context.Context, _ *mcp.CallToolRequest, input BackupInspectInput) (*mcp.CallToolResult, BackupInspectOutput, error) {
	if input.Path == "" {
		return nil, BackupInspectOutput{}, errors.New("path is required")
	}
	path, err := filepath.Abs(input.Path)
	if err != nil {
		return nil, BackupInspectOutput{}, err
	}
	if !within(path, s.archiveDirs) {
		return nil, BackupInspectOutput{}, fmt.Errorf("path %s is outside the allowed archive directories", input.Path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, BackupInspectOutput{}, err
	}
	if info.Size() > maxArchiveSize {
		return nil, BackupInspectOutput{}, fmt.Errorf("%s is too large to be an archive", input.Path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, BackupInspectOutput{}, err
	}

	hdr, err := backup.Inspect(data)
	if err != nil {
		return nil, BackupInspectOutput{}, err
	}
	return nil, BackupInspectOutput{
		Path:           path,
		Format:         string(hdr.Kind),
		Version:        int(hdr.Version),
		Size:           hdr.Size,
		CiphertextSize: hdr.CiphertextSize,
		Armored:        hdr.Armored,
	}, nil
}
