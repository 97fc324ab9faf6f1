package mcp

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy restricts what the MCP server exposes.
//
//	version: 1
//	hidden_keys: ["deploy_*"]
//	archive_dirs: ["~/backups"]
type Policy struct {
	Version int `yaml:"version"`

	// HiddenKeys are glob patterns of key names that are never listed or returned.
	HiddenKeys []string `yaml:"hidden_keys"`

	// ArchiveDirs are directories backup_inspect may read from, in addition
	// to the export directory.
	ArchiveDirs []string `yaml:"archive_dirs"`
}

// PolicyFileName is the name of the policy file in the skm config directory.
const PolicyFileName = "mcp-policy.yaml"

// ErrPolicyNotFound is returned when no policy file exists
var ErrPolicyNotFound = errors.New("MCP policy file not found")

// ErrPolicyInsecure is returned when policy file has insecure permissions
var ErrPolicyInsecure = errors.New("MCP policy file has insecure permissions")

// ErrPolicySymlink is returned when policy file is a symlink
var ErrPolicySymlink = errors.New("MCP policy file is a symlink")

// ErrPolicyNotOwnedByUser is returned when policy file is not owned by current user
var ErrPolicyNotOwnedByUser = errors.New("MCP policy file not owned by current user")

// LoadPolicy loads the MCP policy from dir. The file is opened without
// following symlinks and checked through the open descriptor, so it cannot
// be swapped between the check and the read.
func LoadPolicy(dir string) (*Policy, error) {
	f, err := openNoFollow(filepath.Join(dir, PolicyFileName))
	if err != nil {
		if errors.Is(err, ErrPolicyNotFound) || errors.Is(err, ErrPolicySymlink) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to open policy file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat policy file: %w", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		return nil, fmt.Errorf("%w: %o (expected 0600)", ErrPolicyInsecure, perm)
	}
	if err := ownedByCurrentUser(f); err != nil {
		return nil, err
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var policy Policy
	if err := yaml.Unmarshal(content, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &policy, nil
}

// Validate checks the policy version and patterns.
func (p *Policy) Validate() error {
	if p.Version != 1 {
		return fmt.Errorf("unsupported policy version: %d", p.Version)
	}
	for _, pattern := range p.HiddenKeys {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("invalid hidden_keys pattern %q: %w", pattern, err)
		}
	}
	for _, dir := range p.ArchiveDirs {
		if !filepath.IsAbs(dir) && !strings.HasPrefix(dir, "~/") {
			return fmt.Errorf("archive_dirs entry %q must be absolute", dir)
		}
	}
	return nil
}

// KeyVisible reports whether a key may be exposed. A nil policy hides nothing.
func (p *Policy) KeyVisible(name string) bool {
	if p == nil {
		return true
	}
	for _, pattern := range p.HiddenKeys {
		if ok, _ := filepath.Match(pattern, name); ok {
			return false
		}
	}
	return true
}

// archiveDirs returns the policy directories with ~ expanded.
func (p *Policy) archiveDirs(home string) []string {
	if p == nil {
		return nil
	}
	dirs := make([]string, 0, len(p.ArchiveDirs))
	for _, d := range p.ArchiveDirs {
		if strings.HasPrefix(d, "~/") {
			d = filepath.Join(home, d[2:])
		}
		dirs = append(dirs, d)
	}
	return dirs
}

// within reports whether path is inside one of dirs after resolving
// symlinks on both sides.
func within(path string, dirs []string) bool {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return false
	}
	for _, dir := range dirs {
		root, err := filepath.EvalSymlinks(dir)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(root, resolved)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "." {
			return true
		}
	}
	return false
}
