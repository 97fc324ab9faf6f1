//go:build windows

package mcp

import (
	"errors"
	"io/fs"
	"os"
)

func openNoFollow(path string) (*os.File, error) {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrPolicyNotFound
	}
	if err != nil {
		return nil, err
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return nil, ErrPolicySymlink
	}
	return os.Open(path)
}

// ownedByCurrentUser is a no-op; access on Windows is governed by ACLs.
func ownedByCurrentUser(*os.File) error {
	return nil
}
