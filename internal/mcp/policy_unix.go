//go:build !windows

package mcp

import (
	"errors"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"
)

// openNoFollow opens a policy file for reading, refusing a symlink in the
// final path element.
func openNoFollow(path string) (*os.File, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	switch {
	case err == nil:
		return os.NewFile(uintptr(fd), path), nil
	case errors.Is(err, unix.ENOENT):
		return nil, ErrPolicyNotFound
	case errors.Is(err, unix.ELOOP):
		return nil, ErrPolicySymlink
	default:
		return nil, &fs.PathError{Op: "open", Path: path, Err: err}
	}
}

// ownedByCurrentUser checks the owner through the open descriptor.
func ownedByCurrentUser(f *os.File) error {
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		return err
	}
	if int(st.Uid) != os.Getuid() {
		return ErrPolicyNotOwnedByUser
	}
	return nil
}
