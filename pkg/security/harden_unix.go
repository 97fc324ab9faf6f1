//go:build unix

package security

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// HardenProcess disables core dumps so that passphrases and decrypted key
// material cannot end up in a crash dump.
func HardenProcess() error {
	if err := unix.Setrlimit(unix.RLIMIT_CORE, &unix.Rlimit{Cur: 0, Max: 0}); err != nil {
		return fmt.Errorf("failed to disable core dumps: %w", err)
	}
	return nil
}
