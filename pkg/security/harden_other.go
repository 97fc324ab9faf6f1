//go:build !unix

package security

// HardenProcess is a no-op on platforms without resource limits.
func HardenProcess() error {
	return nil
}
