package main

import (
	"errors"
	"fmt"

	"github.com/forest6511/skm/pkg/backup"
)

// Exit codes
const (
	ExitOK      = 0
	ExitFailure = 1
	// ExitPartial reports an import where some keys could not be written.
	ExitPartial = 2
)

// exitError represents a command exit with a specific code
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit status %d", e.code)
}

func (e *exitError) Unwrap() error {
	return e.err
}

func (e *exitError) ExitCode() int {
	return e.code
}

// describeError adds guidance to the errors users hit most often.
func describeError(err error) string {
	switch {
	case errors.Is(err, backup.ErrAuthentication):
		return "wrong passphrase, or the archive has been modified"
	case errors.Is(err, backup.ErrUnsupportedVersion):
		return err.Error() + " (upgrade skm to read this archive)"
	case errors.Is(err, backup.ErrRequestedKeyNotFound):
		return err.Error() + " (run 'skm list' to see available keys)"
	default:
		return err.Error()
	}
}
