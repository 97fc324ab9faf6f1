// Package logging defines the structured-logging interface used across skm.
//
// Secrets never go through a Logger: passphrases and private key bytes must
// not be passed as arguments. Key records are safe to log because they
// render only their name, type and fingerprint.
package logging

import "context"

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key-value pairs, e.g.:
//
//	log.Info(ctx, "archive written", "path", path, "keys", n)
type Logger interface {
	// Debug logs diagnostic detail, shown with --debug.
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs an informational message.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs a warning message for unusual but non-fatal conditions.
	Warn(ctx context.Context, msg string, args ...any)

	// Error logs an error message for failures.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key-value pairs.
	With(args ...any) Logger
}
