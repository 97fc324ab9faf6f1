// Package security provides passphrase rating, key directory auditing and
// process hardening.
package security

import "unicode/utf8"

// Strength represents the strength level of a backup passphrase.
type Strength int

const (
	// Weak indicates a passphrase shorter than 8 characters.
	Weak Strength = iota
	// Fair indicates a minimally acceptable passphrase.
	Fair
	// Good indicates a good passphrase.
	Good
	// Strong indicates a strong passphrase.
	Strong
)

// MinPassphraseLength is the length below which a passphrase is rated Weak.
const MinPassphraseLength = 8

// String returns a human-readable representation of the strength.
func (s Strength) String() string {
	switch s {
	case Weak:
		return "Weak"
	case Fair:
		return "Fair"
	case Good:
		return "Good"
	case Strong:
		return "Strong"
	default:
		return "Unknown"
	}
}

// RatePassphrase rates a passphrase by length in characters.
//
// Length is the primary factor per NIST SP 800-63B; composition rules
// (uppercase, digits, symbols) are deliberately not scored. Characters are
// counted as runes so that non-ASCII passphrases are not over-rated.
func RatePassphrase(p []byte) Strength {
	n := utf8.RuneCount(p)
	switch {
	case n >= 20:
		return Strong
	case n >= 14:
		return Good
	case n >= MinPassphraseLength:
		return Fair
	default:
		return Weak
	}
}
