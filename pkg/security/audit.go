package security

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/forest6511/skm/pkg/keydir"
	"github.com/forest6511/skm/pkg/sshkey"
)

// RSA sizes used by the audit. Keys below MinRSABits are critical; keys
// below RecommendedRSABits get a warning.
const (
	MinRSABits         = 2048
	RecommendedRSABits = 3072
)

// IssueType identifies the type of audit finding.
type IssueType string

const (
	// IssueWeakKey indicates an RSA key below the recommended size.
	IssueWeakKey IssueType = "weak_key"
	// IssueDuplicateKey indicates the same key stored under several names.
	IssueDuplicateKey IssueType = "duplicate"
	// IssueLoosePermissions indicates a private key readable by other users.
	IssueLoosePermissions IssueType = "permissions"
	// IssueMissingPublic indicates a private key without a .pub file.
	IssueMissingPublic IssueType = "missing_public"
	// IssueMismatchedPair indicates a .pub file that belongs to another private key.
	IssueMismatchedPair IssueType = "mismatched_pair"
)

// Severity indicates the urgency of an issue.
type Severity string

const (
	// SeverityCritical requires immediate attention.
	SeverityCritical Severity = "critical"
	// SeverityWarning should be addressed soon.
	SeverityWarning Severity = "warning"
	// SeverityInfo is informational only.
	SeverityInfo Severity = "info"
)

// Issue is a single audit finding.
type Issue struct {
	Type        IssueType `json:"type" yaml:"type"`
	Severity    Severity  `json:"severity" yaml:"severity"`
	Keys        []string  `json:"keys" yaml:"keys"`
	Description string    `json:"description" yaml:"description"`
	Suggestion  string    `json:"suggestion,omitempty" yaml:"suggestion,omitempty"`
}

// Report is the result of auditing a key directory.
type Report struct {
	// Score is 100 minus 25 per critical and 10 per warning issue, floored at 0.
	Score  int     `json:"score" yaml:"score"`
	Keys   int     `json:"keys" yaml:"keys"`
	Issues []Issue `json:"issues" yaml:"issues"`
}

// Audit inspects scanned keys for weak sizes, duplicates, loose file
// permissions, missing public halves and mismatched pairs. Issues are
// ordered by severity, then by first key name.
func Audit(keys []*keydir.Key) *Report {
	r := &Report{Keys: len(keys), Issues: []Issue{}}

	byFingerprint := make(map[string][]string)
	for _, k := range keys {
		if k.Fingerprint != "" {
			byFingerprint[k.Fingerprint] = append(byFingerprint[k.Fingerprint], k.Name)
		}

		if k.Type == sshkey.RSA && k.Bits != nil && *k.Bits < RecommendedRSABits {
			sev := SeverityWarning
			if *k.Bits < MinRSABits {
				sev = SeverityCritical
			}
			r.Issues = append(r.Issues, Issue{
				Type:        IssueWeakKey,
				Severity:    sev,
				Keys:        []string{k.Name},
				Description: fmt.Sprintf("RSA key is %d bits", *k.Bits),
				Suggestion:  "Replace it with an Ed25519 key (skm generate)",
			})
		}

		if k.Status != keydir.StatusMissingPrivate && runtime.GOOS != "windows" {
			if info, err := os.Stat(k.PrivatePath); err == nil && info.Mode().Perm()&0o077 != 0 {
				r.Issues = append(r.Issues, Issue{
					Type:        IssueLoosePermissions,
					Severity:    SeverityCritical,
					Keys:        []string{k.Name},
					Description: fmt.Sprintf("private key has mode %04o", info.Mode().Perm()),
					Suggestion:  fmt.Sprintf("chmod %04o %s", keydir.PrivatePerm, k.PrivatePath),
				})
			}
		}

		if k.Status == keydir.StatusMissingPublic {
			r.Issues = append(r.Issues, Issue{
				Type:        IssueMissingPublic,
				Severity:    SeverityInfo,
				Keys:        []string{k.Name},
				Description: "public key file is missing",
				Suggestion:  "ssh-keygen -y -f " + k.PrivatePath,
			})
		}

		if k.Status == keydir.StatusMismatched {
			r.Issues = append(r.Issues, Issue{
				Type:        IssueMismatchedPair,
				Severity:    SeverityCritical,
				Keys:        []string{k.Name},
				Description: fmt.Sprintf("%s does not match the private key (%s)", filepath.Base(k.PublicPath), k.PrivateFingerprint),
				Suggestion:  fmt.Sprintf("ssh-keygen -y -f %s > %s", k.PrivatePath, k.PublicPath),
			})
		}
	}

	for _, names := range byFingerprint {
		if len(names) < 2 {
			continue
		}
		sort.Strings(names)
		r.Issues = append(r.Issues, Issue{
			Type:        IssueDuplicateKey,
			Severity:    SeverityWarning,
			Keys:        names,
			Description: fmt.Sprintf("the same key is stored under %d names", len(names)),
		})
	}

	sort.SliceStable(r.Issues, func(i, j int) bool {
		a, b := r.Issues[i], r.Issues[j]
		if rank(a.Severity) != rank(b.Severity) {
			return rank(a.Severity) < rank(b.Severity)
		}
		return a.Keys[0] < b.Keys[0]
	})

	r.Score = 100
	for _, is := range r.Issues {
		switch is.Severity {
		case SeverityCritical:
			r.Score -= 25
		case SeverityWarning:
			r.Score -= 10
		}
	}
	if r.Score < 0 {
		r.Score = 0
	}
	return r
}

func rank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}
