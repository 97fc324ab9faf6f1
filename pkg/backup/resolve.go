package backup

import (
	"fmt"
	"strings"

	"github.com/forest6511/skm/pkg/sshkey"
)

// Strategy is the caller-chosen policy for resolving a name collision during
// import. The zero value is not a valid strategy.
type Strategy int

const (
	// StrategySkip keeps the existing key.
	StrategySkip Strategy = iota + 1
	// StrategyOverwrite replaces the existing key.
	StrategyOverwrite
	// StrategyRename imports under the first free name of the form name_N,
	// N >= 2. Every existing name and every name in the archive is reserved
	// first, so k may become k_3 while k_2 is free on disk when the archive
	// itself carries a k_2.
	StrategyRename
)

// ParseStrategy parses "skip", "overwrite" or "rename".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "skip":
		return StrategySkip, nil
	case "overwrite":
		return StrategyOverwrite, nil
	case "rename":
		return StrategyRename, nil
	default:
		return 0, fmt.Errorf("%w: unknown strategy %q (must be skip, overwrite, or rename)", ErrConflictResolution, s)
	}
}

func (s Strategy) String() string {
	switch s {
	case StrategySkip:
		return "skip"
	case StrategyOverwrite:
		return "overwrite"
	case StrategyRename:
		return "rename"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// Valid reports whether s is one of the defined strategies.
func (s Strategy) Valid() bool {
	return s >= StrategySkip && s <= StrategyRename
}

// Decision is the planned action for one archive entry.
type Decision int

const (
	DecisionCreate Decision = iota + 1
	DecisionSkip
	DecisionOverwrite
	DecisionRename
)

func (d Decision) String() string {
	switch d {
	case DecisionCreate:
		return "create"
	case DecisionSkip:
		return "skip"
	case DecisionOverwrite:
		return "overwrite"
	case DecisionRename:
		return "rename"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// ExistingKey identifies a name already occupied in the destination.
type ExistingKey struct {
	Name        string
	Fingerprint string

	// HasPrivate is set when a private key file exists under Name.
	HasPrivate bool

	// PrivateFingerprint is derived from the private key file. It is empty
	// when there is none or it cannot be parsed.
	PrivateFingerprint string

	// Hidden marks a name that is occupied but not listed as a key, such as
	// a dotfile or a file in a foreign format. Export leaves it out unless
	// it is requested by name; import still treats it as a conflict.
	Hidden bool
}

// PlanEntry is the decision for one archive entry.
type PlanEntry struct {
	// Entry is the archive record.
	Entry *sshkey.Record

	// Decision is the action to take.
	Decision Decision

	// Target is the name the entry is written under. It equals Entry.Name
	// except for DecisionRename.
	Target string

	// Conflict is the existing key with the same name, if any.
	Conflict *ExistingKey

	// Identical is true when Conflict has the same fingerprint as Entry.
	Identical bool
}

// ImportPlan lists one decision per archive entry, in archive order.
type ImportPlan struct {
	Strategy Strategy
	Entries  []PlanEntry
}

// Count returns the number of entries with decision d.
func (p *ImportPlan) Count(d Decision) int {
	n := 0
	for _, e := range p.Entries {
		if e.Decision == d {
			n++
		}
	}
	return n
}

// Resolve computes an import plan. It is a pure function of its inputs and
// never touches storage.
//
// Every existing name and every incoming name is reserved before renames are
// allocated, so a renamed entry never takes a name that a later entry of the
// same archive would create. Identical fingerprints do not short-circuit the
// strategy.
func Resolve(entries []*sshkey.Record, existing []ExistingKey, strategy Strategy) (*ImportPlan, error) {
	if !strategy.Valid() {
		return nil, fmt.Errorf("%w: invalid strategy %v", ErrConflictResolution, strategy)
	}

	byName := make(map[string]ExistingKey, len(existing))
	taken := make(map[string]bool, len(existing)+len(entries))
	for _, k := range existing {
		byName[k.Name] = k
		taken[k.Name] = true
	}
	incoming := make(map[string]bool, len(entries))
	for _, e := range entries {
		if incoming[e.Name] {
			return nil, fmt.Errorf("%w: %w: %q", ErrConflictResolution, ErrDuplicateName, e.Name)
		}
		incoming[e.Name] = true
		taken[e.Name] = true
	}

	plan := &ImportPlan{Strategy: strategy, Entries: make([]PlanEntry, 0, len(entries))}
	for _, e := range entries {
		pe := PlanEntry{Entry: e, Target: e.Name}

		conflict, exists := byName[e.Name]
		if !exists {
			pe.Decision = DecisionCreate
			plan.Entries = append(plan.Entries, pe)
			continue
		}

		pe.Conflict = &conflict
		if fp, err := e.Fingerprint(); err == nil && conflict.Fingerprint != "" {
			pe.Identical = fp == conflict.Fingerprint
		}

		switch strategy {
		case StrategySkip:
			pe.Decision = DecisionSkip
		case StrategyOverwrite:
			pe.Decision = DecisionOverwrite
		case StrategyRename:
			name, err := freeName(e.Name, taken)
			if err != nil {
				return nil, err
			}
			taken[name] = true
			pe.Decision = DecisionRename
			pe.Target = name
		}
		plan.Entries = append(plan.Entries, pe)
	}
	return plan, nil
}

// freeName returns the first name_N, N >= 2, that is not taken.
func freeName(name string, taken map[string]bool) (string, error) {
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s_%d", name, n)
		if len(candidate) > sshkey.MaxNameLength {
			return "", fmt.Errorf("%w: no free name for %q", ErrConflictResolution, name)
		}
		if !taken[candidate] {
			return candidate, nil
		}
	}
}
