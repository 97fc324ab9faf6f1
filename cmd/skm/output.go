package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/forest6511/skm/pkg/security"
)

// Output format constants
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
	formatNames = "names"
)

// styles renders headings and severities for w. Color is dropped
// automatically when w is not a terminal.
type styles struct {
	heading  lipgloss.Style
	ok       lipgloss.Style
	critical lipgloss.Style
	warning  lipgloss.Style
	info     lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		heading:  r.NewStyle().Bold(true),
		ok:       r.NewStyle().Foreground(lipgloss.Color("10")),
		critical: r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		warning:  r.NewStyle().Foreground(lipgloss.Color("11")),
		info:     r.NewStyle().Faint(true),
	}
}

func (s styles) severity(sev security.Severity) string {
	switch sev {
	case security.SeverityCritical:
		return s.critical.Render(string(sev))
	case security.SeverityWarning:
		return s.warning.Render(string(sev))
	default:
		return s.info.Render(string(sev))
	}
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func validateFormat(format string, allowed ...string) error {
	for _, a := range allowed {
		if format == a {
			return nil
		}
	}
	return fmt.Errorf("invalid format '%s': must be one of %v", format, allowed)
}

// orDash returns s, or "-" when s is empty.
func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
