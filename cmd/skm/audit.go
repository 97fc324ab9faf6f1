package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/skm/pkg/security"
)

var auditFormat string

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().StringVarP(&auditFormat, "format", "f", formatTable, "Output format: table, json, yaml")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Check keys for weak sizes, duplicates and loose permissions",
	Long: `Audit the key directory and report a score out of 100.

Checks:
  - RSA keys shorter than 3072 bits (critical below 2048)
  - the same key stored under several names
  - private keys readable by group or others
  - private keys without a public key`,
	Args: cobra.NoArgs,
	RunE: executeAudit,
}

func executeAudit(cmd *cobra.Command, _ []string) error {
	if err := validateFormat(auditFormat, formatTable, formatJSON, formatYAML); err != nil {
		return err
	}

	all, err := keys.Scan()
	if err != nil {
		return err
	}
	report := security.Audit(all)

	out := cmd.OutOrStdout()
	switch auditFormat {
	case formatJSON:
		return writeJSON(out, report)
	case formatYAML:
		return writeYAML(out, report)
	}

	st := newStyles(out)
	score := fmt.Sprintf("%d/100", report.Score)
	switch {
	case report.Score >= 90:
		score = st.ok.Render(score)
	case report.Score >= 60:
		score = st.warning.Render(score)
	default:
		score = st.critical.Render(score)
	}
	fmt.Fprintf(out, "%s %s (%d keys)\n", st.heading.Render("Score:"), score, report.Keys)
	if len(report.Issues) == 0 {
		fmt.Fprintln(out, "No issues found.")
		return nil
	}

	fmt.Fprintln(out)
	for _, issue := range report.Issues {
		fmt.Fprintf(out, "[%s] %s: %s\n", st.severity(issue.Severity), strings.Join(issue.Keys, ", "), issue.Description)
		if issue.Suggestion != "" {
			fmt.Fprintf(out, "    %s\n", issue.Suggestion)
		}
	}
	return nil
}
