package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/forest6511/skm/internal/cli"
	"github.com/forest6511/skm/pkg/backup"
	"github.com/forest6511/skm/pkg/crypto"
)

// Import command flags
var (
	importFile            string
	importStrategy        string
	importDryRun          bool
	importPassphraseStdin bool
	importPassphraseFile  string
)

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVarP(&importFile, "file", "f", "", "Archive file path or s3://bucket/key (required)")
	importCmd.Flags().StringVarP(&importStrategy, "strategy", "s", "", "Conflict strategy: skip, overwrite, rename (default from config)")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Show what would be imported without writing")
	importCmd.Flags().BoolVar(&importPassphraseStdin, "passphrase-stdin", false, "Read the passphrase from the first line of stdin")
	importCmd.Flags().StringVar(&importPassphraseFile, "passphrase-file", "", "Read the passphrase from the first line of a file")
	_ = importCmd.MarkFlagRequired("file")
	importCmd.MarkFlagsMutuallyExclusive("passphrase-stdin", "passphrase-file")
	_ = importCmd.RegisterFlagCompletionFunc("strategy", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"skip", "overwrite", "rename"}, cobra.ShellCompDirectiveNoFileComp
	})
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import keys from an encrypted archive",
	Long: `Import SSH keys from a .skm archive into the key directory.

Keys whose names already exist are handled by the conflict strategy:
  skip       keep the existing key
  overwrite  replace the existing key
  rename     import as name_2, name_3, ...

Nothing is written when the passphrase is wrong or the archive is damaged.
If some keys cannot be written the others are still imported and skm exits
with status 2.

Examples:
  # Preview
  skm import -f keys.skm --dry-run

  # Import, renaming on conflict
  skm import -f keys.skm -s rename

  # From S3
  skm import -f s3://backups/ssh/keys.skm -s skip`,
	Args: cobra.NoArgs,
	RunE: executeImport,
}

func executeImport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	name := importStrategy
	if name == "" {
		name = cfg.DefaultStrategy
	}
	strategy, err := backup.ParseStrategy(name)
	if err != nil {
		return err
	}

	data, err := readArchive(ctx, importFile)
	if err != nil {
		return err
	}

	passphrase, err := terminal.ReadPassphrase(cli.PassphraseOptions{
		Stdin:  importPassphraseStdin,
		File:   importPassphraseFile,
		Prompt: "Archive passphrase",
	})
	if err != nil {
		return err
	}
	defer crypto.SecureWipe(passphrase)

	if !importDryRun {
		if err := cfg.EnsureSSHDir(); err != nil {
			return err
		}
	}

	res, err := backup.Import(ctx, data, keys, passphrase, backup.ImportOptions{
		Strategy: strategy,
		DryRun:   importDryRun,
		Params:   kdfParams,
		Logger:   logger,
	})
	recordRun(ctx, importRun(importFile, strategy, importDryRun, res, err))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printArchiveSummary(out, res.Archive)
	fmt.Fprintln(out)
	if res.DryRun {
		printPlan(out, res.Plan)
		return nil
	}

	printImportSummary(out, res)
	if res.Partial() {
		return &exitError{
			code: ExitPartial,
			err:  fmt.Errorf("%d of %d key(s) could not be written", len(res.Failed), len(res.Plan.Entries)),
		}
	}
	return nil
}

func printArchiveSummary(w io.Writer, a *backup.Archive) {
	fmt.Fprintf(w, "Archive %s\n", a.ID)
	fmt.Fprintf(w, "  Created: %s by %s@%s\n", a.CreatedAt.Local().Format("2006-01-02 15:04:05"), orDash(a.Username), orDash(a.Hostname))
	if a.Description != "" {
		fmt.Fprintf(w, "  Description: %s\n", a.Description)
	}
	fmt.Fprintf(w, "  Keys: %d", len(a.Entries))
	if n := a.PublicOnlyCount(); n > 0 {
		fmt.Fprintf(w, " (%d public only)", n)
	}
	fmt.Fprintln(w)
}

func printPlan(w io.Writer, plan *backup.ImportPlan) {
	st := newStyles(w)
	fmt.Fprintf(w, "%s (strategy %s, nothing written)\n", st.heading.Render("Import plan"), plan.Strategy)

	tw := newTable(w)
	fmt.Fprintln(tw, "NAME\tTYPE\tACTION\tTARGET\tNOTE")
	for _, pe := range plan.Entries {
		note := "-"
		switch {
		case pe.Conflict != nil && pe.Identical:
			note = "identical key exists"
		case pe.Conflict != nil:
			note = "different key exists"
		}
		if pe.Entry.PublicOnly() {
			if note == "-" {
				note = "public only"
			} else {
				note += ", public only"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", pe.Entry.Name, pe.Entry.Type, pe.Decision, pe.Target, note)
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "\n%d to create, %d to overwrite, %d to rename, %d to skip\n",
		plan.Count(backup.DecisionCreate), plan.Count(backup.DecisionOverwrite),
		plan.Count(backup.DecisionRename), plan.Count(backup.DecisionSkip))
}

func printImportSummary(w io.Writer, res *backup.ImportResult) {
	st := newStyles(w)
	for _, pe := range res.Applied {
		if pe.Decision == backup.DecisionRename {
			fmt.Fprintf(w, "  %s %s -> %s\n", st.ok.Render(pe.Decision.String()), pe.Entry.Name, pe.Target)
			continue
		}
		fmt.Fprintf(w, "  %s %s\n", st.ok.Render(pe.Decision.String()), pe.Target)
	}
	for _, pe := range res.Skipped {
		fmt.Fprintf(w, "  %s %s\n", st.info.Render("skip"), pe.Target)
	}
	for _, f := range res.Failed {
		fmt.Fprintf(w, "  %s %s: %v\n", st.critical.Render("failed"), f.Name, f.Err)
	}
	fmt.Fprintf(w, "\nImported %d, skipped %d, failed %d\n", len(res.Applied), len(res.Skipped), len(res.Failed))
}
