package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/forest6511/skm/internal/cli"
	"github.com/forest6511/skm/pkg/backup"
	"github.com/forest6511/skm/pkg/crypto"
	"github.com/forest6511/skm/pkg/security"
)

// Export command flags
var (
	exportOutput          string
	exportKeys            []string
	exportPublicOnly      bool
	exportDescription     string
	exportPassphraseStdin bool
	exportPassphraseFile  string
	exportForce           bool
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Archive file path or s3://bucket/key (required)")
	exportCmd.Flags().StringSliceVarP(&exportKeys, "keys", "k", nil, "Keys to export (glob pattern supported, default all)")
	exportCmd.Flags().BoolVar(&exportPublicOnly, "public-only", false, "Export public keys only")
	exportCmd.Flags().StringVarP(&exportDescription, "description", "d", "", "Description stored in the archive")
	exportCmd.Flags().BoolVar(&exportPassphraseStdin, "passphrase-stdin", false, "Read the passphrase from the first line of stdin")
	exportCmd.Flags().StringVar(&exportPassphraseFile, "passphrase-file", "", "Read the passphrase from the first line of a file")
	exportCmd.Flags().BoolVar(&exportForce, "force", false, "Overwrite an existing archive file")
	_ = exportCmd.MarkFlagRequired("output")
	exportCmd.MarkFlagsMutuallyExclusive("passphrase-stdin", "passphrase-file")
	_ = exportCmd.RegisterFlagCompletionFunc("keys", completeKeyNames)
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export keys to an encrypted archive",
	Long: `Export SSH keys to a passphrase-encrypted .skm archive.

The archive is encrypted with AES-256-GCM under a key derived from the
passphrase with Argon2id. Requesting a key that does not exist fails the
whole export.

Examples:
  # Export every key
  skm export -o keys.skm

  # Export selected keys
  skm export -o work.skm -k "work_*" -k id_ed25519

  # Public keys only, uploaded to S3
  skm export --public-only -o s3://backups/ssh/public.skm

  # Unattended
  skm export -o nightly.skm --passphrase-file ~/.config/skm/pass --force`,
	Args: cobra.NoArgs,
	RunE: executeExport,
}

func executeExport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	names, err := exportNames(exportKeys)
	if err != nil {
		return err
	}

	passphrase, err := terminal.ReadPassphrase(cli.PassphraseOptions{
		Stdin:   exportPassphraseStdin,
		File:    exportPassphraseFile,
		Confirm: true,
		Prompt:  "Archive passphrase",
	})
	if err != nil {
		return err
	}
	defer crypto.SecureWipe(passphrase)

	if strength := security.RatePassphrase(passphrase); strength == security.Weak {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: passphrase strength is %s (use at least %d characters)\n",
			strength, security.MinPassphraseLength)
		if terminal.Interactive() && !terminal.Confirm("Continue with this passphrase?") {
			fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
			return nil
		}
	}

	res, err := backup.Export(ctx, keys, passphrase, backup.ExportOptions{
		Names:       names,
		PublicOnly:  exportPublicOnly,
		Description: exportDescription,
		Params:      kdfParams,
		Logger:      logger,
	})
	if err == nil {
		err = writeArchive(ctx, exportOutput, res.Data, exportForce)
	}
	recordRun(ctx, exportRun(exportOutput, res, err))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Exported %d key(s) to %s (%s)\n",
		len(res.Archive.Entries), exportOutput, humanize.Bytes(uint64(len(res.Data))))
	if n := res.Archive.PublicOnlyCount(); n > 0 {
		fmt.Fprintf(out, "  %d key(s) without private key\n", n)
	}
	return nil
}

// exportNames expands --keys patterns against the key directory. Exact
// names are passed through so that missing keys are reported together.
func exportNames(patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	all, err := keys.Scan()
	if err != nil {
		return nil, err
	}
	available := make([]string, 0, len(all))
	for _, k := range all {
		available = append(available, k.Name)
	}
	names, err := cli.ExpandPatterns(patterns, available)
	if errors.Is(err, cli.ErrNoMatch) {
		return nil, fmt.Errorf("%w (run 'skm list' to see available keys)", err)
	}
	return names, err
}
