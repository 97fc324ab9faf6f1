package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/forest6511/skm/internal/cli"
	"github.com/forest6511/skm/pkg/backup"
	"github.com/forest6511/skm/pkg/crypto"
)

// Inspect command flags
var (
	inspectVerify          bool
	inspectPassphraseStdin bool
	inspectPassphraseFile  string
)

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().BoolVar(&inspectVerify, "verify", false, "Decrypt the archive and list its keys")
	inspectCmd.Flags().BoolVar(&inspectPassphraseStdin, "passphrase-stdin", false, "Read the passphrase from the first line of stdin")
	inspectCmd.Flags().StringVar(&inspectPassphraseFile, "passphrase-file", "", "Read the passphrase from the first line of a file")
	inspectCmd.MarkFlagsMutuallyExclusive("passphrase-stdin", "passphrase-file")
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show archive details",
	Long: `Show the container details of an archive without a passphrase.

With --verify the archive is decrypted and its keys are listed. Nothing is
written to the key directory.

Examples:
  skm inspect keys.skm
  skm inspect s3://backups/ssh/keys.skm --verify`,
	Args: cobra.ExactArgs(1),
	RunE: executeInspect,
}

func executeInspect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	location := args[0]

	data, err := readArchive(ctx, location)
	if err != nil {
		return err
	}
	info, err := backup.Inspect(data)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "File:    %s\n", location)
	fmt.Fprintf(out, "Size:    %s\n", humanize.Bytes(uint64(info.Size)))
	switch info.Kind {
	case backup.KindLegacyAge:
		format := "age (scrypt), legacy"
		if info.Armored {
			format += ", armored"
		}
		fmt.Fprintf(out, "Format:  %s\n", format)
	default:
		fmt.Fprintf(out, "Format:  skm v%d (Argon2id, AES-256-GCM)\n", info.Version)
		fmt.Fprintf(out, "Payload: %s encrypted\n", humanize.Bytes(uint64(info.CiphertextSize)))
	}
	if !inspectVerify {
		return nil
	}

	passphrase, err := terminal.ReadPassphrase(cli.PassphraseOptions{
		Stdin:  inspectPassphraseStdin,
		File:   inspectPassphraseFile,
		Prompt: "Archive passphrase",
	})
	if err != nil {
		return err
	}
	defer crypto.SecureWipe(passphrase)

	archive, err := backup.ReadContainer(data, passphrase, kdfParams)
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	printArchiveSummary(out, archive)
	fmt.Fprintln(out)
	w := newTable(out)
	fmt.Fprintln(w, "NAME\tTYPE\tBITS\tPRIVATE\tFINGERPRINT\tCOMMENT")
	for _, e := range archive.Entries {
		bits := "-"
		if e.Bits != nil {
			bits = fmt.Sprintf("%d", *e.Bits)
		}
		private := "yes"
		if e.PublicOnly() {
			private = "no"
		}
		fp, err := e.Fingerprint()
		if err != nil {
			fp = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", e.Name, e.Type, bits, private, fp, orDash(e.Comment))
	}
	return w.Flush()
}
