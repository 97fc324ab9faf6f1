package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/forest6511/skm/pkg/keydir"
	"github.com/forest6511/skm/pkg/sshkey"
)

// Copy command flags
var (
	copyStdout bool
	copyFull   bool
)

// clipboardWrite is replaced in tests.
var clipboardWrite = clipboard.WriteAll

func init() {
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(copyCmd)

	copyCmd.Flags().BoolVar(&copyStdout, "stdout", false, "Print the public key instead of copying it")
	copyCmd.Flags().BoolVar(&copyFull, "full", false, "Include the comment")
}

var showCmd = &cobra.Command{
	Use:               "show <name>",
	Short:             "Show details of a key",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeKeyNames,
	RunE:              executeShow,
}

var copyCmd = &cobra.Command{
	Use:   "copy <name>",
	Short: "Copy a public key to the clipboard",
	Long: `Copy a public key to the clipboard, without its comment unless --full is given.

Examples:
  skm copy id_ed25519
  skm copy github --stdout >> authorized_keys`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeKeyNames,
	RunE:              executeCopy,
}

func executeShow(cmd *cobra.Command, args []string) error {
	k, err := keys.Find(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	typ := "-"
	if k.Type.Valid() {
		typ = k.Type.String()
		if k.Bits != nil {
			typ = fmt.Sprintf("%s (%d bits)", typ, *k.Bits)
		}
	}
	fmt.Fprintf(out, "Name:        %s\n", k.Name)
	fmt.Fprintf(out, "Type:        %s\n", typ)
	fmt.Fprintf(out, "Status:      %s\n", k.Status)
	fmt.Fprintf(out, "Private:     %s\n", k.PrivatePath)
	fmt.Fprintf(out, "Public:      %s\n", k.PublicPath)
	fmt.Fprintf(out, "Fingerprint: %s\n", orDash(k.Fingerprint))
	fmt.Fprintf(out, "Comment:     %s\n", orDash(k.Comment))
	if !k.ModTime.IsZero() {
		fmt.Fprintf(out, "Modified:    %s (%s)\n", k.ModTime.Format("2006-01-02 15:04:05"), humanize.Time(k.ModTime))
	}
	fmt.Fprintf(out, "Size:        %s\n", humanize.Bytes(uint64(k.Size)))

	if k.Status != keydir.StatusMissingPublic {
		content, err := os.ReadFile(k.PublicPath)
		if err != nil {
			return fmt.Errorf("failed to read public key: %w", err)
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Public key content:")
		fmt.Fprintln(out, strings.TrimSpace(string(content)))
	}
	return nil
}

// publicKeyLine returns the public key of a key pair, without its comment
// unless full is set.
func publicKeyLine(name string, full bool) (string, error) {
	k, err := keys.Find(name)
	if err != nil {
		return "", err
	}
	if k.Status == keydir.StatusMissingPublic {
		return "", fmt.Errorf("%w: public key for %s", keydir.ErrKeyNotFound, name)
	}
	content, err := os.ReadFile(k.PublicPath)
	if err != nil {
		return "", fmt.Errorf("failed to read public key: %w", err)
	}
	line := strings.TrimSpace(string(content))
	if full {
		return line, nil
	}
	return sshkey.StripComment(line)
}

func executeCopy(cmd *cobra.Command, args []string) error {
	line, err := publicKeyLine(args[0], copyFull)
	if err != nil {
		return err
	}

	if copyStdout {
		fmt.Fprintln(cmd.OutOrStdout(), line)
		return nil
	}
	if err := clipboardWrite(line); err != nil {
		return fmt.Errorf("failed to copy to clipboard (use --stdout instead): %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Copied public key for %s to clipboard\n", args[0])
	return nil
}
