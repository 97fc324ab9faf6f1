package main

import (
	"errors"
	"fmt"
	"os"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/forest6511/skm/internal/cli"
	"github.com/forest6511/skm/pkg/crypto"
	"github.com/forest6511/skm/pkg/keygen"
	"github.com/forest6511/skm/pkg/sshkey"
)

// Generate command flags
var (
	genType            string
	genFilename        string
	genComment         string
	genBits            int
	genPassphrase      bool
	genPassphraseStdin bool
)

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVarP(&genType, "type", "t", "ed25519", "Key type: ed25519, rsa")
	generateCmd.Flags().StringVarP(&genFilename, "filename", "f", "", "Key file name (default id_ed25519 or id_rsa)")
	generateCmd.Flags().StringVarP(&genComment, "comment", "C", "", "Key comment (default user@host)")
	generateCmd.Flags().IntVarP(&genBits, "bits", "b", 0, fmt.Sprintf("RSA key size (default %d)", keygen.DefaultRSABits))
	generateCmd.Flags().BoolVarP(&genPassphrase, "passphrase", "p", false, "Protect the private key with a passphrase (prompted)")
	generateCmd.Flags().BoolVar(&genPassphraseStdin, "passphrase-stdin", false, "Read the key passphrase from the first line of stdin")
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new SSH key pair",
	Long: `Generate a new SSH key pair in the key directory.

Examples:
  # Ed25519 key named id_ed25519
  skm generate

  # RSA key with a custom name and comment
  skm generate -t rsa -b 4096 -f deploy_rsa -C deploy@ci

  # Passphrase protected key
  skm generate -f github -p`,
	Args: cobra.NoArgs,
	RunE: executeGenerate,
}

func defaultComment() string {
	name := "user"
	if u, err := user.Current(); err == nil && u.Username != "" {
		name = u.Username
	}
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return name + "@" + host
}

func executeGenerate(cmd *cobra.Command, _ []string) error {
	kt, err := sshkey.ParseKeyType(genType)
	if err != nil {
		return err
	}
	if kt != sshkey.RSA && cmd.Flags().Changed("bits") {
		return fmt.Errorf("--bits only applies to RSA keys")
	}

	name := genFilename
	if name == "" {
		name = kt.DefaultFilename()
	}
	if err := sshkey.ValidateName(name); err != nil {
		return err
	}
	if keys.Exists(name) {
		return fmt.Errorf("key %s already exists (delete it first)", name)
	}

	comment := genComment
	if !cmd.Flags().Changed("comment") {
		comment = defaultComment()
	}

	var passphrase []byte
	if genPassphrase || genPassphraseStdin {
		passphrase, err = terminal.ReadPassphrase(cli.PassphraseOptions{
			Stdin:   genPassphraseStdin,
			Confirm: true,
			Prompt:  "Key passphrase",
		})
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(passphrase)
	}

	rec, err := keygen.Generate(keygen.Options{
		Name:       name,
		Type:       kt,
		Bits:       genBits,
		Comment:    comment,
		Passphrase: passphrase,
	})
	if err != nil {
		if errors.Is(err, keygen.ErrInvalidBits) {
			return fmt.Errorf("%w (RSA keys must be %d to %d bits)", err, keygen.MinRSABits, keygen.MaxRSABits)
		}
		return err
	}
	if err := keys.WriteKey(name, rec); err != nil {
		return err
	}
	logger.Info(cmd.Context(), "generated key", "key", rec)

	k, err := keys.Find(name)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Generated key: %s\n", name)
	fmt.Fprintf(out, "  Private:     %s\n", k.PrivatePath)
	fmt.Fprintf(out, "  Public:      %s\n", k.PublicPath)
	fmt.Fprintf(out, "  Fingerprint: %s\n", k.Fingerprint)
	return nil
}
