package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/forest6511/skm/internal/cli"
	"github.com/forest6511/skm/internal/config"
	"github.com/forest6511/skm/internal/logging"
	"github.com/forest6511/skm/pkg/crypto"
	"github.com/forest6511/skm/pkg/keydir"
	"github.com/forest6511/skm/pkg/security"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// Global flags
var (
	sshDirFlag   string
	configFile   string
	logLevelFlag string
	debugFlag    bool
)

// Per-invocation state, set up by PersistentPreRunE.
var (
	cfg      *config.Config
	logger   logging.Logger = logging.Nop()
	keys     *keydir.Dir
	terminal *cli.Terminal

	// kdfParams overrides the archive key derivation cost. Nil uses the
	// parameters bound to the format version.
	kdfParams *crypto.Params
)

var rootCmd = &cobra.Command{
	Use:   "skm",
	Short: "skm manages SSH keys and encrypted key backups",
	Long: `skm lists, generates and deletes SSH keys in ~/.ssh and moves them between
machines as passphrase-encrypted .skm archives.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		hardenErr := security.HardenProcess()

		c, err := config.Load(configFile, cmd.Root().PersistentFlags())
		if err != nil {
			return err
		}
		level, err := logging.ParseLevel(c.LogLevel)
		if err != nil {
			return err
		}
		if debugFlag {
			level = slog.LevelDebug
		}

		cfg = c
		logger = logging.New(cmd.ErrOrStderr(), level)
		keys = keydir.New(c.SSHDir)
		terminal = cli.NewTerminal(cmd.InOrStdin(), cmd.ErrOrStderr())

		if hardenErr != nil {
			logger.Warn(cmd.Context(), "process hardening failed", "error", hardenErr)
		}
		logger.Debug(cmd.Context(), "configuration loaded",
			"config_file", c.File, "ssh_dir", c.SSHDir, "history", c.HistoryPath)
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&sshDirFlag, "ssh-dir", "", "Path to SSH directory (default ~/.ssh)")
	pf.StringVar(&configFile, "config", "", "Config file (default $XDG_CONFIG_HOME/skm/config.yaml)")
	pf.StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error")
	pf.BoolVar(&debugFlag, "debug", false, "Enable debug logging")
}

