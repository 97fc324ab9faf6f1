package main

import (
	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate completion script for your shell",
	Long: `To load completions:

Bash:
  $ source <(skm completion bash)

  # To load for each session (Linux):
  $ skm completion bash > ~/.local/share/bash-completion/completions/skm

Zsh:
  $ skm completion zsh > ~/.zsh/completions/_skm
  # (add ~/.zsh/completions to fpath in .zshrc)

Fish:
  $ skm completion fish > ~/.config/fish/completions/skm.fish

PowerShell:
  PS> skm completion powershell >> $PROFILE

Key names are completed for show, copy, delete and export --keys.
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletionV2(out, true)
		case "zsh":
			return cmd.Root().GenZshCompletion(out)
		case "fish":
			return cmd.Root().GenFishCompletion(out, true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(out)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
