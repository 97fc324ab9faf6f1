package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/skm/internal/config"
	"github.com/forest6511/skm/pkg/keydir"
)

// completeKeyNames completes key names from the configured key directory.
// Completion runs without PersistentPreRunE, so configuration is loaded
// here.
func completeKeyNames(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if cmd.Name() != "export" && len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	c, err := config.Load(configFile, cmd.Root().PersistentFlags())
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	all, err := keydir.New(c.SSHDir).Scan()
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}

	var names []string
	for _, k := range all {
		if strings.HasPrefix(k.Name, toComplete) {
			names = append(names, k.Name+"\t"+k.Status.String())
		}
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}
