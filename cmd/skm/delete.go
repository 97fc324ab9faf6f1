package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteForce bool

func init() {
	rootCmd.AddCommand(deleteCmd)

	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Delete without confirmation")
}

var deleteCmd = &cobra.Command{
	Use:               "delete <name>",
	Aliases:           []string{"rm"},
	Short:             "Delete a key pair",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeKeyNames,
	RunE:              executeDelete,
}

func executeDelete(cmd *cobra.Command, args []string) error {
	name := args[0]
	if _, err := keys.Find(name); err != nil {
		return err
	}

	if !deleteForce && !terminal.Confirm(fmt.Sprintf("Delete key '%s' and its public key?", name)) {
		fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
		return nil
	}

	if err := keys.Delete(name); err != nil {
		return err
	}
	logger.Info(cmd.Context(), "deleted key", "name", name)
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted key: %s\n", name)
	return nil
}
