// Command skm manages SSH keys and encrypted key backups.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	os.Exit(execute())
}

// execute runs the root command and maps its error to an exit code.
func execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return ExitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(os.Stderr, "Error:", describeError(ee.err))
		}
		return ee.code
	}
	fmt.Fprintln(os.Stderr, "Error:", describeError(err))
	return ExitFailure
}
