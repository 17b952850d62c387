// Command warbootctl inspects packaged archives and runs them explicitly.
//
// Usage:
//
//	warbootctl [command] [flags]
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/danmuck/warboot/internal/logging"
)

// exitError carries a launched runtime's exit code out of cobra.
type exitError struct {
	code int
}

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func main() {
	logging.ConfigureRuntime()
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintf(os.Stderr, "warbootctl: %v\n", err)
		os.Exit(1)
	}
}
