// Command autotrade reconciles buff163 orders with Steam trade offers for
// every account in the config.
//
// Usage:
//
//	autotrade --config config.yaml
//	autotrade sessions
//	autotrade history --account alice
//	autotrade setup
//
// Secrets may be kept in a .env file and referenced from the config as ${VAR}.
package main

import (
	"fmt"
	"os"

	"github.com/vadiminshakov/autotrade/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
