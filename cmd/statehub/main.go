// Command statehub serves and inspects event-sourced stores and durable
// workflows kept in an append-only SQLite log.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/statehub/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
