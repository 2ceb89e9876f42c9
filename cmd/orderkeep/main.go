// Command orderkeep keeps an encrypted history of arbiko.pl orders.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/orderkeep/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
