// Command weft inspects, replays and verifies sequence CRDT op logs.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/weft/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "weft:", err)
		os.Exit(cli.ExitCode(err))
	}
}
