package main

import (
	"fmt"
	"os"

	"github.com/m3rciful/stockbot/core/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "stockbot:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
