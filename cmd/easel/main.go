package main

import (
	"os"

	"github.com/easelhq/easel/cmd/easel/commands"
)

// Version information set by build flags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
