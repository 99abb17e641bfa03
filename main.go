package main

import (
	"os"

	"github.com/agentctl/agentctl/cli"
)

func main() {
	if err := cli.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
