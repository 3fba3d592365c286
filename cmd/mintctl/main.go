package main

import (
	"fmt"
	"os"

	"credit-mint-engine/cmd/mintctl/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
