package main

import (
	"os"

	"github.com/oora/tellerloop/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
