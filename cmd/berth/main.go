package main

import (
	"os"

	"github.com/aholstad/berth/cmd"
)

func main() {
	// All logic lives in the cmd package; cobra prints the error itself.
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
