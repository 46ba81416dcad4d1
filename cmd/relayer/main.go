package main

import (
	"os"

	"github.com/openbridge/gmp-relayer/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
