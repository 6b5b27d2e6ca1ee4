package main

import (
	"os"

	"github.com/rustyeddy/tradeguard/cmd/guard/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
