package main

import (
	"os"

	"github.com/Xhuk/continuitybridge/cmd/bridgectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
