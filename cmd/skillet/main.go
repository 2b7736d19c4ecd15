package main

import (
	"os"

	"github.com/skilletai/skillet/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
