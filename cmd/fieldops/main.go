package main

import (
	"os"

	"github.com/fieldops/fieldops/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
