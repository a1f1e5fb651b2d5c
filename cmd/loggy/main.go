package main

import (
	"os"

	"github.com/loggy-dev/loggy-go/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
