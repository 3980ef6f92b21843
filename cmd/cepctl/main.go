package main

import (
	"os"

	"github.com/fastdata/cepbridge/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
