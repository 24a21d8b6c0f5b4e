package main

import (
	"os"

	"github.com/vaultrag/vaultrag/cmd/vaultrag/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
