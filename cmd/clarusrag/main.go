// Package main provides the entry point for the clarusrag CLI.
package main

import (
	"os"

	"github.com/ba3ai/Clarus-Updated-sub000/cmd/clarusrag/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
