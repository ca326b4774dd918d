// Package main is the entry point for channelfold.
package main

import (
	"os"

	"github.com/voyagen/channelfold/cmd/channelfold/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
