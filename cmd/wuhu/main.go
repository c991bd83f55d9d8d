// Package main provides the entry point for the wuhu CLI.
package main

import (
	"fmt"
	"os"

	"github.com/wuhu-dev/wuhu/cmd/wuhu/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
