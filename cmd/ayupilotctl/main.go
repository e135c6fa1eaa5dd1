// Package main is the entrypoint for ayupilotctl.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kiranshivaraju/ayupilot/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
