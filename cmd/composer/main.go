// Command composer is the entry point for the composer binary. It delegates
// immediately to the CLI command tree.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/danielpatrickdp/adaptive-prompt/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
