package main

import (
	"context"
	"os"

	"github.com/finnctl/finnctl/pkg/cli"
	"github.com/finnctl/finnctl/pkg/process"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	os.Exit(run())
}

// run executes the CLI and returns the process exit status. Errors have
// already been reported by the CLI.
func run() int {
	pm := process.NewManager(nil)
	ctx, stop := pm.Context(context.Background())
	defer stop()

	return cli.ExitCode(cli.ExecuteWithVersion(ctx, version))
}
