// Command qb builds, checks and stores graph query documents.
package main

import (
	"os"

	"github.com/roach88/querybuilder/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	os.Exit(cli.GetExitCode(err))
}
