// Command sparqlrows runs SPARQL queries and prints their rows.
package main

import (
	"fmt"
	"os"

	"github.com/geoknoesis/sparql-rows/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
