// Command molapd runs the in-memory multidimensional database server.
package main

import (
	"os"

	"molap.evalgo.org/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
