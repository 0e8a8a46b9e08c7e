// Command snstore is the content repository maintenance CLI.
package main

import (
	"os"

	"github.com/gupta2140/sensenet/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
