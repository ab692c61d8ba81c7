package main

import (
	"fmt"
	"os"

	_ "go.uber.org/automaxprocs"

	"github.com/danieljhkim/assetmirror/internal/cli"
)

var version = "dev"

func main() {
	cli.SetVersion(version)

	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
