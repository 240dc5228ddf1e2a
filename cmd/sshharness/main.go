package main

import (
	"os"

	"sshHarness/internal/cli"
)

var version = "dev"

func main() {
	os.Exit(cli.Execute(version))
}
