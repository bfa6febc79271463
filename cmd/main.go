package main

import (
	"os"

	"worktally/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
