package main

import (
	"os"

	"github.com/ottosulin/claude-code-security-review/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
