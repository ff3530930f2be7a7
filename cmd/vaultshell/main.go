// vaultshell drives a vault CLI shell from the command line for diagnostics.
package main

import (
	"os"

	"github.com/randalmurphal/vaultshell/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
