// Command oauth-test-server runs the OAuth2 test authorization server and,
// with the client subcommand, an example relying party that logs in against it.
package main

import (
	"os"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
