// Command jwks-fetcher retrieves a JSON Web Key Set with retries and
// last-known-good fallback, either once (fetch) or behind an HTTP
// endpoint (serve).
package main

import (
	"os"

	"github.com/opstrace/go-jwks-fetcher/cmd/jwks-fetcher/cmd"
)

func main() {
	if err := cmd.GetRootCmd(os.Args[1:]).Execute(); err != nil {
		os.Exit(1)
	}
}
