package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opstrace/go-jwks-fetcher/config"
)

// rootArgs are flags shared by all subcommands. Set flags override the
// corresponding JWKS_* environment variables.
type rootArgs struct {
	url       string
	issuerURL string
	logLevel  string
}

// GetRootCmd returns the root of the cobra command-tree.
func GetRootCmd(args []string) *cobra.Command {
	ra := &rootArgs{}

	rootCmd := &cobra.Command{
		Use:   "jwks-fetcher",
		Short: "Retrieve a JSON Web Key Set with retries and last-known-good fallback.",
		Long: "jwks-fetcher retrieves a JSON Web Key Set. Configuration is read from JWKS_* " +
			"environment variables; the flags below take precedence.",
		SilenceUsage: true,
	}

	rootCmd.SetArgs(args)
	rootCmd.PersistentFlags().StringVar(&ra.url, "url", "", "JWKS endpoint (JWKS_URL)")
	rootCmd.PersistentFlags().StringVar(&ra.issuerURL, "issuer-url", "",
		"OIDC issuer whose discovery document names the JWKS endpoint (JWKS_ISSUER_URL)")
	rootCmd.PersistentFlags().StringVar(&ra.logLevel, "log-level", "", "log level (JWKS_LOG_LEVEL)")

	rootCmd.AddCommand(newFetchCmd(ra))
	rootCmd.AddCommand(newServeCmd(ra))

	return rootCmd
}

// loadConfig reads the environment and applies flag overrides.
func (ra *rootArgs) loadConfig() (config.Config, error) {
	environ := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			environ[k] = v
		}
	}

	if ra.url != "" {
		environ["JWKS_URL"] = ra.url
	}
	if ra.issuerURL != "" {
		environ["JWKS_ISSUER_URL"] = ra.issuerURL
	}
	if ra.logLevel != "" {
		environ["JWKS_LOG_LEVEL"] = ra.logLevel
	}

	return config.FromMap(environ)
}
