package cmd

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/opstrace/go-jwks-fetcher/jwks"
)

func newFetchCmd(ra *rootArgs) *cobra.Command {
	var timeout time.Duration

	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch the key set once and print it.",
		Long: "Fetch performs one retried GET of the key set and prints it to stdout. " +
			"The source and attempt count go to stderr. The exit status is non-zero " +
			"when no key set could be obtained.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ra.loadConfig()
			if err != nil {
				return err
			}

			// One-shot runs log human-readable lines to stderr.
			logger := hclog.New(&hclog.LoggerOptions{
				Name:   "jwks-fetcher",
				Level:  hclog.LevelFromString(cfg.LogLevel),
				Output: cmd.ErrOrStderr(),
			})

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			client := cfg.TimeoutBudget().NewHTTPClient()
			jwksURL, err := cfg.ResolveURL(ctx, client)
			if err != nil {
				return err
			}

			fetcher, err := jwks.NewFetcher(append(cfg.FetcherOptions(),
				jwks.WithHTTPClient(client),
				jwks.WithLogger(logger),
			)...)
			if err != nil {
				return err
			}

			result, err := fetcher.Fetch(ctx, jwksURL)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "source=%s attempts=%d url=%s\n", result.Source, result.Attempts, jwksURL)

			var pretty bytes.Buffer
			if err := json.Indent(&pretty, result.KeySet, "", "  "); err != nil {
				pretty.Reset()
				pretty.Write(result.KeySet)
			}
			fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
			return nil
		},
	}

	fetchCmd.Flags().DurationVar(&timeout, "timeout", 0, "overall deadline for the fetch (0 means none)")
	return fetchCmd
}
