package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	jwksfetcher "github.com/opstrace/go-jwks-fetcher"
	jwksgin "github.com/opstrace/go-jwks-fetcher/framework/gin"
	"github.com/opstrace/go-jwks-fetcher/jwks"
)

const (
	headerSource = "X-JWKS-Source"
	headerAge    = "X-JWKS-Age"

	shutdownTimeout = 10 * time.Second
)

func newServeCmd(ra *rootArgs) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the key set over HTTP.",
		Long: "Serve starts prepopulating the key set in the background and answers " +
			"GET /jwks with the current key set, GET /healthz and GET /metrics.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ra.loadConfig()
			if err != nil {
				return err
			}

			zapLogger, err := cfg.NewLogger()
			if err != nil {
				return err
			}
			defer func() { _ = zapLogger.Sync() }()
			logger := jwksfetcher.NewZapLogger(zapLogger.Sugar())

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client := cfg.TimeoutBudget().NewHTTPClient()
			jwksURL, err := cfg.ResolveURL(ctx, client)
			if err != nil {
				return err
			}

			registry := prometheus.NewRegistry()
			registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			fetcher, err := jwks.NewFetcher(append(cfg.FetcherOptions(),
				jwks.WithHTTPClient(client),
				jwks.WithLogger(logger),
				jwks.WithMetrics(jwksfetcher.NewPrometheusMetrics(registry)),
				jwks.WithTracer(jwksfetcher.NewOpenTelemetryTracer(otel.Tracer("jwks-fetcher"))),
			)...)
			if err != nil {
				return err
			}

			if cfg.Prepopulate {
				jwks.NewPrepopulator(fetcher).Start(jwksURL)
			}

			gin.SetMode(gin.ReleaseMode)
			server := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           newRouter(fetcher, jwksURL, registry),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening", "addr", cfg.ListenAddr, "jwks_url", jwksURL)
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("server failed: %w", err)
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
}

// newRouter returns the routes of the serve command.
func newRouter(fetcher jwksgin.Fetcher, jwksURL string, gatherer prometheus.Gatherer) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	router.GET("/jwks", jwksgin.NewGinMiddleware(fetcher, jwksURL), serveKeySet)

	return router
}

func serveKeySet(c *gin.Context) {
	result, err := jwksgin.GetResult(c, "")
	if err != nil {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	c.Header(headerSource, result.Source.String())
	if result.Stale() {
		c.Header(headerAge, strconv.FormatInt(int64(result.Age.Seconds()), 10))
	}
	c.Data(http.StatusOK, "application/json", result.KeySet)
}
