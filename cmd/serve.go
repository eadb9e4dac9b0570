package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/gmailvault/internal/config"
	"github.com/teemow/gmailvault/internal/google"
	"github.com/teemow/gmailvault/internal/instrumentation"
	"github.com/teemow/gmailvault/internal/logging"
	"github.com/teemow/gmailvault/internal/server"
	"github.com/teemow/gmailvault/internal/tools/gmail_tools"
)

const (
	transportStdio          = "stdio"
	transportStreamableHTTP = "streamable-http"

	shutdownTimeout = 30 * time.Second
)

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

type serveOptions struct {
	Transport string
	HTTPAddr  string
	Metrics   MetricsConfig
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server that exposes Gmail search,
retrieval and attachment download tools to AI assistants.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - streamable-http: Streamable HTTP transport on --http-addr at /mcp

The OAuth client credentials file must be configured (--credentials-file or
GOOGLE_APPLICATION_CREDENTIALS). Tools report an authorization error until
"gmailvault auth" has been run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("metrics-enabled") && os.Getenv("METRICS_ENABLED") == "false" {
				opts.Metrics.Enabled = false
			}
			if !cmd.Flags().Changed("metrics-addr") {
				if addr := os.Getenv("METRICS_ADDR"); addr != "" {
					opts.Metrics.Addr = addr
				}
			}

			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, logger, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Transport, "transport", transportStdio, "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&opts.HTTPAddr, "http-addr", ":8080", "HTTP server address (for streamable-http transport)")
	cmd.Flags().BoolVar(&opts.Metrics.Enabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port (streamable-http only). Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&opts.Metrics.Addr, "metrics-addr", ":9090", "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

// checkCredentialsSource fails when the OAuth client credentials cannot be
// read. A missing token file is not fatal: tools report it per call.
func checkCredentialsSource(cfg *config.Config) error {
	if _, err := google.LoadClientConfig(cfg.CredentialsFile, google.DefaultScopes...); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	return nil
}

// telemetryConfig maps the telemetry section onto the provider settings.
func telemetryConfig(t config.TelemetryConfig) instrumentation.Config {
	return instrumentation.Config{
		ServiceName:       t.ServiceName,
		ServiceVersion:    version,
		Enabled:           t.Enabled,
		MetricsExporter:   t.MetricsExporter,
		TracingExporter:   t.TracingExporter,
		OTLPEndpoint:      t.OTLPEndpoint,
		OTLPInsecure:      t.OTLPInsecure,
		TraceSamplingRate: t.SamplingRate,
	}
}

func runServe(parent context.Context, cfg *config.Config, logger *slog.Logger, opts serveOptions) error {
	if opts.Transport != transportStdio && opts.Transport != transportStreamableHTTP {
		return fmt.Errorf("unsupported transport type: %s (supported: %s, %s)", opts.Transport, transportStdio, transportStreamableHTTP)
	}
	if err := checkCredentialsSource(cfg); err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	provider, err := instrumentation.NewProvider(shutdownCtx, telemetryConfig(cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Warn("instrumentation shutdown failed", logging.Err(err))
		}
	}()

	serverContext, err := server.NewServerContext(shutdownCtx, server.Options{
		Config:   cfg,
		Logger:   logger,
		Provider: provider,
	})
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		_ = serverContext.Shutdown()
	}()

	mcpSrv, err := newMCPServer(serverContext)
	if err != nil {
		return err
	}

	logger.Info("starting gmailvault MCP server",
		slog.String("version", version),
		slog.String("transport", opts.Transport),
		slog.String("download_dir", cfg.DownloadDir))

	switch opts.Transport {
	case transportStdio:
		return runStdioServer(shutdownCtx, mcpSrv, logger)
	default:
		return runStreamableHTTPServer(shutdownCtx, mcpSrv, serverContext, provider, opts, logger)
	}
}

// newMCPServer creates the MCP server with every tool registered.
func newMCPServer(sc *server.ServerContext) (*mcpserver.MCPServer, error) {
	mcpSrv := mcpserver.NewMCPServer("gmailvault", version,
		mcpserver.WithToolCapabilities(true),
	)
	if err := gmail_tools.RegisterGmailTools(mcpSrv, sc); err != nil {
		return nil, fmt.Errorf("failed to register Gmail tools: %w", err)
	}
	return mcpSrv, nil
}

func runStdioServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, logger *slog.Logger) error {
	stdio := mcpserver.NewStdioServer(mcpSrv)
	stdio.SetErrorLogger(log.New(os.Stderr, "", log.LstdFlags))

	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	logger.Info("stdio server stopped")
	return nil
}

func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, provider *instrumentation.Provider, opts serveOptions, logger *slog.Logger) error {
	health := server.NewHealthChecker(sc)

	httpServer, err := server.NewMCPHTTPServer(mcpSrv, opts.HTTPAddr, health, sc.Metrics(), logger)
	if err != nil {
		return err
	}

	var metricsServer *server.MetricsServer
	if opts.Metrics.Enabled && provider.Enabled() && provider.PrometheusEnabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    opts.Metrics.Addr,
			InstrumentationProvider: provider,
			Health:                  health,
			Logger:                  logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
	}

	serverDone := make(chan error, 2)
	go func() {
		serverDone <- httpServer.Start()
	}()
	if metricsServer != nil {
		go func() {
			serverDone <- metricsServer.Start()
		}()
	}
	health.SetReady(true)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping HTTP server")
	case err := <-serverDone:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}
	health.SetReady(false)

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if metricsServer != nil {
		if err := metricsServer.Shutdown(stopCtx); err != nil {
			logger.Warn("metrics server shutdown failed", logging.Err(err))
		}
	}
	if err := httpServer.Shutdown(stopCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("error shutting down HTTP server: %w", err)
	}

	if runErr == nil {
		logger.Info("HTTP server gracefully stopped")
	}
	return runErr
}
