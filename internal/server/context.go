package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"

	"github.com/teemow/gmailvault/internal/config"
	"github.com/teemow/gmailvault/internal/download"
	"github.com/teemow/gmailvault/internal/gmail"
	"github.com/teemow/gmailvault/internal/google"
	"github.com/teemow/gmailvault/internal/instrumentation"
)

// Services are the authorized clients tool handlers work with.
type Services struct {
	Gmail        *gmail.Client
	Downloader   *download.Downloader
	Orchestrator *download.Orchestrator
}

// ConnectFunc builds an authorized Gmail client.
type ConnectFunc func(ctx context.Context) (*gmail.Client, error)

// Options configure a ServerContext.
type Options struct {
	Config   *config.Config
	Logger   *slog.Logger
	Provider *instrumentation.Provider

	// Connect overrides how the Gmail client is built. The default
	// authorizes with the configured credential and token files.
	Connect ConnectFunc
}

// ServerContext holds the state shared by all tool handlers. Gmail services
// are created on first use and cached; a failed authorization is not cached,
// so running `gmailvault auth` while the server is up takes effect on the
// next call.
type ServerContext struct {
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      *config.Config
	logger   *slog.Logger
	provider *instrumentation.Provider
	metrics  *instrumentation.Metrics
	connect  ConnectFunc

	mu       sync.Mutex
	services *Services
	shutdown bool
}

// NewServerContext creates a new server context.
func NewServerContext(ctx context.Context, opts Options) (*ServerContext, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	shutdownCtx, cancel := context.WithCancel(ctx)
	sc := &ServerContext{
		ctx:      shutdownCtx,
		cancel:   cancel,
		cfg:      opts.Config,
		logger:   logger,
		provider: opts.Provider,
		metrics:  opts.Provider.Metrics(),
		connect:  opts.Connect,
	}
	if sc.connect == nil {
		sc.connect = sc.authorizeGmail
	}
	return sc, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Config returns the loaded configuration.
func (sc *ServerContext) Config() *config.Config {
	return sc.cfg
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// Metrics returns the metrics recorder. It is never nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// Services returns the cached Gmail services, authorizing on first use. An
// authorization failure is returned unchanged so that callers can match
// google.ErrAuthorizationRequired.
func (sc *ServerContext) Services(ctx context.Context) (*Services, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil, fmt.Errorf("server is shutting down")
	}
	if sc.services != nil {
		return sc.services, nil
	}

	client, err := sc.connect(ctx)
	if err != nil {
		return nil, err
	}

	downloader := download.NewDownloader(client, download.Config{
		DefaultDir: sc.cfg.DownloadDir,
		Metrics:    sc.metrics,
		Logger:     sc.logger,
	})
	sc.services = &Services{
		Gmail:        client,
		Downloader:   downloader,
		Orchestrator: download.NewOrchestrator(client, downloader, sc.metrics, sc.logger),
	}
	sc.logger.Info("gmail services initialized")
	return sc.services, nil
}

// Authorized reports whether Gmail services have been initialized.
func (sc *ServerContext) Authorized() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.services != nil
}

// authorizeGmail is the default ConnectFunc. The session lives on the
// server context, not the request context, so token refreshes keep working
// after the triggering call returns.
func (sc *ServerContext) authorizeGmail(_ context.Context) (*gmail.Client, error) {
	session, err := google.Authorize(sc.ctx, google.AuthOptions{
		CredentialsFile: sc.cfg.CredentialsFile,
		TokenFile:       sc.cfg.TokenFile,
		Logger:          sc.logger,
	})
	if err != nil {
		return nil, err
	}

	session.OnRefresh(func(*oauth2.Token) error {
		sc.metrics.RecordOAuthTokenRefresh(sc.ctx, instrumentation.OAuthResultSuccess)
		return nil
	})
	session.OnRefreshError(func(error) {
		sc.metrics.RecordOAuthTokenRefresh(sc.ctx, instrumentation.OAuthResultFailure)
	})

	client, err := gmail.NewClient(sc.ctx, session.HTTPClient(sc.ctx), gmail.Options{
		RequestsPerSecond: sc.cfg.RequestsPerSecond,
		Metrics:           sc.metrics,
		Logger:            sc.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail client: %w", err)
	}
	return client, nil
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.shutdown
}

// Shutdown shuts down the server context
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
