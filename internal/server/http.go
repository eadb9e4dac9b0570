package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/gmailvault/internal/instrumentation"
)

// MCPEndpointPath is where the streamable HTTP transport is mounted.
const MCPEndpointPath = "/mcp"

// HTTP server timeouts for the MCP endpoint. Writes are left unbounded so
// long-running tool calls can stream their result.
const (
	DefaultHTTPReadHeaderTimeout = 10 * time.Second
	DefaultHTTPIdleTimeout       = 120 * time.Second
)

// MCPHTTPServer serves the MCP streamable HTTP transport plus health endpoints.
type MCPHTTPServer struct {
	addr       string
	handler    http.Handler
	httpServer *http.Server
	logger     *slog.Logger
}

// NewMCPHTTPServer mounts mcpSrv at /mcp. health may be nil, in which case
// only the MCP endpoint is served. Requests to /mcp are recorded in metrics,
// which may be nil.
func NewMCPHTTPServer(mcpSrv *mcpserver.MCPServer, addr string, health *HealthChecker, metrics *instrumentation.Metrics, logger *slog.Logger) (*MCPHTTPServer, error) {
	if mcpSrv == nil {
		return nil, fmt.Errorf("MCP server is required")
	}
	if addr == "" {
		return nil, fmt.Errorf("HTTP address is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	streamable := mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithEndpointPath(MCPEndpointPath),
	)

	mux := http.NewServeMux()
	mux.Handle(MCPEndpointPath, instrumentHTTP(metrics, MCPEndpointPath, streamable))
	if health != nil {
		health.RegisterHealthEndpoints(mux)
	}

	return &MCPHTTPServer{
		addr:    addr,
		handler: mux,
		httpServer: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: DefaultHTTPReadHeaderTimeout,
			IdleTimeout:       DefaultHTTPIdleTimeout,
		},
		logger: logger,
	}, nil
}

// Handler returns the server's routes.
func (s *MCPHTTPServer) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and blocks until the server stops.
func (s *MCPHTTPServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.logger.Info("starting MCP HTTP server",
		slog.String("addr", ln.Addr().String()),
		slog.String("endpoint", MCPEndpointPath))
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *MCPHTTPServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the configured listen address.
func (s *MCPHTTPServer) Addr() string {
	return s.addr
}

// instrumentHTTP records the count and duration of requests served by next.
// path is the route pattern, not the request URL, to bound label cardinality.
func instrumentHTTP(metrics *instrumentation.Metrics, path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.RecordHTTPRequest(r.Context(), r.Method, path, rec.status, time.Since(start))
	})
}

// statusRecorder captures the response status. It forwards Flush so
// streamed responses keep working.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
