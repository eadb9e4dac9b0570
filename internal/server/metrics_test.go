package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/gmailvault/internal/instrumentation"
)

func TestNewMetricsServer(t *testing.T) {
	tests := []struct {
		name        string
		config      MetricsServerConfig
		errContains string
	}{
		{
			name: "valid config",
			config: MetricsServerConfig{
				Addr:                    ":9090",
				InstrumentationProvider: createTestProvider(t, instrumentation.ExporterPrometheus),
			},
		},
		{
			name: "default addr",
			config: MetricsServerConfig{
				InstrumentationProvider: createTestProvider(t, instrumentation.ExporterPrometheus),
			},
		},
		{
			name:        "nil provider",
			config:      MetricsServerConfig{Addr: ":9090"},
			errContains: "instrumentation provider is required",
		},
		{
			name: "disabled provider",
			config: MetricsServerConfig{
				Addr:                    ":9090",
				InstrumentationProvider: createDisabledProvider(t),
			},
			errContains: "instrumentation provider is not enabled",
		},
		{
			name: "non-prometheus exporter",
			config: MetricsServerConfig{
				InstrumentationProvider: createTestProvider(t, instrumentation.ExporterStdout),
			},
			errContains: "requires the \"prometheus\" metrics exporter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, err := NewMetricsServer(tt.config)
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, srv)
			if tt.config.Addr == "" {
				assert.Equal(t, DefaultMetricsAddr, srv.Addr())
			}
		})
	}
}

func TestMetricsServer_Routes(t *testing.T) {
	provider := createTestProvider(t, instrumentation.ExporterPrometheus)
	provider.Metrics().RecordAttachmentDownload(context.Background(), instrumentation.StatusSuccess, instrumentation.ReasonNone, 42)

	srv, err := NewMetricsServer(MetricsServerConfig{InstrumentationProvider: provider, Logger: discardLogger()})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsServer_HealthEndpoints(t *testing.T) {
	sc := newTestServerContext(t, nil)
	health := NewHealthChecker(sc)

	srv, err := NewMetricsServer(MetricsServerConfig{
		InstrumentationProvider: createTestProvider(t, instrumentation.ExporterPrometheus),
		Health:                  health,
		Logger:                  discardLogger(),
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, healthStatusOK, body.Status)
	assert.Equal(t, gmailStatusUnauthorized, body.Checks["gmail"])
}

func TestMetricsServer_ShutdownWithoutStart(t *testing.T) {
	srv, err := NewMetricsServer(MetricsServerConfig{
		Addr:                    ":9090",
		InstrumentationProvider: createTestProvider(t, instrumentation.ExporterPrometheus),
		Logger:                  discardLogger(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, srv.Shutdown(ctx))
}

// Helper functions

func createTestProvider(t *testing.T, exporter string) *instrumentation.Provider {
	t.Helper()
	ctx := context.Background()
	provider, err := instrumentation.NewProvider(ctx, instrumentation.Config{
		ServiceName:     "test-service",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: exporter,
		TracingExporter: "none",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = provider.Shutdown(ctx)
	})
	return provider
}

func createDisabledProvider(t *testing.T) *instrumentation.Provider {
	t.Helper()
	provider, err := instrumentation.NewProvider(context.Background(), instrumentation.Config{
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Enabled:        false,
	})
	require.NoError(t, err)
	return provider
}
