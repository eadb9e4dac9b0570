package instrumentation

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Config selects where telemetry goes. It is filled from the gmailvault
// configuration; see config.TelemetryConfig.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// Enabled false turns every recorder and span into a no-op.
	Enabled bool

	// MetricsExporter is one of prometheus, otlp or stdout.
	MetricsExporter string

	// TracingExporter is one of otlp, stdout or none.
	TracingExporter string

	// OTLPEndpoint is host:port of the collector, without a scheme.
	OTLPEndpoint string

	// OTLPInsecure sends OTLP over plain HTTP. Spans carry message and
	// attachment IDs, so this is for local collectors only.
	OTLPInsecure bool

	// TraceSamplingRate is the ratio of root spans kept, 0 to 1.
	TraceSamplingRate float64
}

var (
	metricsExporters = []string{ExporterPrometheus, ExporterOTLP, ExporterStdout}
	tracingExporters = []string{ExporterOTLP, ExporterStdout, ExporterNone}
)

// Validate reports the first inconsistent setting. A disabled Config is
// always valid.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0 and 1, got %g", c.TraceSamplingRate)
	}
	if !slices.Contains(metricsExporters, c.MetricsExporter) {
		return fmt.Errorf("invalid metrics exporter %q, must be one of %v", c.MetricsExporter, metricsExporters)
	}
	if !slices.Contains(tracingExporters, c.TracingExporter) {
		return fmt.Errorf("invalid tracing exporter %q, must be one of %v", c.TracingExporter, tracingExporters)
	}
	if c.OTLPEndpoint == "" && (c.MetricsExporter == ExporterOTLP || c.TracingExporter == ExporterOTLP) {
		return errors.New("an OTLP endpoint is required when exporting over OTLP")
	}
	return nil
}

// Constants for metric label values.
const (
	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// OAuth refresh result values
	OAuthResultSuccess = "success"
	OAuthResultFailure = "failure"

	// ServiceGmail labels Gmail API metrics and prefixes Gmail API spans.
	ServiceGmail = "gmail"

	// Download failure reasons. ReasonNone labels successful downloads.
	ReasonNone       = "none"
	ReasonInvalid    = "invalid"
	ReasonTransport  = "transport"
	ReasonData       = "data"
	ReasonFilesystem = "filesystem"
	ReasonCanceled   = "canceled"

	// Exporter types
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"

	// DefaultMetricInterval is how often push exporters flush.
	DefaultMetricInterval = 10 * time.Second
)
