package instrumentation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrService   = "service"
	attrResult    = "result"
	attrTool      = "tool"
	attrReason    = "reason"
)

// Metrics records the counters and histograms listed in the package doc.
// A zero Metrics is a valid no-op recorder.
type Metrics struct {
	httpRequests    metric.Int64Counter
	httpDuration    metric.Float64Histogram
	gmailCalls      metric.Int64Counter
	gmailDuration   metric.Float64Histogram
	tokenRefreshes  metric.Int64Counter
	toolInvocations metric.Int64Counter
	toolDuration    metric.Float64Histogram
	downloads       metric.Int64Counter
	downloadedBytes metric.Int64Counter
	batchSize       metric.Int64Histogram
}

var httpBuckets = []float64{0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0}

// latencyBuckets fits Gmail round trips and tool calls, which include them.
var latencyBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0}

// instruments creates instruments on one meter and collects creation errors
// so NewMetrics can report them together.
type instruments struct {
	meter metric.Meter
	errs  []error
}

func (in *instruments) counter(name, desc, unit string) metric.Int64Counter {
	c, err := in.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err != nil {
		in.errs = append(in.errs, fmt.Errorf("counter %s: %w", name, err))
	}
	return c
}

func (in *instruments) seconds(name, desc string, buckets ...float64) metric.Float64Histogram {
	h, err := in.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(buckets...),
	)
	if err != nil {
		in.errs = append(in.errs, fmt.Errorf("histogram %s: %w", name, err))
	}
	return h
}

// NewMetrics creates every instrument on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	in := &instruments{meter: meter}
	m := &Metrics{
		httpRequests:    in.counter("http_requests_total", "HTTP requests served on the streamable-http transport", "{request}"),
		httpDuration:    in.seconds("http_request_duration_seconds", "HTTP request duration", httpBuckets...),
		gmailCalls:      in.counter("google_api_operations_total", "Gmail API calls", "{operation}"),
		gmailDuration:   in.seconds("google_api_operation_duration_seconds", "Gmail API call duration", latencyBuckets...),
		tokenRefreshes:  in.counter("oauth_token_refresh_total", "OAuth access token refreshes", "{refresh}"),
		toolInvocations: in.counter("mcp_tool_invocations_total", "MCP tool invocations", "{invocation}"),
		toolDuration:    in.seconds("mcp_tool_duration_seconds", "MCP tool execution duration", latencyBuckets...),
		downloads:       in.counter("attachment_downloads_total", "Attachment downloads by outcome", "{download}"),
		downloadedBytes: in.counter("attachment_download_bytes_total", "Attachment bytes written to disk", "By"),
	}

	var err error
	m.batchSize, err = meter.Int64Histogram("attachment_batch_size",
		metric.WithDescription("Items per batch download"),
		metric.WithUnit("{item}"),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 25, 50, 100),
	)
	if err != nil {
		in.errs = append(in.errs, fmt.Errorf("histogram attachment_batch_size: %w", err))
	}

	if len(in.errs) > 0 {
		return nil, fmt.Errorf("failed to create metrics: %w", errors.Join(in.errs...))
	}
	return m, nil
}

// RecordHTTPRequest records one request served on the HTTP transport.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequests == nil {
		return
	}
	opt := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
	m.httpRequests.Add(ctx, 1, opt)
	m.httpDuration.Record(ctx, duration.Seconds(), opt)
}

// RecordGoogleAPIOperation records one Gmail API call. operation is the
// method path, e.g. "messages.attachments.get"; status is StatusSuccess or
// StatusError.
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m == nil || m.gmailCalls == nil {
		return
	}
	opt := metric.WithAttributes(
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.gmailCalls.Add(ctx, 1, opt)
	m.gmailDuration.Record(ctx, duration.Seconds(), opt)
}

// RecordOAuthTokenRefresh counts a token refresh by OAuthResult*.
func (m *Metrics) RecordOAuthTokenRefresh(ctx context.Context, result string) {
	if m == nil || m.tokenRefreshes == nil {
		return
	}
	m.tokenRefreshes.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordToolInvocation records one MCP tool call.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m == nil || m.toolInvocations == nil {
		return
	}
	opt := metric.WithAttributes(
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	)
	m.toolInvocations.Add(ctx, 1, opt)
	m.toolDuration.Record(ctx, duration.Seconds(), opt)
}

// RecordAttachmentDownload counts one download outcome. reason is ReasonNone
// on success, otherwise the failure kind. Bytes only count on success.
func (m *Metrics) RecordAttachmentDownload(ctx context.Context, status, reason string, bytes int64) {
	if m == nil || m.downloads == nil {
		return
	}
	m.downloads.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrStatus, status),
		attribute.String(attrReason, reason),
	))
	if status == StatusSuccess && bytes > 0 {
		m.downloadedBytes.Add(ctx, bytes)
	}
}

// RecordAttachmentBatch records the number of items in one batch.
func (m *Metrics) RecordAttachmentBatch(ctx context.Context, size int) {
	if m == nil || m.batchSize == nil {
		return
	}
	m.batchSize.Record(ctx, int64(size))
}
