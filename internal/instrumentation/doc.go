// Package instrumentation provides OpenTelemetry metrics and tracing for the
// gmailvault MCP server.
//
// # Metrics
//
// Google API Metrics:
//   - google_api_operations_total: Counter of Gmail API calls by service, operation, status
//   - google_api_operation_duration_seconds: Histogram of Gmail API call durations
//
// OAuth Metrics:
//   - oauth_token_refresh_total: Counter of access token refreshes by result
//
// MCP Tool Metrics:
//   - mcp_tool_invocations_total: Counter of MCP tool invocations by tool name and status
//   - mcp_tool_duration_seconds: Histogram of MCP tool execution durations
//
// Attachment Metrics:
//   - attachment_downloads_total: Counter of attachment downloads by status and failure reason
//   - attachment_download_bytes_total: Bytes written to disk
//   - attachment_batch_size: Histogram of batch download sizes
//
// HTTP Metrics (streamable-http transport only):
//   - http_requests_total, http_request_duration_seconds
//
// # Tracing
//
// Spans cover MCP tool calls (tool.<name>), Gmail API calls
// (gmail.<operation>), single downloads (download.attachment) and batches
// (download.batch, parent of one download span per item). A download saved
// under a suffixed name carries a filename.deduplicated event.
//
// # Configuration
//
// Config is filled from the telemetry section of the gmailvault configuration
// (file, GMAILVAULT_TELEMETRY_* variables, or the standard OTEL_SERVICE_NAME,
// OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE and
// OTEL_TRACES_SAMPLER_ARG). The stdout exporters write to stderr so they never
// interleave with MCP frames on the stdio transport.
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	ctx, span := instrumentation.StartDownloadSpan(ctx, messageID, attachmentID)
//	defer span.End()
//	provider.Metrics().RecordAttachmentDownload(ctx, instrumentation.StatusSuccess, instrumentation.ReasonNone, written)
package instrumentation
