package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer every gmailvault span is created with.
const TracerName = "github.com/teemow/gmailvault"

// Span names.
const (
	SpanDownload = "download.attachment"
	SpanBatch    = "download.batch"

	// EventDeduplicated marks a download saved under a suffixed name.
	EventDeduplicated = "filename.deduplicated"
)

// Span attribute keys.
const (
	AttrTool         = "mcp.tool"
	AttrOperation    = "gmailvault.operation"
	AttrMessageID    = "gmail.message_id"
	AttrAttachmentID = "gmail.attachment_id"
	AttrSavedAs      = "gmailvault.saved_as"
	AttrBytes        = "gmailvault.bytes"
	AttrFailure      = "gmailvault.failure"
	AttrBatchSize    = "gmailvault.batch.size"
	AttrSubfolders   = "gmailvault.batch.subfolders"
	AttrSucceeded    = "gmailvault.batch.succeeded"
	AttrFailed       = "gmailvault.batch.failed"
	AttrRequested    = "requested"
	AttrDedupSavedAs = "saved_as"
)

func tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(TracerName)
}

// StartToolSpan starts the server span of one MCP tool call.
func StartToolSpan(ctx context.Context, toolName, operation string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "tool."+toolName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String(AttrTool, toolName),
			attribute.String(AttrOperation, operation),
		))
}

// StartGmailSpan starts a client span around one Gmail API call, such as
// "messages.attachments.get".
func StartGmailSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return tracer().Start(ctx, ServiceGmail+"."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String(AttrOperation, operation)))
}

// StartDownloadSpan starts the span of a single attachment download.
func StartDownloadSpan(ctx context.Context, messageID, attachmentID string) (context.Context, trace.Span) {
	return tracer().Start(ctx, SpanDownload, trace.WithAttributes(
		attribute.String(AttrMessageID, messageID),
		attribute.String(AttrAttachmentID, attachmentID),
	))
}

// StartBatchSpan starts the span covering a batch of downloads. Each item
// gets its own download span as a child.
func StartBatchSpan(ctx context.Context, size int, subfolders bool) (context.Context, trace.Span) {
	return tracer().Start(ctx, SpanBatch, trace.WithAttributes(
		attribute.Int(AttrBatchSize, size),
		attribute.Bool(AttrSubfolders, subfolders),
	))
}

// DownloadSaved completes a download span with the file that was written.
func DownloadSaved(span trace.Span, savedAs string, size int64) {
	span.SetAttributes(
		attribute.String(AttrSavedAs, savedAs),
		attribute.Int64(AttrBytes, size),
	)
	span.SetStatus(codes.Ok, "")
}

// DownloadFailed records err on a download span. reason is one of the
// Reason* values also used as the metrics label.
func DownloadFailed(span trace.Span, reason string, err error) {
	span.SetAttributes(attribute.String(AttrFailure, reason))
	FinishSpan(span, err)
}

// FilenameDeduplicated records that requested was taken and the file was
// saved as savedAs instead.
func FilenameDeduplicated(ctx context.Context, requested, savedAs string) {
	trace.SpanFromContext(ctx).AddEvent(EventDeduplicated, trace.WithAttributes(
		attribute.String(AttrRequested, requested),
		attribute.String(AttrDedupSavedAs, savedAs),
	))
}

// BatchFinished records the outcome counts of a batch. Failed items do not
// fail the batch span.
func BatchFinished(span trace.Span, succeeded, failed int) {
	span.SetAttributes(
		attribute.Int(AttrSucceeded, succeeded),
		attribute.Int(AttrFailed, failed),
	)
	span.SetStatus(codes.Ok, "")
}

// FinishSpan marks span failed with err, or OK when err is nil.
func FinishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// GetTraceID returns the trace ID of the span in ctx, or "" without one.
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
