package instrumentation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	restoreGlobals(t)
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	return recorder
}

func spanAttrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestDownloadSpan(t *testing.T) {
	tests := []struct {
		name       string
		finish     func(span trace.Span)
		wantStatus codes.Code
		wantAttrs  map[attribute.Key]attribute.Value
	}{
		{
			name:       "saved",
			finish:     func(span trace.Span) { DownloadSaved(span, "invoice_1.pdf", 2048) },
			wantStatus: codes.Ok,
			wantAttrs: map[attribute.Key]attribute.Value{
				AttrSavedAs: attribute.StringValue("invoice_1.pdf"),
				AttrBytes:   attribute.Int64Value(2048),
			},
		},
		{
			name:       "failed",
			finish:     func(span trace.Span) { DownloadFailed(span, ReasonData, errors.New("no attachment data")) },
			wantStatus: codes.Error,
			wantAttrs: map[attribute.Key]attribute.Value{
				AttrFailure: attribute.StringValue(ReasonData),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := recordSpans(t)

			_, span := StartDownloadSpan(context.Background(), "18c2f3", "ANGjdJ9")
			tt.finish(span)
			span.End()

			spans := recorder.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, SpanDownload, spans[0].Name())
			assert.Equal(t, tt.wantStatus, spans[0].Status().Code)

			got := spanAttrs(spans[0])
			assert.Equal(t, "18c2f3", got[AttrMessageID].AsString())
			assert.Equal(t, "ANGjdJ9", got[AttrAttachmentID].AsString())
			for k, v := range tt.wantAttrs {
				assert.Equal(t, v, got[k], "attribute %s", k)
			}
		})
	}
}

func TestDownloadFailed_RecordsError(t *testing.T) {
	recorder := recordSpans(t)

	_, span := StartDownloadSpan(context.Background(), "m1", "a1")
	DownloadFailed(span, ReasonTransport, errors.New("attachment not found"))
	span.End()

	events := recorder.Ended()[0].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "exception", events[0].Name)
	assert.Equal(t, "attachment not found", recorder.Ended()[0].Status().Description)
}

func TestBatchSpan_ParentsDownloads(t *testing.T) {
	recorder := recordSpans(t)

	ctx, batch := StartBatchSpan(context.Background(), 2, true)
	for _, id := range []string{"a1", "a2"} {
		_, span := StartDownloadSpan(ctx, "m1", id)
		DownloadSaved(span, id+".pdf", 1)
		span.End()
	}
	BatchFinished(batch, 1, 1)
	batch.End()

	spans := recorder.Ended()
	require.Len(t, spans, 3)

	root := spans[2]
	assert.Equal(t, SpanBatch, root.Name())
	assert.Equal(t, codes.Ok, root.Status().Code)
	got := spanAttrs(root)
	assert.Equal(t, int64(2), got[AttrBatchSize].AsInt64())
	assert.True(t, got[AttrSubfolders].AsBool())
	assert.Equal(t, int64(1), got[AttrSucceeded].AsInt64())
	assert.Equal(t, int64(1), got[AttrFailed].AsInt64())

	for _, child := range spans[:2] {
		assert.Equal(t, root.SpanContext().SpanID(), child.Parent().SpanID())
	}
}

func TestFilenameDeduplicated(t *testing.T) {
	recorder := recordSpans(t)

	ctx, span := StartDownloadSpan(context.Background(), "m1", "a1")
	FilenameDeduplicated(ctx, "report.pdf", "report_2.pdf")
	span.End()

	events := recorder.Ended()[0].Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventDeduplicated, events[0].Name)
	assert.Contains(t, events[0].Attributes, attribute.String(AttrRequested, "report.pdf"))
	assert.Contains(t, events[0].Attributes, attribute.String(AttrDedupSavedAs, "report_2.pdf"))
}

func TestFilenameDeduplicated_WithoutSpan(t *testing.T) {
	assert.NotPanics(t, func() {
		FilenameDeduplicated(context.Background(), "a.pdf", "a_1.pdf")
	})
}

func TestStartToolAndGmailSpans(t *testing.T) {
	recorder := recordSpans(t)

	ctx, tool := StartToolSpan(context.Background(), "download_gmail_attachment", "download")
	_, api := StartGmailSpan(ctx, "messages.attachments.get")
	FinishSpan(api, nil)
	api.End()
	FinishSpan(tool, errors.New("disk full"))
	tool.End()

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "gmail.messages.attachments.get", spans[0].Name())
	assert.Equal(t, trace.SpanKindClient, spans[0].SpanKind())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, "messages.attachments.get", spanAttrs(spans[0])[AttrOperation].AsString())

	assert.Equal(t, "tool.download_gmail_attachment", spans[1].Name())
	assert.Equal(t, trace.SpanKindServer, spans[1].SpanKind())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "download_gmail_attachment", spanAttrs(spans[1])[AttrTool].AsString())
	assert.Equal(t, "download", spanAttrs(spans[1])[AttrOperation].AsString())
}

func TestGetTraceID(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))

	recordSpans(t)
	ctx, span := StartDownloadSpan(context.Background(), "m1", "a1")
	defer span.End()
	assert.Equal(t, span.SpanContext().TraceID().String(), GetTraceID(ctx))
	assert.Len(t, GetTraceID(ctx), 32)
}
