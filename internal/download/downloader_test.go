package download

import (
	"context"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	gmailapi "google.golang.org/api/gmail/v1"
)

func TestDownload_WritesDecodedPayload(t *testing.T) {
	dir := t.TempDir()
	mail := newFakeMail()
	mail.addAttachment("m1", "a1", []byte("hello world"))

	d := newTestDownloader(mail, dir)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return fixed }

	res, err := d.Download(context.Background(), Request{MessageID: "m1", AttachmentID: "a1", Filename: "greeting.txt"})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "m1", res.MessageID)
	assert.Equal(t, "a1", res.AttachmentID)
	assert.Equal(t, "greeting.txt", res.OriginalFilename)
	assert.Equal(t, "greeting.txt", res.SavedAs)
	assert.Equal(t, filepath.Join(dir, "greeting.txt"), res.FullPath)
	assert.Equal(t, int64(11), res.Size)
	assert.Equal(t, "11 B", res.SizeFormatted)
	assert.Equal(t, fixed, res.DownloadedAt)

	data, err := os.ReadFile(res.FullPath)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestDownload_SizeMatchesDecodedLength(t *testing.T) {
	payload := make([]byte, 64*1024+7)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	mail := newFakeMail()
	mail.addAttachment("m1", "a1", payload)

	res, err := newTestDownloader(mail, t.TempDir()).Download(context.Background(),
		Request{MessageID: "m1", AttachmentID: "a1", Filename: "blob.bin"})
	require.NoError(t, err)

	assert.Equal(t, int64(len(payload)), res.Size)
	written, err := os.ReadFile(res.FullPath)
	require.NoError(t, err)
	assert.Equal(t, payload, written)
}

func TestDownload_NeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "report.pdf")
	require.NoError(t, os.WriteFile(existing, []byte("original"), 0o644))

	mail := newFakeMail()
	mail.addAttachment("m1", "a1", []byte("new"))

	res, err := newTestDownloader(mail, dir).Download(context.Background(),
		Request{MessageID: "m1", AttachmentID: "a1", Filename: "report.pdf"})
	require.NoError(t, err)

	assert.Equal(t, "report_1.pdf", res.SavedAs)
	original, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "original", string(original))
}

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	return recorder
}

func spanAttr(span sdktrace.ReadOnlySpan, key string) attribute.Value {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value
		}
	}
	return attribute.Value{}
}

func TestDownload_DeduplicationIsTraced(t *testing.T) {
	recorder := recordSpans(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.pdf"), []byte("original"), 0o644))

	mail := newFakeMail()
	mail.addAttachment("m1", "a1", []byte("new"))
	_, err := newTestDownloader(mail, dir).Download(context.Background(),
		Request{MessageID: "m1", AttachmentID: "a1", Filename: "report.pdf"})
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "download.attachment", spans[0].Name())
	require.Len(t, spans[0].Events(), 1)
	event := spans[0].Events()[0]
	assert.Equal(t, "filename.deduplicated", event.Name)
	assert.Contains(t, event.Attributes, attribute.String("saved_as", "report_1.pdf"))
}

func TestDownload_Naming(t *testing.T) {
	tests := []struct {
		name     string
		req      Request
		want     string
		wantLike string
	}{
		{
			name: "declared name is sanitized",
			req:  Request{Filename: "Q1 report: final?.pdf"},
			want: "Q1_report_final_.pdf",
		},
		{
			name: "custom name used verbatim",
			req:  Request{Filename: "ignored.pdf", CustomFilename: "my report (v2).pdf"},
			want: "my report (v2).pdf",
		},
		{
			name:     "unusable declared name gets generated name",
			req:      Request{Filename: "???"},
			wantLike: `^attachment-[0-9a-f]{8}$`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mail := newFakeMail()
			mail.addAttachment("m1", "a1", []byte("x"))

			tt.req.MessageID, tt.req.AttachmentID = "m1", "a1"
			res, err := newTestDownloader(mail, t.TempDir()).Download(context.Background(), tt.req)
			require.NoError(t, err)

			if tt.wantLike != "" {
				assert.Regexp(t, tt.wantLike, res.SavedAs)
			} else {
				assert.Equal(t, tt.want, res.SavedAs)
			}
			assert.FileExists(t, res.FullPath)
		})
	}
}

func TestDownload_LongNames(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want string
	}{
		{
			name: "multi-byte name within the character limit",
			req:  Request{Filename: strings.Repeat("é", 150) + ".pdf"},
			want: strings.Repeat("é", 121) + ".pdf",
		},
		{
			name: "cjk name",
			req:  Request{Filename: strings.Repeat("報", 100) + ".xlsx"},
			want: strings.Repeat("報", 80) + ".xlsx",
		},
		{
			name: "overlong ascii name keeps its extension",
			req:  Request{Filename: strings.Repeat("a", 250) + ".pdf"},
			want: strings.Repeat("a", 196) + ".pdf",
		},
		{
			name: "overlong custom name",
			req:  Request{Filename: "ignored.pdf", CustomFilename: strings.Repeat("ü", 200) + ".txt"},
			want: strings.Repeat("ü", 121) + ".txt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mail := newFakeMail()
			mail.addAttachment("m1", "a1", []byte("x"))
			d := newTestDownloader(mail, t.TempDir())

			tt.req.MessageID, tt.req.AttachmentID = "m1", "a1"
			first, err := d.Download(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, first.SavedAs)
			assert.FileExists(t, first.FullPath)

			second, err := d.Download(context.Background(), tt.req)
			require.NoError(t, err)
			assert.NotEqual(t, first.SavedAs, second.SavedAs)
			assert.LessOrEqual(t, len(second.SavedAs), 255)
			assert.FileExists(t, second.FullPath)
		})
	}
}

func TestDownload_SavePath(t *testing.T) {
	defaultDir := t.TempDir()
	override := filepath.Join(t.TempDir(), "nested", "deeper")

	mail := newFakeMail()
	mail.addAttachment("m1", "a1", []byte("x"))
	d := newTestDownloader(mail, defaultDir)

	res, err := d.Download(context.Background(), Request{MessageID: "m1", AttachmentID: "a1", Filename: "f.txt", SavePath: override})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(override, "f.txt"), res.FullPath)

	res, err = d.Download(context.Background(), Request{MessageID: "m1", AttachmentID: "a1", Filename: "f.txt"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(defaultDir, "f.txt"), res.FullPath)
}

func TestDownload_Failures(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(t *testing.T, mail *fakeMail, dir string) Request
		wantKind  Kind
		wantErr   error
		wantFetch bool
	}{
		{
			name: "missing message id",
			setup: func(*testing.T, *fakeMail, string) Request {
				return Request{AttachmentID: "a1", Filename: "f"}
			},
			wantKind: KindInvalid,
		},
		{
			name: "missing attachment id",
			setup: func(*testing.T, *fakeMail, string) Request {
				return Request{MessageID: "m1", Filename: "f"}
			},
			wantKind: KindInvalid,
		},
		{
			name: "custom filename with separator",
			setup: func(*testing.T, *fakeMail, string) Request {
				return Request{MessageID: "m1", AttachmentID: "a1", CustomFilename: "../evil.sh"}
			},
			wantKind: KindInvalid,
			wantErr:  ErrInvalidFilename,
		},
		{
			name: "unknown attachment",
			setup: func(*testing.T, *fakeMail, string) Request {
				return Request{MessageID: "m1", AttachmentID: "missing", Filename: "f"}
			},
			wantKind:  KindTransport,
			wantErr:   errNotFound,
			wantFetch: true,
		},
		{
			name: "empty payload",
			setup: func(_ *testing.T, mail *fakeMail, _ string) Request {
				mail.setBody("m1", "a1", &gmailapi.MessagePartBody{})
				return Request{MessageID: "m1", AttachmentID: "a1", Filename: "f"}
			},
			wantKind:  KindData,
			wantErr:   ErrNoAttachmentData,
			wantFetch: true,
		},
		{
			name: "undecodable payload",
			setup: func(_ *testing.T, mail *fakeMail, _ string) Request {
				mail.setBody("m1", "a1", &gmailapi.MessagePartBody{Data: "!!not base64!!"})
				return Request{MessageID: "m1", AttachmentID: "a1", Filename: "f"}
			},
			wantKind:  KindData,
			wantFetch: true,
		},
		{
			name: "save path is a file",
			setup: func(t *testing.T, mail *fakeMail, dir string) Request {
				mail.addAttachment("m1", "a1", []byte("x"))
				blocker := filepath.Join(dir, "blocker")
				touch(t, blocker)
				return Request{MessageID: "m1", AttachmentID: "a1", Filename: "f", SavePath: blocker}
			},
			wantKind: KindFilesystem,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			mail := newFakeMail()
			req := tt.setup(t, mail, dir)

			res, err := newTestDownloader(mail, dir).Download(context.Background(), req)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.Equal(t, tt.wantKind, KindOf(err))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}

			calls, _ := mail.calls()
			assert.Equal(t, tt.wantFetch, calls > 0)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			for _, e := range entries {
				assert.Equal(t, "blocker", e.Name(), "no file may be left behind")
			}
		})
	}
}

func TestDownload_Canceled(t *testing.T) {
	mail := newFakeMail()
	mail.addAttachment("m1", "a1", []byte("x"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestDownloader(mail, t.TempDir()).Download(ctx, Request{MessageID: "m1", AttachmentID: "a1", Filename: "f"})
	require.Error(t, err)
	assert.Equal(t, KindCanceled, KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDownload_ConcurrentSameName(t *testing.T) {
	dir := t.TempDir()
	mail := newFakeMail()
	mail.addAttachment("m1", "a1", []byte("payload"))
	d := newTestDownloader(mail, dir)

	const n = 10
	var wg sync.WaitGroup
	names := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := d.Download(context.Background(), Request{MessageID: "m1", AttachmentID: "a1", Filename: "same.txt"})
			errs[i] = err
			if err == nil {
				names[i] = res.SavedAs
			}
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	sort.Strings(names)
	want := []string{"same.txt"}
	for i := 1; i < n; i++ {
		want = append(want, "same_"+string(rune('0'+i))+".txt")
	}
	sort.Strings(want)
	assert.Equal(t, want, names)
}

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []byte
	}{
		{"padded url", "aGVsbG8=", []byte("hello")},
		{"unpadded url", "aGVsbG8", []byte("hello")},
		{"url alphabet", "-_8", []byte{0xfb, 0xff}},
		{"std alphabet", "+/8=", []byte{0xfb, 0xff}},
		{"wrapped", "aGVs\r\nbG8=", []byte("hello")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeBody(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(nil))
	assert.Equal(t, KindUnknown, KindOf(errNotFound))
	assert.Equal(t, KindCanceled, KindOf(context.DeadlineExceeded))
	assert.Equal(t, KindData, KindOf(newError(KindData, "decode", errNotFound)))
	assert.Equal(t, KindCanceled, KindOf(newError(KindTransport, "fetch", context.Canceled)))
	assert.Equal(t, "filesystem", KindFilesystem.String())
	assert.Equal(t, "fetch attachment: boom", (&Error{Kind: KindTransport, Op: "fetch attachment", Err: errors.New("boom")}).Error())
}
