package download

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teemow/gmailvault/internal/gmail"
	"github.com/teemow/gmailvault/internal/instrumentation"
	"github.com/teemow/gmailvault/internal/logging"
)

// UnknownSender names the subfolder for messages without a From header.
const UnknownSender = "Unknown"

// BatchOptions tune a batch run.
type BatchOptions struct {
	// BasePath overrides the Downloader's default directory for every item.
	BasePath string
	// CreateSubfolders places each file under base/<sender>/<year>.
	CreateSubfolders bool
	// Concurrency is the number of items in flight. Values below 2 run
	// items one after another.
	Concurrency int
}

// ItemResult is the outcome of one batch item. Exactly one of Result and
// Error is set.
type ItemResult struct {
	Success      bool    `json:"success"`
	MessageID    string  `json:"messageId"`
	AttachmentID string  `json:"attachmentId"`
	Filename     string  `json:"filename"`
	Result       *Result `json:"result,omitempty"`
	Error        string  `json:"error,omitempty"`

	// Err is the underlying failure.
	Err error `json:"-"`
}

// Summary aggregates a batch run. Results are in request order and
// Successful+Failed == Total == len(Results).
type Summary struct {
	Total        int
	Successful   int
	Failed       int
	DownloadPath string
	Results      []ItemResult
}

// Orchestrator runs batches of downloads.
type Orchestrator struct {
	mail       MetadataFetcher
	downloader *Downloader
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
}

// NewOrchestrator creates an Orchestrator. mail is used for subfolder
// metadata lookups.
func NewOrchestrator(mail MetadataFetcher, downloader *Downloader, metrics *instrumentation.Metrics, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		mail:       mail,
		downloader: downloader,
		metrics:    metrics,
		logger:     logging.WithOperation(logger, "batch_download"),
	}
}

// RunBatch downloads every request and reports each outcome. A failing item
// never stops the others. Items that have not started when ctx ends are
// reported as failed with the context error.
func (o *Orchestrator) RunBatch(ctx context.Context, reqs []Request, opts BatchOptions) *Summary {
	ctx, span := instrumentation.StartBatchSpan(ctx, len(reqs), opts.CreateSubfolders)
	defer span.End()

	start := time.Now()
	base := opts.BasePath
	if base == "" {
		base = o.downloader.DefaultDir()
	}

	o.metrics.RecordAttachmentBatch(ctx, len(reqs))

	results := make([]ItemResult, len(reqs))
	if opts.Concurrency < 2 {
		for i, req := range reqs {
			results[i] = o.runItem(ctx, base, req, opts.CreateSubfolders)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(opts.Concurrency)
		for i, req := range reqs {
			g.Go(func() error {
				results[i] = o.runItem(ctx, base, req, opts.CreateSubfolders)
				return nil
			})
		}
		_ = g.Wait()
	}

	summary := &Summary{
		Total:        len(reqs),
		DownloadPath: base,
		Results:      results,
	}
	for _, r := range results {
		if r.Success {
			summary.Successful++
		} else {
			summary.Failed++
		}
	}

	instrumentation.BatchFinished(span, summary.Successful, summary.Failed)
	o.logger.Info("batch download finished",
		slog.Int("total", summary.Total),
		slog.Int("successful", summary.Successful),
		slog.Int("failed", summary.Failed),
		slog.Duration(logging.KeyDuration, time.Since(start)))

	return summary
}

func (o *Orchestrator) runItem(ctx context.Context, base string, req Request, subfolders bool) ItemResult {
	item := ItemResult{
		MessageID:    req.MessageID,
		AttachmentID: req.AttachmentID,
		Filename:     req.Filename,
	}

	fail := func(err error) ItemResult {
		item.Err = err
		item.Error = err.Error()
		return item
	}

	if err := ctx.Err(); err != nil {
		return fail(newError(KindCanceled, "start item", err))
	}

	dir := base
	if subfolders {
		sub, err := o.subfolder(ctx, base, req.MessageID)
		if err != nil {
			return fail(err)
		}
		dir = sub
	}

	req.SavePath = dir
	res, err := o.downloader.Download(ctx, req)
	if err != nil {
		return fail(err)
	}

	item.Success = true
	item.Result = res
	return item
}

// subfolder returns and creates base/<sender>/<year> for the message.
func (o *Orchestrator) subfolder(ctx context.Context, base, messageID string) (string, error) {
	msg, err := o.mail.GetMessageMetadata(ctx, messageID, "From")
	if err != nil {
		return "", newError(KindTransport, "fetch message metadata", err)
	}

	var internalDate int64
	if msg != nil {
		internalDate = msg.InternalDate
	}

	dir := filepath.Join(base, SenderFolder(gmail.HeaderValue(msg, "From")), YearFolder(internalDate))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", newError(KindFilesystem, "create subfolder", err)
	}
	return dir, nil
}

// SenderFolder derives a folder name from a From header: angle brackets are
// dropped and everything from the first "@" on is cut before sanitizing.
func SenderFolder(from string) string {
	if strings.TrimSpace(from) == "" {
		return UnknownSender
	}
	s := strings.NewReplacer("<", "", ">", "").Replace(from)
	if at := strings.IndexByte(s, '@'); at >= 0 {
		s = s[:at]
	}
	if name := sanitize(s); name != "" {
		return name
	}
	return UnknownSender
}

// YearFolder returns the UTC year of an epoch-millisecond timestamp.
func YearFolder(internalDateMillis int64) string {
	return strconv.Itoa(time.UnixMilli(internalDateMillis).UTC().Year())
}
