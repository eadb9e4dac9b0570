package download

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/teemow/gmailvault/internal/gmail"
	"github.com/teemow/gmailvault/internal/instrumentation"
	"github.com/teemow/gmailvault/internal/logging"
)

// maxCreateAttempts bounds the resolve/create loop when another process keeps
// taking the chosen name.
const maxCreateAttempts = 100

// AttachmentFetcher fetches raw attachment bodies.
type AttachmentFetcher interface {
	GetAttachment(ctx context.Context, messageID, attachmentID string) (*gmailapi.MessagePartBody, error)
}

// MetadataFetcher fetches message headers.
type MetadataFetcher interface {
	GetMessageMetadata(ctx context.Context, messageID string, headers ...string) (*gmailapi.Message, error)
}

// MailService is what the Orchestrator needs from the mail client.
type MailService interface {
	AttachmentFetcher
	MetadataFetcher
}

// Request identifies one attachment to download.
type Request struct {
	MessageID    string
	AttachmentID string
	// Filename is the name the message declares for the attachment.
	Filename string
	// SavePath overrides the default destination directory.
	SavePath string
	// CustomFilename replaces the declared name. It must be a single path
	// element and is used without sanitization.
	CustomFilename string
}

// Result describes a file written to disk.
type Result struct {
	Success          bool      `json:"success"`
	MessageID        string    `json:"messageId"`
	AttachmentID     string    `json:"attachmentId"`
	OriginalFilename string    `json:"originalFilename"`
	SavedAs          string    `json:"savedAs"`
	FullPath         string    `json:"fullPath"`
	Size             int64     `json:"size"`
	SizeFormatted    string    `json:"sizeFormatted"`
	DownloadedAt     time.Time `json:"downloadedAt"`
}

// Config configures a Downloader.
type Config struct {
	// DefaultDir is used when a Request has no SavePath.
	DefaultDir string
	Metrics    *instrumentation.Metrics
	Logger     *slog.Logger
}

// Downloader writes single attachments to disk.
type Downloader struct {
	mail       AttachmentFetcher
	defaultDir string
	locks      *dirLocks
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewDownloader creates a Downloader backed by mail.
func NewDownloader(mail AttachmentFetcher, cfg Config) *Downloader {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{
		mail:       mail,
		defaultDir: cfg.DefaultDir,
		locks:      newDirLocks(),
		metrics:    cfg.Metrics,
		logger:     logging.WithOperation(logger, "download"),
		now:        time.Now,
	}
}

// DefaultDir returns the directory used for requests without a SavePath.
func (d *Downloader) DefaultDir() string {
	return d.defaultDir
}

// Download fetches the attachment named by req, decodes it and writes it to a
// fresh file. An existing file is never overwritten: when the target name is
// taken, a "_n" suffix is inserted before the extension. Failures are
// returned as *Error.
func (d *Downloader) Download(ctx context.Context, req Request) (*Result, error) {
	ctx, span := instrumentation.StartDownloadSpan(ctx, req.MessageID, req.AttachmentID)
	defer span.End()

	res, err := d.download(ctx, req)
	if err != nil {
		reason := reasonFor(KindOf(err))
		instrumentation.DownloadFailed(span, reason, err)
		d.metrics.RecordAttachmentDownload(ctx, instrumentation.StatusError, reason, 0)
		d.logger.Warn("attachment download failed",
			logging.MessageID(req.MessageID),
			logging.AttachmentID(req.AttachmentID),
			slog.String("kind", KindOf(err).String()),
			logging.Err(err))
		return nil, err
	}

	instrumentation.DownloadSaved(span, res.SavedAs, res.Size)
	d.metrics.RecordAttachmentDownload(ctx, instrumentation.StatusSuccess, instrumentation.ReasonNone, res.Size)
	d.logger.Info("attachment saved",
		logging.MessageID(req.MessageID),
		logging.AttachmentID(req.AttachmentID),
		logging.Path(res.FullPath),
		logging.Bytes(res.Size))
	return res, nil
}

func (d *Downloader) download(ctx context.Context, req Request) (*Result, error) {
	if req.MessageID == "" {
		return nil, newError(KindInvalid, "validate request", errors.New("message ID is required"))
	}
	if req.AttachmentID == "" {
		return nil, newError(KindInvalid, "validate request", errors.New("attachment ID is required"))
	}
	if req.CustomFilename != "" {
		if err := validateCustomFilename(req.CustomFilename); err != nil {
			return nil, newError(KindInvalid, "validate request", err)
		}
	}

	dir := req.SavePath
	if dir == "" {
		dir = d.defaultDir
	}
	if dir == "" {
		return nil, newError(KindFilesystem, "resolve directory", errors.New("no download directory configured"))
	}
	dir = filepath.Clean(dir)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, newError(KindFilesystem, "create directory", err)
	}

	body, err := d.mail.GetAttachment(ctx, req.MessageID, req.AttachmentID)
	if err != nil {
		return nil, newError(KindTransport, "fetch attachment", err)
	}
	if body == nil || body.Data == "" {
		return nil, newError(KindData, "fetch attachment", ErrNoAttachmentData)
	}

	data, err := decodeBody(body.Data)
	if err != nil {
		return nil, newError(KindData, "decode attachment", err)
	}

	path, err := d.write(ctx, dir, d.targetName(req), data)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, newError(KindFilesystem, "stat file", err)
	}

	return &Result{
		Success:          true,
		MessageID:        req.MessageID,
		AttachmentID:     req.AttachmentID,
		OriginalFilename: req.Filename,
		SavedAs:          filepath.Base(path),
		FullPath:         path,
		Size:             info.Size(),
		SizeFormatted:    gmail.FormatSize(info.Size()),
		DownloadedAt:     d.now().UTC(),
	}, nil
}

// targetName picks the on-disk name: the custom name, else the sanitized
// declared name, else a random fallback. The result always fits the
// filesystem's byte limit with room for a collision suffix.
func (d *Downloader) targetName(req Request) string {
	if req.CustomFilename != "" {
		return fitName(req.CustomFilename)
	}
	if name := sanitize(req.Filename); name != "" {
		return fitName(keepExtension(name, req.Filename))
	}
	return FallbackFilename + "-" + uuid.NewString()[:8]
}

// write resolves a free name in dir and creates it exclusively. The
// directory lock covers resolution and creation so that concurrent
// downloads in this process never pick the same name.
func (d *Downloader) write(ctx context.Context, dir, name string, data []byte) (string, error) {
	unlock := d.locks.lock(dir)
	defer unlock()

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", newError(KindCanceled, "write file", err)
		}

		path, err := ResolveUniquePath(filepath.Join(dir, name))
		if err != nil {
			return "", newError(KindFilesystem, "resolve filename", err)
		}

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", newError(KindFilesystem, "create file", err)
		}

		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			_ = os.Remove(path)
			return "", newError(KindFilesystem, "write file", err)
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(path)
			return "", newError(KindFilesystem, "write file", err)
		}
		if saved := filepath.Base(path); saved != name {
			instrumentation.FilenameDeduplicated(ctx, name, saved)
		}
		return path, nil
	}

	return "", newError(KindFilesystem, "create file",
		fmt.Errorf("no free name for %s after %d attempts", name, maxCreateAttempts))
}

// decodeBody decodes Gmail's base64url payload. Padding is optional and the
// standard alphabet is accepted as well.
func decodeBody(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '+':
			return '-'
		case '/':
			return '_'
		case '=', '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, s)
	return base64.RawURLEncoding.DecodeString(s)
}

func reasonFor(k Kind) string {
	switch k {
	case KindInvalid:
		return instrumentation.ReasonInvalid
	case KindTransport:
		return instrumentation.ReasonTransport
	case KindData:
		return instrumentation.ReasonData
	case KindFilesystem:
		return instrumentation.ReasonFilesystem
	case KindCanceled:
		return instrumentation.ReasonCanceled
	default:
		return instrumentation.ReasonTransport
	}
}
