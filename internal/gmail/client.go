package gmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/gmailvault/internal/instrumentation"
	"github.com/teemow/gmailvault/internal/logging"
)

// Message formats accepted by GetMessage.
const (
	FormatFull     = "full"
	FormatMinimal  = "minimal"
	FormatRaw      = "raw"
	FormatMetadata = "metadata"
)

const (
	// DefaultMaxResults is the search page size when none is given.
	DefaultMaxResults = 100
	// MaxMaxResults is the largest page size the API accepts.
	MaxMaxResults = 500

	me = "me"
)

// Options tune a Client.
type Options struct {
	// RequestsPerSecond throttles API calls. 0 disables throttling.
	RequestsPerSecond float64

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger

	// ClientOptions are passed to the Gmail service constructor after the
	// HTTP client option.
	ClientOptions []option.ClientOption
}

// Client wraps the Gmail Users service.
type Client struct {
	svc     *gmail.UsersService
	limiter *rate.Limiter
	metrics *instrumentation.Metrics
	logger  *slog.Logger
}

// NewClient creates a Gmail client that authorizes through httpClient.
func NewClient(ctx context.Context, httpClient *http.Client, opts Options) (*Client, error) {
	clientOpts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts.ClientOptions...)
	svc, err := gmail.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = &instrumentation.Metrics{}
	}

	return &Client{
		svc:     svc.Users,
		limiter: newLimiter(opts.RequestsPerSecond),
		metrics: metrics,
		logger:  logger.With(slog.String("service", instrumentation.ServiceGmail)),
	}, nil
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// call runs one API operation behind the limiter, inside a span, and records
// its outcome.
func call[T any](ctx context.Context, c *Client, operation string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := instrumentation.StartGmailSpan(ctx, operation)
	defer span.End()

	var zero T
	if err := c.limiter.Wait(ctx); err != nil {
		instrumentation.FinishSpan(span, err)
		return zero, fmt.Errorf("rate limit wait canceled: %w", err)
	}

	start := time.Now()
	result, err := fn(ctx)
	duration := time.Since(start)

	instrumentation.FinishSpan(span, err)
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		c.logger.Debug("gmail api call failed",
			logging.Operation(operation),
			slog.Duration(logging.KeyDuration, duration),
			logging.Err(err))
	}
	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail, operation, status, duration)

	return result, err
}

// ClampMaxResults maps a requested page size onto 1..MaxMaxResults, using
// DefaultMaxResults for non-positive values.
func ClampMaxResults(n int64) int64 {
	switch {
	case n <= 0:
		return DefaultMaxResults
	case n > MaxMaxResults:
		return MaxMaxResults
	default:
		return n
	}
}

// SearchMessages lists messages matching a Gmail search query.
func (c *Client) SearchMessages(ctx context.Context, query string, maxResults int64, pageToken string) (*gmail.ListMessagesResponse, error) {
	return call(ctx, c, "messages.list", func(ctx context.Context) (*gmail.ListMessagesResponse, error) {
		req := c.svc.Messages.List(me).Q(query).MaxResults(ClampMaxResults(maxResults))
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}
		res, err := req.Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("failed to search messages: %w", err)
		}
		return res, nil
	})
}

// ValidFormat reports whether format is a message format GetMessage accepts.
func ValidFormat(format string) bool {
	switch format {
	case FormatFull, FormatMinimal, FormatRaw, FormatMetadata:
		return true
	}
	return false
}

// GetMessage retrieves a message in the given format (default full).
func (c *Client) GetMessage(ctx context.Context, messageID, format string) (*gmail.Message, error) {
	if messageID == "" {
		return nil, errors.New("messageID is required")
	}
	if format == "" {
		format = FormatFull
	}
	if !ValidFormat(format) {
		return nil, fmt.Errorf("invalid format %q, must be one of full, minimal, raw, metadata", format)
	}

	return call(ctx, c, "messages.get", func(ctx context.Context) (*gmail.Message, error) {
		msg, err := c.svc.Messages.Get(me, messageID).Format(format).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("failed to get message %s: %w", messageID, err)
		}
		return msg, nil
	})
}

// GetMessageMetadata retrieves a message's metadata including only the
// named headers.
func (c *Client) GetMessageMetadata(ctx context.Context, messageID string, headers ...string) (*gmail.Message, error) {
	if messageID == "" {
		return nil, errors.New("messageID is required")
	}

	return call(ctx, c, "messages.get", func(ctx context.Context) (*gmail.Message, error) {
		req := c.svc.Messages.Get(me, messageID).Format(FormatMetadata)
		if len(headers) > 0 {
			req = req.MetadataHeaders(headers...)
		}
		msg, err := req.Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("failed to get message metadata %s: %w", messageID, err)
		}
		return msg, nil
	})
}

// GetThread retrieves a thread with full message content, or minimal
// message information when full is false.
func (c *Client) GetThread(ctx context.Context, threadID string, full bool) (*gmail.Thread, error) {
	if threadID == "" {
		return nil, errors.New("threadID is required")
	}
	format := FormatMinimal
	if full {
		format = FormatFull
	}

	return call(ctx, c, "threads.get", func(ctx context.Context) (*gmail.Thread, error) {
		thread, err := c.svc.Threads.Get(me, threadID).Format(format).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("failed to get thread %s: %w", threadID, err)
		}
		return thread, nil
	})
}

// GetAttachment retrieves an attachment body. Data is left base64url encoded.
func (c *Client) GetAttachment(ctx context.Context, messageID, attachmentID string) (*gmail.MessagePartBody, error) {
	if messageID == "" {
		return nil, errors.New("messageID is required")
	}
	if attachmentID == "" {
		return nil, errors.New("attachmentID is required")
	}

	return call(ctx, c, "attachments.get", func(ctx context.Context) (*gmail.MessagePartBody, error) {
		body, err := c.svc.Messages.Attachments.Get(me, messageID, attachmentID).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("failed to get attachment: %w", err)
		}
		return body, nil
	})
}

// GetProfile retrieves the mailbox profile.
func (c *Client) GetProfile(ctx context.Context) (*gmail.Profile, error) {
	return call(ctx, c, "profile.get", func(ctx context.Context) (*gmail.Profile, error) {
		profile, err := c.svc.GetProfile(me).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("failed to get profile: %w", err)
		}
		return profile, nil
	})
}
