package download

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"sync"

	gmailapi "google.golang.org/api/gmail/v1"
)

var errNotFound = errors.New("googleapi: Error 404: Requested entity was not found., notFound")

// fakeMail serves attachments and metadata from memory.
type fakeMail struct {
	mu          sync.Mutex
	bodies      map[string]*gmailapi.MessagePartBody
	messages    map[string]*gmailapi.Message
	failMeta    map[string]error
	attachCalls int
	metaCalls   int
}

func newFakeMail() *fakeMail {
	return &fakeMail{
		bodies:   map[string]*gmailapi.MessagePartBody{},
		messages: map[string]*gmailapi.Message{},
		failMeta: map[string]error{},
	}
}

func (f *fakeMail) addAttachment(messageID, attachmentID string, data []byte) {
	f.setBody(messageID, attachmentID, &gmailapi.MessagePartBody{
		AttachmentId: attachmentID,
		Data:         base64.URLEncoding.EncodeToString(data),
		Size:         int64(len(data)),
	})
}

func (f *fakeMail) setBody(messageID, attachmentID string, body *gmailapi.MessagePartBody) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[messageID+"/"+attachmentID] = body
}

func (f *fakeMail) addSender(messageID, from string, internalDate int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := &gmailapi.Message{Id: messageID, InternalDate: internalDate, Payload: &gmailapi.MessagePart{}}
	if from != "" {
		msg.Payload.Headers = []*gmailapi.MessagePartHeader{{Name: "From", Value: from}}
	}
	f.messages[messageID] = msg
}

func (f *fakeMail) GetAttachment(ctx context.Context, messageID, attachmentID string) (*gmailapi.MessagePartBody, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attachCalls++
	body, ok := f.bodies[messageID+"/"+attachmentID]
	if !ok {
		return nil, errNotFound
	}
	return body, nil
}

func (f *fakeMail) GetMessageMetadata(ctx context.Context, messageID string, _ ...string) (*gmailapi.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metaCalls++
	if err := f.failMeta[messageID]; err != nil {
		return nil, err
	}
	if msg, ok := f.messages[messageID]; ok {
		return msg, nil
	}
	return &gmailapi.Message{Id: messageID, Payload: &gmailapi.MessagePart{}}, nil
}

func (f *fakeMail) calls() (attachments, metadata int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attachCalls, f.metaCalls
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDownloader(mail AttachmentFetcher, dir string) *Downloader {
	return NewDownloader(mail, Config{DefaultDir: dir, Logger: discardLogger()})
}
