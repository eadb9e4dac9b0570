package gmail

import (
	"strconv"
	"strings"

	gmail "google.golang.org/api/gmail/v1"
)

// Body is the payload reference of a Part. Either Data holds inline content
// or AttachmentID names a separately fetched payload. Size is the declared
// byte size; 0 when the service reported none.
type Body struct {
	AttachmentID string
	Size         int64
	Data         string
}

// Part is one node of a message's MIME tree.
type Part struct {
	Filename string
	MimeType string
	Body     Body
	Parts    []Part
}

// NewPartTree converts an API message part into a Part tree.
// It returns nil for a nil part.
func NewPartTree(p *gmail.MessagePart) *Part {
	if p == nil {
		return nil
	}
	part := convertPart(p)
	return &part
}

func convertPart(p *gmail.MessagePart) Part {
	part := Part{
		Filename: p.Filename,
		MimeType: p.MimeType,
	}
	if p.Body != nil {
		part.Body = Body{
			AttachmentID: p.Body.AttachmentId,
			Size:         p.Body.Size,
			Data:         p.Body.Data,
		}
	}
	for _, child := range p.Parts {
		if child == nil {
			continue
		}
		part.Parts = append(part.Parts, convertPart(child))
	}
	return part
}

// IsAttachment reports whether the part carries a filename and references
// an attachment payload. Inline filename-less bodies never qualify.
func (p *Part) IsAttachment() bool {
	return p.Filename != "" && p.Body.AttachmentID != ""
}

// AttachmentDescriptor describes one attachment found in a Part tree.
// PartID is the dotted sibling-index path from the root ("" for the root,
// "1.0" for the first child of the root's second child).
type AttachmentDescriptor struct {
	PartID        string `json:"partId"`
	AttachmentID  string `json:"attachmentId"`
	Filename      string `json:"filename"`
	MimeType      string `json:"mimeType"`
	Size          int64  `json:"size"`
	SizeFormatted string `json:"sizeFormatted"`
}

// Locate walks the tree depth-first in pre-order and returns every attachment
// regardless of nesting depth or MIME type. It never returns nil.
func Locate(root *Part) []AttachmentDescriptor {
	found := []AttachmentDescriptor{}
	if root == nil {
		return found
	}
	var path []string
	var walk func(p *Part)
	walk = func(p *Part) {
		if p.IsAttachment() {
			found = append(found, AttachmentDescriptor{
				PartID:        strings.Join(path, "."),
				AttachmentID:  p.Body.AttachmentID,
				Filename:      p.Filename,
				MimeType:      p.MimeType,
				Size:          p.Body.Size,
				SizeFormatted: FormatSize(p.Body.Size),
			})
		}
		for i := range p.Parts {
			path = append(path, strconv.Itoa(i))
			walk(&p.Parts[i])
			path = path[:len(path)-1]
		}
	}
	walk(root)
	return found
}

// HeaderValue returns the first value of the named header of a message
// payload, compared case-insensitively, or "" when absent.
func HeaderValue(msg *gmail.Message, name string) string {
	if msg == nil || msg.Payload == nil {
		return ""
	}
	for _, h := range msg.Payload.Headers {
		if h != nil && strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}
