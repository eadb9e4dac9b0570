package batch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/teemow/gmailvault/internal/download"
)

// SummaryHeader is the aggregate part of a batch payload.
type SummaryHeader struct {
	Total        int    `json:"total"`
	Successful   int    `json:"successful"`
	Failed       int    `json:"failed"`
	DownloadPath string `json:"downloadPath"`
}

// SummaryPayload is the JSON rendering of a batch run.
type SummaryPayload struct {
	Summary SummaryHeader         `json:"summary"`
	Results []download.ItemResult `json:"results"`
}

// ParseDownloads decodes the downloads parameter of a batch tool. It accepts
// an array of objects or a string holding a JSON array, since some MCP
// clients stringify array arguments. Every item needs non-empty messageId,
// attachmentId and filename strings; customFilename is optional.
func ParseDownloads(param interface{}, paramName string) ([]download.Request, error) {
	if param == nil {
		return nil, fmt.Errorf("%s is required", paramName)
	}

	var items []interface{}
	switch v := param.(type) {
	case []interface{}:
		items = v
	case string:
		trimmed := strings.TrimSpace(v)
		if !strings.HasPrefix(trimmed, "[") {
			return nil, fmt.Errorf("%s must be an array of download objects", paramName)
		}
		if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
			return nil, fmt.Errorf("%s is not a valid JSON array: %w", paramName, err)
		}
	default:
		return nil, fmt.Errorf("%s must be an array of download objects", paramName)
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("%s cannot be empty", paramName)
	}

	reqs := make([]download.Request, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be an object", paramName, i)
		}

		var req download.Request
		var err error
		if req.MessageID, err = requiredString(obj, "messageId"); err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", paramName, i, err)
		}
		if req.AttachmentID, err = requiredString(obj, "attachmentId"); err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", paramName, i, err)
		}
		if req.Filename, err = requiredString(obj, "filename"); err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", paramName, i, err)
		}
		if raw, present := obj["customFilename"]; present && raw != nil {
			s, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d]: customFilename must be a string", paramName, i)
			}
			req.CustomFilename = s
		}

		reqs = append(reqs, req)
	}

	return reqs, nil
}

func requiredString(obj map[string]interface{}, key string) (string, error) {
	raw, ok := obj[key]
	if !ok || raw == nil {
		return "", fmt.Errorf("%s is required", key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", key)
	}
	if s == "" {
		return "", fmt.Errorf("%s cannot be empty", key)
	}
	return s, nil
}

// NewSummaryPayload converts a batch summary into its JSON shape.
func NewSummaryPayload(s *download.Summary) SummaryPayload {
	results := s.Results
	if results == nil {
		results = []download.ItemResult{}
	}
	return SummaryPayload{
		Summary: SummaryHeader{
			Total:        s.Total,
			Successful:   s.Successful,
			Failed:       s.Failed,
			DownloadPath: s.DownloadPath,
		},
		Results: results,
	}
}

// FormatSummary renders a batch summary as indented JSON.
func FormatSummary(s *download.Summary) (string, error) {
	data, err := json.MarshalIndent(NewSummaryPayload(s), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format batch summary: %w", err)
	}
	return string(data), nil
}
