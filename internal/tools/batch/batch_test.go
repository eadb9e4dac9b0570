package batch

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/teemow/gmailvault/internal/download"
)

func TestParseDownloads(t *testing.T) {
	item := func(msg, att, name string) map[string]interface{} {
		return map[string]interface{}{"messageId": msg, "attachmentId": att, "filename": name}
	}

	tests := []struct {
		name        string
		input       interface{}
		want        []download.Request
		errContains string
	}{
		{
			name:  "array of objects",
			input: []interface{}{item("m1", "a1", "one.pdf"), item("m2", "a2", "two.pdf")},
			want: []download.Request{
				{MessageID: "m1", AttachmentID: "a1", Filename: "one.pdf"},
				{MessageID: "m2", AttachmentID: "a2", Filename: "two.pdf"},
			},
		},
		{
			name: "custom filename",
			input: []interface{}{map[string]interface{}{
				"messageId": "m1", "attachmentId": "a1", "filename": "one.pdf", "customFilename": "renamed.pdf",
			}},
			want: []download.Request{
				{MessageID: "m1", AttachmentID: "a1", Filename: "one.pdf", CustomFilename: "renamed.pdf"},
			},
		},
		{
			name:  "stringified array",
			input: `[{"messageId":"m1","attachmentId":"a1","filename":"one.pdf"}]`,
			want: []download.Request{
				{MessageID: "m1", AttachmentID: "a1", Filename: "one.pdf"},
			},
		},
		{
			name:  "stringified array with whitespace",
			input: "  \n[{\"messageId\":\"m1\",\"attachmentId\":\"a1\",\"filename\":\"one.pdf\"}]\n",
			want: []download.Request{
				{MessageID: "m1", AttachmentID: "a1", Filename: "one.pdf"},
			},
		},
		{name: "nil", input: nil, errContains: "downloads is required"},
		{name: "empty array", input: []interface{}{}, errContains: "downloads cannot be empty"},
		{name: "empty JSON array", input: `[]`, errContains: "downloads cannot be empty"},
		{name: "invalid JSON", input: `[{"messageId":`, errContains: "not a valid JSON array"},
		{name: "plain string", input: "m1", errContains: "must be an array"},
		{name: "number", input: 42, errContains: "must be an array"},
		{name: "item not object", input: []interface{}{"m1"}, errContains: "downloads[0] must be an object"},
		{
			name:        "missing attachment id",
			input:       []interface{}{item("m1", "a1", "one.pdf"), map[string]interface{}{"messageId": "m2", "filename": "x"}},
			errContains: "downloads[1]: attachmentId is required",
		},
		{
			name:        "empty filename",
			input:       []interface{}{item("m1", "a1", "")},
			errContains: "downloads[0]: filename cannot be empty",
		},
		{
			name:        "non-string message id",
			input:       []interface{}{map[string]interface{}{"messageId": 7.0, "attachmentId": "a", "filename": "f"}},
			errContains: "downloads[0]: messageId must be a string",
		},
		{
			name: "non-string custom filename",
			input: []interface{}{map[string]interface{}{
				"messageId": "m", "attachmentId": "a", "filename": "f", "customFilename": true,
			}},
			errContains: "downloads[0]: customFilename must be a string",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDownloads(tt.input, "downloads")
			if tt.errContains != "" {
				if err == nil {
					t.Fatalf("ParseDownloads() expected error containing %q, got nil", tt.errContains)
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("ParseDownloads() error = %v, want error containing %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDownloads() unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseDownloads() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFormatSummary(t *testing.T) {
	summary := &download.Summary{
		Total:        2,
		Successful:   1,
		Failed:       1,
		DownloadPath: "/tmp/out",
		Results: []download.ItemResult{
			{
				Success: true, MessageID: "m1", AttachmentID: "a1", Filename: "one.pdf",
				Result: &download.Result{
					Success: true, MessageID: "m1", AttachmentID: "a1",
					OriginalFilename: "one.pdf", SavedAs: "one.pdf", FullPath: "/tmp/out/one.pdf",
					Size: 10, SizeFormatted: "10 B",
					DownloadedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
				},
			},
			{
				MessageID: "m2", AttachmentID: "a2", Filename: "two.pdf",
				Error: "fetch attachment: not found", Err: errors.New("not found"),
			},
		},
	}

	output, err := FormatSummary(summary)
	if err != nil {
		t.Fatalf("FormatSummary() error = %v", err)
	}
	if !strings.Contains(output, "\n  \"summary\": {") {
		t.Errorf("output is not two-space indented:\n%s", output)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(output), &decoded); err != nil {
		t.Fatalf("failed to parse output JSON: %v", err)
	}

	header := decoded["summary"].(map[string]interface{})
	if header["total"] != 2.0 || header["successful"] != 1.0 || header["failed"] != 1.0 {
		t.Errorf("summary = %v, want total 2, successful 1, failed 1", header)
	}
	if header["downloadPath"] != "/tmp/out" {
		t.Errorf("downloadPath = %v, want /tmp/out", header["downloadPath"])
	}

	results := decoded["results"].([]interface{})
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}

	ok := results[0].(map[string]interface{})
	if ok["success"] != true {
		t.Errorf("results[0].success = %v, want true", ok["success"])
	}
	inner := ok["result"].(map[string]interface{})
	if inner["savedAs"] != "one.pdf" || inner["sizeFormatted"] != "10 B" {
		t.Errorf("results[0].result = %v", inner)
	}
	if inner["downloadedAt"] != "2024-01-02T03:04:05Z" {
		t.Errorf("downloadedAt = %v", inner["downloadedAt"])
	}
	if _, present := ok["error"]; present {
		t.Error("successful result must not carry an error")
	}

	failed := results[1].(map[string]interface{})
	if failed["success"] != false || failed["error"] != "fetch attachment: not found" {
		t.Errorf("results[1] = %v", failed)
	}
	if _, present := failed["result"]; present {
		t.Error("failed result must not carry a result")
	}
	if failed["messageId"] != "m2" || failed["attachmentId"] != "a2" || failed["filename"] != "two.pdf" {
		t.Errorf("results[1] identifiers = %v", failed)
	}
}

func TestFormatSummary_EmptyResults(t *testing.T) {
	output, err := FormatSummary(&download.Summary{})
	if err != nil {
		t.Fatalf("FormatSummary() error = %v", err)
	}
	if !strings.Contains(output, `"results": []`) {
		t.Errorf("empty batch must render an empty results array:\n%s", output)
	}
}
