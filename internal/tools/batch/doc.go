// Package batch decodes and renders the arguments and results of batch
// download operations.
//
// ParseDownloads accepts the download list either as a JSON array or as a
// string holding one, and reports the index of the first invalid item.
// FormatSummary renders a download.Summary as the
// {summary: {...}, results: [...]} payload returned to callers.
package batch
