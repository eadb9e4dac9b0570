// Package download materializes Gmail attachments on the local filesystem.
//
// SanitizeFilename and ResolveUniquePath turn an untrusted attachment name
// into a safe, collision-free path. A Downloader fetches one attachment,
// decodes it and writes it without ever overwriting an existing file. An
// Orchestrator runs a list of downloads with per-item fault isolation and
// returns a Summary holding one result per request, in request order.
//
// Writes into the same directory are serialized per process, so concurrent
// downloads never race to the same "unique" name. Other processes writing to
// the directory are not coordinated with; exclusive file creation still
// prevents overwrites in that case.
package download
