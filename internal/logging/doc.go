// Package logging provides structured logging utilities for gmailvault.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithTool(slog.Default(), "batch_download_attachments")
//	logger.Info("attachment saved",
//	    logging.MessageID(id),
//	    logging.Status(logging.StatusSuccess))
//
// # Security Considerations
//
// The persisted credential set is a capability. Tokens are never logged
// directly; use SanitizeToken when a token needs to be mentioned at all.
//
// Logs always go to stderr. When the MCP server runs on the stdio transport,
// stdout carries protocol frames and must not receive log output.
package logging
