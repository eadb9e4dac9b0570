// Package gmail_tools exposes Gmail reading and attachment downloads as MCP
// tools.
//
// Message tools:
//   - search_gmail_messages: search with Gmail query syntax, paged
//   - read_gmail_message: fetch one message in full, minimal, raw or metadata format
//   - read_gmail_thread: fetch a conversation with or without message bodies
//   - read_gmail_profile: mailbox address and totals
//
// Attachment tools:
//   - list_gmail_attachments: every attachment part of a message
//   - download_gmail_attachment: save one attachment to disk
//   - batch_download_attachments: save many attachments, optionally into
//     sender/year subfolders
//
// Every tool answers with one text payload of two-space indented JSON.
// Failures are reported as error results prefixed with "Error: "; a missing
// or rejected credential produces a message asking the user to run
// `gmailvault auth`.
//
// Example:
//
//	list_gmail_attachments(messageId: "18c2a...")
//	download_gmail_attachment(messageId: "18c2a...", attachmentId: "ANGj...", filename: "invoice.pdf")
package gmail_tools
