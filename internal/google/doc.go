// Package google manages the delegated OAuth2 credentials gmailvault uses to
// reach the Gmail API.
//
// A TokenStore persists the credential set as a JSON file. A Session wraps the
// OAuth client configuration and the current token, refreshes the access token
// when it expires and notifies registered observers so the new token can be
// persisted without the caller polling. Authorize ties the pieces together for
// the MCP server; Flow drives the interactive consent used by `gmailvault auth`.
//
// The persisted credential set is a capability. Nothing in this package logs
// token material; use logging.SanitizeToken when a token must be mentioned.
package google
