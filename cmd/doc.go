// Package cmd implements the command-line interface for gmailvault.
//
// This package provides the following commands:
//   - serve: Start the MCP server over stdio or streamable HTTP
//   - auth: Run the interactive OAuth consent flow and store the credential
//   - download: Download attachments directly, without an MCP client
//   - generate-docs: Generate markdown documentation for all MCP tools
//   - version: Display version information
//
// Configuration is shared by all commands through persistent flags, the
// GMAILVAULT_ environment and an optional YAML file.
package cmd
