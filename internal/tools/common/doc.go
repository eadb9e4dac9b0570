// Package common provides shared helpers for MCP tool implementations:
// instrumentation of tool handlers and rendering of JSON and error results.
package common
