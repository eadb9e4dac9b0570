package common

import (
	"context"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/codes"

	"github.com/teemow/gmailvault/internal/instrumentation"
	"github.com/teemow/gmailvault/internal/logging"
	"github.com/teemow/gmailvault/internal/server"
)

// ToolHandler is the mcp-go tool handler signature.
type ToolHandler = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// InstrumentedToolHandler wraps a tool handler with a tool span, invocation
// metrics and a debug log line. A result with IsError set counts as a
// failed invocation.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", "get", sc, handler))
func InstrumentedToolHandler(
	toolName string,
	operation string,
	sc *server.ServerContext,
	handler ToolHandler,
) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := instrumentation.StartToolSpan(ctx, toolName, operation)
		defer span.End()

		start := time.Now()
		result, err := handler(ctx, request)
		duration := time.Since(start)

		status := instrumentation.StatusSuccess
		switch {
		case err != nil:
			status = instrumentation.StatusError
			instrumentation.FinishSpan(span, err)
		case result != nil && result.IsError:
			status = instrumentation.StatusError
			span.SetStatus(codes.Error, resultText(result))
		default:
			instrumentation.FinishSpan(span, nil)
		}

		sc.Metrics().RecordToolInvocation(ctx, toolName, status, duration)

		sc.Logger().Debug("tool invoked",
			logging.Tool(toolName),
			logging.Operation(operation),
			logging.Status(status),
			slog.Duration(logging.KeyDuration, duration),
			slog.String(logging.KeyTraceID, instrumentation.GetTraceID(ctx)))

		return result, err
	}
}

// resultText returns the first text content of a tool result.
func resultText(result *mcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}
