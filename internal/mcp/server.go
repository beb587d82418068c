package mcp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultRequestTimeout = 5 * time.Second

type ServerConfig struct {
	RequestTimeout time.Duration
}

// NewServer assembles the MCP server: bar and signal tools, the instrument
// and latest-signal resources, and receiving middleware for deadlines and
// spans.
func NewServer(tracer trace.Tracer, bars BarReader, signals SignalReaderWriter, cfg ServerConfig) *sdkmcp.Server {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	srv := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "swing-trader-mcp",
		Version: "1.0.0",
	}, &sdkmcp.ServerOptions{
		Instructions: "Query OHLCV bar history, list swing-trade signal records, and trigger signal batches for the covered tickers.",
		Logger:       slog.Default(),
	})

	srv.AddReceivingMiddleware(withDeadline(timeout))
	if tracer != nil {
		srv.AddReceivingMiddleware(withSpans(tracer))
	}

	registerTools(srv, bars, signals)
	registerResources(srv, bars, signals)
	return srv
}

// NewHTTPTransportHandler serves the server over streamable HTTP, guarded by
// bearer auth, a per-client rate limit, and a body cap.
func NewHTTPTransportHandler(server *sdkmcp.Server, cfg HTTPHandlerConfig) http.Handler {
	h := sdkmcp.NewStreamableHTTPHandler(func(*http.Request) *sdkmcp.Server {
		return server
	}, &sdkmcp.StreamableHTTPOptions{})
	return guardTransport(h, cfg)
}

func withDeadline(timeout time.Duration) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			if timeout <= 0 {
				return next(ctx, method, req)
			}
			dctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(dctx, method, req)
		}
	}
}

func withSpans(tracer trace.Tracer) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			name, attrs := describeRequest(method, req)
			ctx, span := tracer.Start(ctx, name)
			span.SetAttributes(attrs...)
			defer span.End()

			result, err := next(ctx, method, req)
			if err != nil {
				span.RecordError(err)
			}
			return result, err
		}
	}
}

// describeRequest picks the span name and attributes for one inbound call.
// Tool calls get per-tool spans, everything else groups by method.
func describeRequest(method string, req sdkmcp.Request) (string, []attribute.KeyValue) {
	attrs := []attribute.KeyValue{attribute.String("mcp.method", method)}
	switch r := req.(type) {
	case *sdkmcp.CallToolRequest:
		tool := strings.TrimSpace(r.Params.Name)
		attrs = append(attrs, attribute.String("mcp.tool", tool))
		if tool == "" {
			return "mcp.tool.call", attrs
		}
		return "mcp.tool." + tool, attrs
	case *sdkmcp.ReadResourceRequest:
		attrs = append(attrs, attribute.String("mcp.resource.uri", strings.TrimSpace(r.Params.URI)))
		return "mcp.resource.read", attrs
	default:
		return "mcp." + strings.ReplaceAll(method, "/", "."), attrs
	}
}
