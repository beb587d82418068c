package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"
	"time"

	"swing-trader/internal/cache"
	"swing-trader/internal/chart"
	"swing-trader/internal/config"
	"swing-trader/internal/db"
	"swing-trader/internal/job"
	mcpserver "swing-trader/internal/mcp"
	"swing-trader/internal/provider"
	"swing-trader/internal/repository"
	"swing-trader/internal/service"
	signalengine "swing-trader/internal/signal"
	"swing-trader/pkg/tracing"

	"github.com/joho/godotenv"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/trace"
)

// Streamable HTTP callers get request bodies capped at 1MiB.
const mcpHTTPBodyLimit int64 = 1 << 20

// Constructor and process seams, swapped out by the tests so main() can run
// without Postgres, Redis, or a live listener.
var (
	loadDotenv   = godotenv.Load
	loadConfig   = config.Load
	openPostgres = db.Connect
	openRedis    = cache.Connect
	startTracer  = tracing.InitTracer

	newBarRepo    = repository.NewBarRepository
	newSignalRepo = repository.NewSignalRepository
	newRunRepo    = repository.NewRunRepository
	newImageRepo  = repository.NewSignalImageRepository

	newBarService    = service.NewBarService
	newSignalService = service.NewSignalService
	newEngine        = signalengine.NewEngine
	newRenderer      = chart.NewRenderer
	newImageJob      = job.NewChartMaintenance
	newMCPServer     = mcpserver.NewServer
	newMCPHandler    = mcpserver.NewHTTPTransportHandler

	newYahooProvider = func(tracer trace.Tracer, baseURL string, timeout time.Duration) service.BarProvider {
		return provider.NewYahooProviderWithBaseURL(tracer, baseURL, timeout)
	}
	startImageJob = func(m *job.ChartMaintenance, ctx context.Context) { go m.Start(ctx) }

	serveStdio = func(ctx context.Context, server *sdkmcp.Server) error {
		return server.Run(ctx, &sdkmcp.StdioTransport{})
	}
	listenHTTP    = func(srv *http.Server) error { return srv.ListenAndServe() }
	stopHTTP      = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
	trapSignals   = ossignal.Notify
	awaitShutdown = func(quit <-chan os.Signal) { <-quit }
)

func main() {
	loadDotenv()
	cfg := loadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	openPostgres(ctx, cfg.DatabaseURL)
	openRedis(ctx, cfg.RedisURL)

	tp, tracer, err := startTracer(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	signalService, barService := buildServices(ctx, cfg, tracer)

	mcpSrv := newMCPServer(tracer, barService, signalService, mcpserver.ServerConfig{
		RequestTimeout: time.Duration(cfg.MCPRequestTimeoutSecs) * time.Second,
	})

	switch transport := strings.ToLower(strings.TrimSpace(cfg.MCPTransport)); transport {
	case "", "stdio":
		if err := serveStdio(ctx, mcpSrv); err != nil {
			log.Fatalf("mcp stdio server failed: %v", err)
		}
	case "http":
		if err := serveHTTP(cancel, cfg, mcpSrv); err != nil {
			log.Fatalf("mcp http server failed: %v", err)
		}
	default:
		log.Fatalf("unsupported MCP_TRANSPORT: %s", cfg.MCPTransport)
	}
}

// buildServices assembles the same service graph the API server uses, minus
// the HTTP handler layer. Migrations are owned by the API server; this
// sidecar only reads and writes through existing tables. With no pool the
// stores stay nil, so bar tools still work while generate reports the store
// as unavailable.
func buildServices(ctx context.Context, cfg *config.Config, tracer trace.Tracer) (*service.SignalService, *service.BarService) {
	barRepo := newBarRepo(db.Pool, tracer)
	signalRepo := newSignalRepo(db.Pool, tracer)
	runRepo := newRunRepo(db.Pool, tracer)
	imageRepo := newImageRepo(db.Pool, tracer)

	var (
		barStore    service.BarStore
		signalStore service.SignalStore
		runStore    service.RunStore
		imageStore  service.SignalImageStore
	)
	if db.Pool != nil {
		barStore = barRepo
		signalStore = signalRepo
		runStore = runRepo
		imageStore = imageRepo
	}

	yahoo := newYahooProvider(tracer, cfg.ProviderBaseURL, time.Duration(cfg.ProviderTimeoutSecs)*time.Second)
	barCache := cache.NewBarCache(cache.Client, time.Duration(cfg.BarsCacheTTLSecs)*time.Second, tracer)
	barService := newBarService(tracer, yahoo, barCache, barStore, nil)

	signalService := newSignalService(tracer, service.SignalServiceDeps{
		Bars:        barService,
		Engine:      newEngine(nil),
		Signals:     signalStore,
		Runs:        runStore,
		Images:      imageStore,
		Renderer:    newRenderer(),
		WorkerCount: cfg.WorkerCount,
		ImageTTL:    time.Duration(cfg.SignalImageTTLHours) * time.Hour,
	})
	startImageJob(newImageJob(tracer, signalService), ctx)

	return signalService, barService
}

func serveHTTP(cancel context.CancelFunc, cfg *config.Config, mcpSrv *sdkmcp.Server) error {
	if !cfg.MCPHTTPEnabled {
		return fmt.Errorf("MCP_HTTP_ENABLED must be true when MCP_TRANSPORT=http")
	}
	if strings.TrimSpace(cfg.MCPAuthToken) == "" {
		return fmt.Errorf("MCP_AUTH_TOKEN is required when MCP_TRANSPORT=http")
	}

	srv := &http.Server{
		Addr: net.JoinHostPort(cfg.MCPHTTPBind, fmt.Sprintf("%d", cfg.MCPHTTPPort)),
		Handler: newMCPHandler(mcpSrv, mcpserver.HTTPHandlerConfig{
			AuthToken:       cfg.MCPAuthToken,
			RateLimitPerMin: cfg.MCPRateLimitPerMin,
			MaxBodyBytes:    mcpHTTPBodyLimit,
		}),
	}

	go func() {
		if err := listenHTTP(srv); err != nil && err != http.ErrServerClosed {
			log.Printf("mcp http server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	trapSignals(quit, syscall.SIGINT, syscall.SIGTERM)
	awaitShutdown(quit)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := stopHTTP(srv, shutdownCtx); err != nil {
		return fmt.Errorf("mcp server forced to shutdown: %w", err)
	}
	return nil
}
