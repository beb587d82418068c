package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"swing-trader/internal/advisor"
	"swing-trader/internal/anomaly"
	"swing-trader/internal/bot"
	"swing-trader/internal/cache"
	"swing-trader/internal/chart"
	"swing-trader/internal/config"
	"swing-trader/internal/db"
	"swing-trader/internal/handler"
	"swing-trader/internal/job"
	"swing-trader/internal/metrics"
	"swing-trader/internal/provider"
	"swing-trader/internal/repository"
	"swing-trader/internal/service"
	signalengine "swing-trader/internal/signal"
	"swing-trader/pkg/tracing"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	_ "swing-trader/docs"
)

// Constructor and process seams, swapped out by the tests so main() can run
// without Postgres, Redis, or a live listener.
var (
	loadDotenv   = godotenv.Load
	loadConfig   = config.Load
	openPostgres = db.Connect
	openRedis    = cache.Connect
	startTracer  = tracing.InitTracer
	newMetrics   = metrics.NewMetrics

	newBarRepo          = repository.NewBarRepository
	newSignalRepo       = repository.NewSignalRepository
	newRunRepo          = repository.NewRunRepository
	newImageRepo        = repository.NewSignalImageRepository
	newAnomalyRepo      = repository.NewAnomalyRepository
	newConversationRepo = repository.NewConversationRepository

	newEngine         = signalengine.NewEngine
	newRenderer       = chart.NewRenderer
	newBarService     = service.NewBarService
	newSignalService  = service.NewSignalService
	newAnomalyService = anomaly.NewService
	newLLMClient      = advisor.NewOpenAIClient
	newAdvisorService = advisor.NewAdvisorService
	newScheduler      = job.NewBatchScheduler
	newImageJob       = job.NewChartMaintenance
	startTelegram     = bot.StartTelegramBot
	newHandler        = handler.New
	newHub            = handler.NewHub
	newRouter         = gin.Default

	newYahooProvider = func(tracer trace.Tracer, baseURL string, timeout time.Duration) service.BarProvider {
		return provider.NewYahooProviderWithBaseURL(tracer, baseURL, timeout)
	}
	startScheduler = func(s *job.BatchScheduler, ctx context.Context) { go s.Start(ctx) }
	startImageJob  = func(m *job.ChartMaintenance, ctx context.Context) { go m.Start(ctx) }

	trapSignals   = ossignal.Notify
	awaitShutdown = func(quit <-chan os.Signal) { <-quit }
	listenHTTP    = func(srv *http.Server) error { return srv.ListenAndServe() }
	stopHTTP      = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// stores holds the persistence interfaces the services consume. All fields
// stay nil without a database so the services degrade to provider-only mode
// instead of panicking on a dead pool.
type stores struct {
	bars          service.BarStore
	signals       service.SignalStore
	runs          service.RunStore
	images        service.SignalImageStore
	points        anomaly.PointStore
	anomalies     handler.AnomalyLister
	conversations advisor.ConversationStore
}

// @title           Swing Trader API
// @version         1.0
// @description     Swing-trade signal engine over daily OHLCV bars with OpenTelemetry tracing.

// @host      localhost:8080
// @BasePath  /
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

	m := newMetrics()
	st := openStores(ctx, tracer)

	yahoo := newYahooProvider(tracer, cfg.ProviderBaseURL, time.Duration(cfg.ProviderTimeoutSecs)*time.Second)
	barCache := cache.NewBarCache(cache.Client, time.Duration(cfg.BarsCacheTTLSecs)*time.Second, tracer)
	barService := newBarService(tracer, yahoo, barCache, st.bars, m)

	hub := newHub(m)
	go hub.Run(ctx)

	// The Telegram dispatcher is appended after bot startup, so batches
	// publish to the hub immediately and to Telegram once it is up.
	publishers := &service.RecordPublishers{hub}

	deps := service.SignalServiceDeps{
		Bars:        barService,
		Engine:      newEngine(nil),
		Signals:     st.signals,
		Runs:        st.runs,
		Images:      st.images,
		Renderer:    newRenderer(),
		Publisher:   publishers,
		Metrics:     m,
		WorkerCount: cfg.WorkerCount,
		ImageTTL:    time.Duration(cfg.SignalImageTTLHours) * time.Hour,
	}
	if cfg.AnomalyEnabled {
		deps.Anomalies = newAnomalyService(tracer, st.points, anomaly.Config{
			Threshold:  cfg.AnomalyThreshold,
			NumTrees:   cfg.AnomalyForestTrees,
			SampleSize: cfg.AnomalyForestSample,
		})
	}
	signalService := newSignalService(tracer, deps)

	var botAdvisor bot.Advisor
	if llm := newLLMClient(cfg.OpenAIAPIKey); llm != nil {
		botAdvisor = newAdvisorService(tracer, llm, barService, signalService, st.conversations, cfg.OpenAIModel, cfg.AdvisorMaxHistory)
	}

	os.Setenv("TELEGRAM_BOT_TOKEN", cfg.TelegramBotToken)
	if alerts := startTelegram(signalService, botAdvisor, m); alerts != nil {
		*publishers = append(*publishers, alerts)
	}

	// Background jobs stop with ctx.
	startScheduler(newScheduler(
		tracer, signalService,
		cfg.Tickers, cfg.DefaultPeriod, cfg.DefaultInterval,
		time.Duration(cfg.RefreshIntervalSecs)*time.Second,
	), ctx)
	startImageJob(newImageJob(tracer, signalService), ctx)

	h := newHandler(tracer, signalService, barService, st.anomalies, hub)

	r := newRouter()
	r.Use(otelgin.Middleware("swing-trader"))
	r.Use(cors.Default())

	h.RegisterRoutes(r)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    httpAddr(cfg.Port),
		Handler: r,
	}

	go func() {
		if err := listenHTTP(srv); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	trapSignals(quit, syscall.SIGINT, syscall.SIGTERM)
	awaitShutdown(quit)
	log.Println("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := stopHTTP(srv, shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}

// openStores builds the repositories and runs migrations. An empty
// DATABASE_URL leaves the pool nil and every store nil.
func openStores(ctx context.Context, tracer trace.Tracer) stores {
	barRepo := newBarRepo(db.Pool, tracer)
	signalRepo := newSignalRepo(db.Pool, tracer)
	runRepo := newRunRepo(db.Pool, tracer)
	imageRepo := newImageRepo(db.Pool, tracer)
	anomalyRepo := newAnomalyRepo(db.Pool, tracer)
	convRepo := newConversationRepo(db.Pool, tracer)

	if db.Pool == nil {
		return stores{}
	}

	for _, migrator := range []interface {
		RunMigrations(context.Context) error
	}{barRepo, signalRepo, runRepo, imageRepo, anomalyRepo, convRepo} {
		if err := migrator.RunMigrations(ctx); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
	}

	return stores{
		bars:          barRepo,
		signals:       signalRepo,
		runs:          runRepo,
		images:        imageRepo,
		points:        anomalyRepo,
		anomalies:     anomalyRepo,
		conversations: convRepo,
	}
}

// httpAddr turns the configured port into a bind address.
func httpAddr(port int) string {
	if port <= 0 {
		port = 8080
	}
	return fmt.Sprintf(":%d", port)
}
