package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"
	"time"

	"swing-trader/internal/advisor"
	"swing-trader/internal/cache"
	"swing-trader/internal/config"
	"swing-trader/internal/db"
	"swing-trader/internal/provider"
	"swing-trader/internal/repository"
	"swing-trader/internal/service"
	signalengine "swing-trader/internal/signal"
	"swing-trader/internal/tui"
	"swing-trader/pkg/tracing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/activeterm"
	bm "github.com/charmbracelet/wish/bubbletea"
	"github.com/charmbracelet/wish/logging"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"
	gossh "golang.org/x/crypto/ssh"
)

const sshAuthTimeout = 3 * time.Second

// Constructor and process seams, swapped out by the tests so main() can run
// without Postgres, Redis, or a listening socket.
var (
	loadDotenv   = godotenv.Load
	loadConfig   = config.Load
	openPostgres = db.Connect
	openRedis    = cache.Connect
	startTracer  = tracing.InitTracer

	newBarRepo          = repository.NewBarRepository
	newSignalRepo       = repository.NewSignalRepository
	newRunRepo          = repository.NewRunRepository
	newConversationRepo = repository.NewConversationRepository
	newSSHUserRepo      = repository.NewSSHUserRepository

	newEngine         = signalengine.NewEngine
	newBarService     = service.NewBarService
	newSignalService  = service.NewSignalService
	newLLMClient      = advisor.NewOpenAIClient
	newAdvisorService = advisor.NewAdvisorService

	newYahooProvider = func(tracer trace.Tracer, baseURL string, timeout time.Duration) service.BarProvider {
		return provider.NewYahooProviderWithBaseURL(tracer, baseURL, timeout)
	}
	newSSHServer = func(opts ...ssh.Option) (*ssh.Server, error) { return wish.NewServer(opts...) }
	listenSSH    = func(srv *ssh.Server) error { return srv.ListenAndServe() }
	stopSSH      = func(srv *ssh.Server, ctx context.Context) error { return srv.Shutdown(ctx) }

	trapSignals   = ossignal.Notify
	awaitShutdown = func(quit <-chan os.Signal) { <-quit }
)

// authUserKey carries the authenticated row from the public key callback to
// the session handler.
type authUserKey struct{}

// sshUserStore is the slice of the SSH user repository the auth path needs.
type sshUserStore interface {
	FindByFingerprint(ctx context.Context, fingerprint string) (*repository.SSHUser, error)
	UpdateLastLogin(ctx context.Context, userID int64) error
}

// sshUserSeeder is the slice used for the optional bootstrap key.
type sshUserSeeder interface {
	UpsertUser(ctx context.Context, username, displayName, publicKey, keyType, fingerprint string) error
}

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

	barRepo := newBarRepo(db.Pool, tracer)
	signalRepo := newSignalRepo(db.Pool, tracer)
	runRepo := newRunRepo(db.Pool, tracer)
	convRepo := newConversationRepo(db.Pool, tracer)
	sshRepo := newSSHUserRepo(db.Pool, tracer)

	// Without Postgres there are no authorized keys, so every connection is
	// rejected. The server still starts, which keeps bring-up ordering loose.
	var (
		barStore    service.BarStore
		signalStore service.SignalStore
		runStore    service.RunStore
		convStore   advisor.ConversationStore
		sshUsers    sshUserStore
	)
	if db.Pool != nil {
		for _, migrator := range []interface {
			RunMigrations(context.Context) error
		}{barRepo, signalRepo, runRepo, convRepo, sshRepo} {
			if err := migrator.RunMigrations(ctx); err != nil {
				log.Fatalf("failed to run migrations: %v", err)
			}
		}
		barStore = barRepo
		signalStore = signalRepo
		runStore = runRepo
		convStore = convRepo
		sshUsers = sshRepo

		if username, rawKey := strings.TrimSpace(os.Getenv("SSH_BOOTSTRAP_USER")), strings.TrimSpace(os.Getenv("SSH_BOOTSTRAP_KEY")); username != "" && rawKey != "" {
			if err := seedBootstrapUser(ctx, sshRepo, username, rawKey); err != nil {
				log.Printf("seed bootstrap user: %v", err)
			}
		}
		if users, err := sshRepo.ListActive(ctx); err == nil {
			log.Printf("ssh dashboard ready: %d authorized users", len(users))
		}
	} else {
		log.Println("DATABASE_URL not set; all SSH connections will be rejected")
	}

	yahoo := newYahooProvider(tracer, cfg.ProviderBaseURL, time.Duration(cfg.ProviderTimeoutSecs)*time.Second)
	barCache := cache.NewBarCache(cache.Client, time.Duration(cfg.BarsCacheTTLSecs)*time.Second, tracer)
	barService := newBarService(tracer, yahoo, barCache, barStore, nil)

	signalService := newSignalService(tracer, service.SignalServiceDeps{
		Bars:    barService,
		Engine:  newEngine(nil),
		Signals: signalStore,
		Runs:    runStore,
	})

	var advisorQuerier tui.AdvisorQuerier
	if llm := newLLMClient(cfg.OpenAIAPIKey); llm != nil {
		advisorQuerier = newAdvisorService(tracer, llm, barService, signalService, convStore, cfg.OpenAIModel, cfg.AdvisorMaxHistory)
	}

	addr := net.JoinHostPort(cfg.SSHBind, fmt.Sprintf("%d", cfg.SSHPort))
	srv, err := newSSHServer(
		wish.WithAddress(addr),
		wish.WithHostKeyPath(cfg.SSHHostKeyPath),
		wish.WithPublicKeyAuth(func(sctx ssh.Context, key ssh.PublicKey) bool {
			authCtx, cancelAuth := context.WithTimeout(sctx, sshAuthTimeout)
			defer cancelAuth()

			user := authorizeKey(authCtx, sshUsers, key)
			if user == nil {
				return false
			}
			sctx.SetValue(authUserKey{}, user)
			return true
		}),
		wish.WithMiddleware(
			bm.Middleware(newTeaHandler(signalService, signalService, advisorQuerier)),
			activeterm.Middleware(),
			logging.Middleware(),
		),
	)
	if err != nil {
		log.Fatalf("failed to create ssh server: %v", err)
	}

	go func() {
		log.Printf("ssh dashboard listening on %s", addr)
		if err := listenSSH(srv); err != nil && err != ssh.ErrServerClosed {
			log.Fatalf("ssh listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	trapSignals(quit, syscall.SIGINT, syscall.SIGTERM)
	awaitShutdown(quit)
	log.Println("Shutting down ssh server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := stopSSH(srv, shutdownCtx); err != nil && err != ssh.ErrServerClosed {
		log.Fatal("SSH server forced to shutdown:", err)
	}

	log.Println("SSH server exiting")
}

// authorizeKey resolves a presented public key to an active user row and
// stamps the login time. A lookup failure rejects rather than erroring the
// handshake.
func authorizeKey(ctx context.Context, store sshUserStore, key gossh.PublicKey) *repository.SSHUser {
	if store == nil {
		return nil
	}
	fingerprint := gossh.FingerprintSHA256(key)
	user, err := store.FindByFingerprint(ctx, fingerprint)
	if err != nil {
		log.Printf("ssh auth lookup failed: %v", err)
		return nil
	}
	if user == nil {
		return nil
	}
	if err := store.UpdateLastLogin(ctx, user.ID); err != nil {
		log.Printf("update last login for %s: %v", user.Username, err)
	}
	return user
}

// seedBootstrapUser upserts one allow-listed key from the environment so the
// first operator can log in before any rows exist.
func seedBootstrapUser(ctx context.Context, store sshUserSeeder, username, rawKey string) error {
	pub, comment, _, _, err := gossh.ParseAuthorizedKey([]byte(rawKey))
	if err != nil {
		return fmt.Errorf("parse SSH_BOOTSTRAP_KEY: %w", err)
	}
	displayName := comment
	if displayName == "" {
		displayName = username
	}
	fingerprint := gossh.FingerprintSHA256(pub)
	if err := store.UpsertUser(ctx, username, displayName, rawKey, pub.Type(), fingerprint); err != nil {
		return fmt.Errorf("upsert bootstrap user: %w", err)
	}
	log.Printf("bootstrap ssh user %s registered (%s)", username, fingerprint)
	return nil
}

func newTeaHandler(signals tui.SignalQuerier, runs tui.RunQuerier, advisorQuerier tui.AdvisorQuerier) bm.Handler {
	return func(s ssh.Session) (tea.Model, []tea.ProgramOption) {
		user, _ := s.Context().Value(authUserKey{}).(*repository.SSHUser)
		if user == nil {
			wish.Println(s, "no authorized user bound to this session")
			return nil, nil
		}
		model := tui.NewAppModel(tui.Services{
			Signals:  signals,
			Runs:     runs,
			Advisor:  advisorQuerier,
			UserID:   user.ID,
			Username: user.Username,
		})
		return model, []tea.ProgramOption{tea.WithAltScreen()}
	}
}
