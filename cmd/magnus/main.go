package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victorgrein/magnus-ai-sub001/internal/adapter/cache"
	"github.com/victorgrein/magnus-ai-sub001/internal/adapter/email"
	"github.com/victorgrein/magnus-ai-sub001/internal/adapter/engine"
	magnushttp "github.com/victorgrein/magnus-ai-sub001/internal/adapter/http"
	"github.com/victorgrein/magnus-ai-sub001/internal/adapter/mcpclient"
	magnusnats "github.com/victorgrein/magnus-ai-sub001/internal/adapter/nats"
	"github.com/victorgrein/magnus-ai-sub001/internal/adapter/otel"
	"github.com/victorgrein/magnus-ai-sub001/internal/adapter/postgres"
	"github.com/victorgrein/magnus-ai-sub001/internal/adapter/ws"
	"github.com/victorgrein/magnus-ai-sub001/internal/config"
	"github.com/victorgrein/magnus-ai-sub001/internal/logger"
	"github.com/victorgrein/magnus-ai-sub001/internal/middleware"
	"github.com/victorgrein/magnus-ai-sub001/internal/resilience"
	"github.com/victorgrein/magnus-ai-sub001/internal/service"
)

const (
	idempotencyBucket = "magnus-idempotency"
	cacheBucket       = "magnus-cache"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "admin":
			if err := runAdmin(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		case "migrate":
			if err := runMigrate(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logClose := logger.New(cfg.Logging)
	defer logClose.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"engine_url", cfg.Engine.BaseURL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---

	otelShutdown, err := otel.Init(ctx, cfg.Otel, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shutdownCtx)
	}()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	queue, err := magnusnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Drain() }()
	slog.Info("nats connected")

	idemKV, err := queue.KeyValue(ctx, idempotencyBucket, 24*time.Hour)
	if err != nil {
		return fmt.Errorf("idempotency bucket: %w", err)
	}
	cacheKV, err := queue.KeyValue(ctx, cacheBucket, cfg.Cache.AgentTTL)
	if err != nil {
		return fmt.Errorf("cache bucket: %w", err)
	}

	local, err := cache.NewLocal(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("local cache: %w", err)
	}
	defer local.Close()
	tiered := cache.NewTiered(local, cache.NewRemote(cacheKV), cfg.Cache.AgentTTL)

	// --- Services ---

	hub := ws.NewHub()
	store := postgres.NewStore(pool)

	notifier := email.NewNotifier(cfg.Email)
	notifications := service.NewNotificationService(queue, notifier)
	mailer := email.NewMailer(notifier, notifications, cfg.Server.AppURL)

	authSvc := service.NewAuthService(store, &cfg.Auth, mailer)
	clientSvc := service.NewClientService(store, cfg.Auth.BcryptCost)
	contactSvc := service.NewContactService(store)
	agentSvc := service.NewAgentService(store, tiered, cfg.Cache.AgentTTL)
	mcpSvc := service.NewMCPService(store, mcpclient.NewProber(cfg.Webhook.Timeout), hub)
	toolSvc := service.NewToolService(store)
	auditSvc := service.NewAuditService(store)
	sessionSvc := service.NewSessionService(store)

	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	engineClient := engine.New(local, cfg.Engine)
	chatSvc := service.NewChatService(store, agentSvc, engineClient, breaker, queue, hub, cfg.Engine)

	if err := authSvc.SeedDefaultAdmin(ctx); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	authSvc.StartTokenCleanup(ctx, cfg.Auth.CleanupInterval)

	// --- Workers ---

	dispatcher := service.NewWebhookDispatcher(queue, agentSvc, hub, cfg.Webhook)
	stopDispatcher, err := dispatcher.Start(ctx)
	if err != nil {
		return fmt.Errorf("webhook dispatcher: %w", err)
	}
	defer stopDispatcher()

	stopNotifications, err := notifications.Start(ctx)
	if err != nil {
		return fmt.Errorf("notification worker: %w", err)
	}
	defer stopNotifications()

	// --- HTTP ---

	handlers := magnushttp.NewHandlers(
		authSvc, clientSvc, contactSvc, agentSvc,
		mcpSvc, toolSvc, auditSvc, sessionSvc, chatSvc,
		hub, metrics,
	)

	authLimiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopLimiter := authLimiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopLimiter()

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(magnushttp.Logger)
	r.Use(magnushttp.SecurityHeaders)
	r.Use(magnushttp.CORS(cfg.Server.CORSOrigin))
	if cfg.Otel.Enabled {
		r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	}
	r.Use(middleware.Auth(authSvc))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", readyHandler(pool, queue, breaker))

	magnushttp.MountRoutes(r, handlers, cfg.Webhook, authLimiter, idemKV)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// WriteTimeout stays zero: SSE chat streams outlive any fixed bound.
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// readyHandler reports dependency status: postgres reachability, the NATS
// connection, and the engine circuit breaker state.
func readyHandler(pool *pgxpool.Pool, queue *magnusnats.Queue, breaker *resilience.Breaker) http.HandlerFunc {
	type readiness struct {
		Status   string `json:"status"`
		Postgres string `json:"postgres"`
		NATS     string `json:"nats"`
		Engine   string `json:"engine_breaker"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		st := readiness{Status: "ok", Postgres: "ok", NATS: "ok", Engine: breaker.State()}
		code := http.StatusOK

		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			st.Postgres = "unreachable"
			st.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
		if !queue.IsConnected() {
			st.NATS = "disconnected"
			st.Status = "degraded"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(st)
	}
}
