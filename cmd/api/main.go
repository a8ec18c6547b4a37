package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"github.com/auriga-id/casd/internal/api"
	"github.com/auriga-id/casd/internal/audit"
	"github.com/auriga-id/casd/internal/authn"
	"github.com/auriga-id/casd/internal/cas"
	"github.com/auriga-id/casd/internal/config"
	"github.com/auriga-id/casd/internal/notify"
	"github.com/auriga-id/casd/internal/services"
	"github.com/auriga-id/casd/internal/session"
	"github.com/auriga-id/casd/internal/stats"
	"github.com/auriga-id/casd/internal/storage"
	"github.com/auriga-id/casd/pkg/logger"
)

func main() {
	// Env files exist locally; production relies on system env vars.
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	cfg := config.Load()

	log := logger.Setup(cfg.Env)
	log.Info("application_startup", "env", cfg.Env)

	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			TracesSampleRate: 1.0,
			Environment:      cfg.Env,
		})
		if err != nil {
			log.Error("sentry_init_failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
			log.Info("sentry_initialized")
		}
	} else {
		log.Warn("sentry_dsn_missing", "details", "skipping_init")
	}

	ctx := context.Background()

	// Credential pipeline. The static user store is the development
	// identity source; production plugs in a directory-backed UserStore.
	users := authn.NewStaticUserStore()
	hasher := authn.NewBcryptHasher()
	if username := os.Getenv("BOOTSTRAP_USER"); username != "" {
		hash, err := hasher.Hash(os.Getenv("BOOTSTRAP_PASSWORD"))
		if err != nil {
			log.Error("bootstrap_user_hash_failed", "error", err)
			os.Exit(1)
		}
		users.Add(username, hash, nil)
		log.Info("bootstrap_user_registered", "username", username)
	} else if cfg.Env != "production" {
		hash, _ := hasher.Hash("admin")
		users.Add("admin", hash, nil)
		log.Warn("bootstrap_user_missing", "details", "dev_default_admin_admin")
	}

	handlers := []authn.Handler{
		authn.NewPasswordHandler(users, hasher),
		authn.NewEndpointHandler(cfg.EndpointTimeout, cfg.RequireSecureEndpoints),
		authn.NewOneTimePasswordHandler(authn.NewStaticSecretStore()),
	}
	if cfg.AssertionSecret != "" {
		handlers = append(handlers, authn.NewAssertionHandler([]byte(cfg.AssertionSecret), "casd"))
	}
	manager := authn.NewManager(handlers)

	// Session machinery.
	notifier := notify.NewHTTPNotifier(cfg.NotifyTimeout, log)
	policy := session.LongTermPolicy{
		Default:  session.HardTimeoutPolicy{TTL: cfg.SessionTTL},
		LongTerm: session.HardTimeoutPolicy{TTL: cfg.LongTermTTL},
	}
	factory := session.NewFactory(session.UUIDGenerator{}, notifier, policy, cfg.AccessTTL)

	store, err := newStore(ctx, cfg, factory)
	if err != nil {
		log.Error("storage_init_failed", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("storage_connected", "backend", cfg.StorageBackend)

	sweeper := storage.NewSweeper(store, cfg.SweepInterval, log)
	sweeper.Start()
	defer sweeper.Stop()

	registry, err := services.NewRegistry(cfg.ServicePatterns)
	if err != nil {
		log.Error("service_patterns_invalid", "error", err)
		os.Exit(1)
	}
	if len(cfg.ServicePatterns) == 0 {
		log.Warn("service_patterns_missing", "details", "all_services_allowed")
	}

	collector := stats.NewCollector()
	svc := cas.New(manager, store, factory, registry,
		cas.NewResponseRegistry(cas.CAS2Factory{}, cas.CAS1Factory{}),
		cas.WithPreAuthPlugins(cas.NewThrottlePlugin(cfg.ThrottleRPS, cfg.ThrottleBurst)),
		cas.WithObserver(audit.Multi{audit.NewLogger(log), collector}),
		cas.WithLogger(log))

	server := api.NewServer(svc, collector, api.ServerConfig{
		ThrottleRPS:   cfg.ThrottleRPS * 10,
		ThrottleBurst: cfg.ThrottleBurst * 10,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)

	go func() {
		log.Info("server_listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("server_startup_failed", "error", err)
		os.Exit(1)

	case sig := <-shutdown:
		log.Info("shutdown_signal_received", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("graceful_shutdown_failed", "error", err)
			if err := srv.Close(); err != nil {
				log.Error("server_force_close_failed", "error", err)
			}
		}

		log.Info("server_shutdown_complete")
	}
}

func newStore(ctx context.Context, cfg config.Config, factory *session.Factory) (storage.SessionStorage, error) {
	switch cfg.StorageBackend {
	case "redis":
		return storage.NewRedisStorage(ctx, cfg.RedisURL, factory)
	case "postgres":
		return storage.NewPostgresStorage(ctx, cfg.DatabaseURL, factory)
	default:
		return storage.NewMemoryStorage(), nil
	}
}
