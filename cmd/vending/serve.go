package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Skotchmaster/vending_machine/internal/config"
	"github.com/Skotchmaster/vending_machine/internal/handlers"
	"github.com/Skotchmaster/vending_machine/internal/ledger"
	"github.com/Skotchmaster/vending_machine/internal/metrics"
	"github.com/Skotchmaster/vending_machine/internal/mykafka"
	"github.com/Skotchmaster/vending_machine/internal/purchase"
	"github.com/Skotchmaster/vending_machine/internal/repo"
	"github.com/Skotchmaster/vending_machine/internal/service"
	"github.com/Skotchmaster/vending_machine/internal/session"
	httpserver "github.com/Skotchmaster/vending_machine/internal/transport/http"
	"github.com/Skotchmaster/vending_machine/pkg/cache"
	"github.com/Skotchmaster/vending_machine/pkg/db"
	"github.com/Skotchmaster/vending_machine/pkg/logging"
	authmw "github.com/Skotchmaster/vending_machine/pkg/middleware/auth"
	loggingmw "github.com/Skotchmaster/vending_machine/pkg/middleware/logging"
	"github.com/Skotchmaster/vending_machine/pkg/telemetry"
)

func newServeCommand() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(commandContext(cmd), cfg, migrate)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", true, "Apply the schema before serving")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, migrate bool) error {
	log := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(log)
	ctx = logging.IntoContext(ctx, log)

	shutdownTracing, err := telemetry.Init(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}

	gdb, err := db.Open(ctx, cfg.DatabaseURL, cfg.DBSQLDriver)
	if err != nil {
		return err
	}
	if migrate {
		if err := repo.Migrate(ctx, gdb); err != nil {
			return err
		}
	}
	store := &repo.GormRepo{DB: gdb}

	registry := &session.Registry{Store: store, MaxSessions: cfg.MaxUserSessions}
	var closeRedis func() error
	if cfg.RedisURL != "" {
		client, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		registry.Revoked = session.NewRedisRevocations(client)
		closeRedis = client.Close
		log.Info("redis_connected")
	}

	var events mykafka.Publisher = mykafka.Nop{}
	var producer *mykafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		if producer, err = mykafka.NewProducer(cfg.KafkaBrokers); err != nil {
			return err
		}
		events = producer
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	e := echo.New()
	e.HideBanner = true
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), middleware.BodyLimit("1M"))
	if len(cfg.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     cfg.CORSOrigins,
			AllowCredentials: true,
		}))
	}
	e.Use(loggingmw.RequestLogger(log))

	httpserver.Register(e, &httpserver.Deps{
		Ping:         store.Ping,
		Gatherer:     reg,
		Auth:         authmw.NewSessionAuth(cfg.JWTSecret, registry, cfg.CookieSecure),
		CookieSecure: cfg.CookieSecure,
		AuthHandler: &handlers.AuthHandler{
			Auth: &service.AuthService{
				Users:         store,
				Sessions:      registry,
				Events:        events,
				Metrics:       m,
				JWTSecret:     cfg.JWTSecret,
				RefreshSecret: cfg.RefreshSecret,
				AccessTTL:     cfg.AccessTokenTTL,
				RefreshTTL:    cfg.RefreshTokenTTL,
			},
			CookieSecure: cfg.CookieSecure,
		},
		ProductHandler: &handlers.ProductHandler{Catalog: &service.CatalogService{Store: store, Events: events}},
		VendingHandler: &handlers.VendingHandler{Vending: &service.VendingService{
			Ledger:      &ledger.Ledger{Store: store},
			Coordinator: &purchase.Coordinator{Store: store},
			Events:      events,
			Metrics:     m,
		}},
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      telemetry.WrapHandler(e, cfg.ServiceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.SessionSweepInterval > 0 {
		go sweepSessions(ctx, registry, cfg.SessionSweepInterval)
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("http_listen", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case runErr = <-serveErr:
		if runErr != nil {
			log.Error("http_server_error", "error", runErr)
		}
	case <-ctx.Done():
		log.Info("shutting_down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server_shutdown_error", "error", err)
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Error("kafka_close_error", "error", err)
		}
	}
	if closeRedis != nil {
		if err := closeRedis(); err != nil {
			log.Error("redis_close_error", "error", err)
		}
	}
	if err := db.Close(gdb); err != nil {
		log.Error("db_close_error", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing_shutdown_error", "error", err)
	}

	log.Info("shutdown_complete")
	return runErr
}

// sweepSessions deletes expired sessions until ctx ends. Validation never
// depends on it; it only keeps the table small.
func sweepSessions(ctx context.Context, registry *session.Registry, every time.Duration) {
	log := logging.FromContext(ctx).With("job", "session_sweep")
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := registry.PurgeExpired(ctx)
			if err != nil {
				log.Warn("sweep_failed", "error", err)
				continue
			}
			if n > 0 {
				log.Info("sweep_done", "deleted", n)
			}
		}
	}
}
