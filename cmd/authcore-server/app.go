package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/federated/google"
	"github.com/MrEthical07/authcore/internal/httpapi"
	"github.com/MrEthical07/authcore/mail"
	prometheusexport "github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/MrEthical07/authcore/userstore/memory"
	"github.com/MrEthical07/authcore/userstore/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// App owns the engine and every connection it was built on.
type App struct {
	logger     *slog.Logger
	engine     *authcore.Engine
	httpServer *http.Server
	closers    []func() error
}

// NewApp connects the configured backends and builds the router.
func NewApp(cfg *Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	app := &App{logger: logger}
	fail := func(err error) (*App, error) {
		_ = app.closeAll()
		return nil, err
	}

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, err
	}
	if cfg.JWTAccessKey == "" {
		logger.Warn("using generated signing keys; tokens will not survive a restart")
	}

	builder := authcore.New().WithConfig(engineCfg).WithLogger(logger)

	if cfg.PostgresDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return fail(fmt.Errorf("connect to postgres: %w", err))
		}
		app.closers = append(app.closers, func() error { pool.Close(); return nil })
		if err := pool.Ping(ctx); err != nil {
			return fail(fmt.Errorf("ping postgres: %w", err))
		}
		if err := postgres.MigratePool(ctx, pool); err != nil {
			return fail(err)
		}
		logger.Info("database migrations completed")
		builder = builder.WithUserStore(postgres.New(pool))
	} else {
		logger.Warn("AUTH_POSTGRES_DSN not set; users are kept in memory")
		builder = builder.WithUserStore(memory.New())
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		app.closers = append(app.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fail(fmt.Errorf("ping redis: %w", err))
		}
		builder = builder.WithRedis(rdb)
	}

	// LoadConfig only allows the log dispatcher in development.
	var dispatcher authcore.MailDispatcher = mail.NewLogDispatcher(logger)
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := mail.NewKafkaDispatcher(mail.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.MailTopic,
			Source:  "authcore",
		}, logger)
		if err != nil {
			return fail(err)
		}
		app.closers = append(app.closers, producer.Close)
		dispatcher = mail.NewBreakerDispatcher(producer, mail.DefaultBreakerConfig("mail-kafka"), logger)
		logger.Info("kafka mail dispatcher initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}
	builder = builder.WithMailer(dispatcher)

	if cfg.AuditEnabled {
		builder = builder.WithAuditSink(authcore.NewSlogSink(logger))
	}

	engine, err := builder.Build()
	if err != nil {
		return fail(fmt.Errorf("build engine: %w", err))
	}
	app.engine = engine
	report := engine.SecurityReport()
	for _, warning := range report.Warnings {
		logger.Warn("security posture", slog.String("warning", warning))
	}

	deps := httpapi.Deps{
		Engine:        engine,
		FrontendURL:   cfg.FrontendURL,
		SecureCookies: cfg.Environment != "development",
		Logger:        logger,
	}
	if cfg.GoogleEnabled() {
		provider, err := google.New(google.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL(),
		})
		if err != nil {
			return fail(err)
		}
		deps.Google = provider
	}
	if cfg.MetricsEnabled {
		deps.Metrics = prometheusexport.NewPrometheusExporter(engine).Handler()
	}

	app.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           httpapi.NewRouter(deps),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return app, nil
}

// Run serves HTTP until ctx is canceled, then shuts down.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown drains HTTP first, then flushes audit events, then closes
// backends in reverse order of opening.
func (a *App) Shutdown() error {
	var errs []error

	httpCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.engine.Close()
	if err := a.closeAll(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
