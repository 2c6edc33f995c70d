package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ramppy/authkit"
	"github.com/ramppy/authkit/internal/config"
	"github.com/ramppy/authkit/internal/httpapi"
	"github.com/ramppy/authkit/internal/logging"
	"github.com/ramppy/authkit/metrics/export/prometheus"
	"github.com/ramppy/authkit/record"
	"github.com/ramppy/authkit/record/memory"
	"github.com/ramppy/authkit/record/mongo"
	"github.com/ramppy/authkit/record/postgres"
	"github.com/ramppy/authkit/record/sqlite"
	"github.com/ramppy/authkit/token"
)

func main() {
	if err := run(); err != nil {
		slog.Error("authd failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".env", os.Args[1:])
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	records, closeStore, err := openStore(ctx, cfg)
	cancel()
	if err != nil {
		return err
	}
	defer closeStore()

	engineCfg := authkit.DefaultConfig()
	engineCfg.Session.Lifetime = cfg.SessionLifetime
	if engineCfg.Session.RenewalThreshold >= cfg.SessionLifetime {
		engineCfg.Session.RenewalThreshold = cfg.SessionLifetime / 6
	}

	builder := authkit.New().
		WithConfig(engineCfg).
		WithRecordStore(records).
		WithLogger(logger).
		WithNotifier(logNotifier{logger: logger})

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		builder.WithRedis(rdb)
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	key := []byte(cfg.TokenKey)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return err
		}
		logger.Warn("AUTHKIT_TOKEN_KEY not set; client handles will not survive a restart")
	}
	tokens, err := token.NewManager(token.Config{
		Key:    key,
		TTL:    30 * 24 * time.Hour,
		Issuer: "authd",
	})
	if err != nil {
		return err
	}

	apiCfg := httpapi.Config{
		CookieSecure:   cfg.CookieSecure,
		AllowedOrigins: cfg.AllowedOrigins,
	}
	if cfg.RecaptchaSecret != "" {
		apiCfg.Verifier = httpapi.NewRecaptcha(cfg.RecaptchaSecret, cfg.RecaptchaMinScore)
		logger.Info("recaptcha verification enabled", slog.Float64("min_score", cfg.RecaptchaMinScore))
	}
	api := httpapi.New(engine, tokens, prometheus.NewExporter(engine).Handler(), apiCfg, logger)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      api.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("authd listening", slog.String("addr", cfg.Addr), slog.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config) (record.Store, func(), error) {
	switch cfg.Store {
	case config.StoreSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case config.StorePostgres:
		s, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case config.StoreMongo:
		s, err := mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.Close(ctx)
		}, nil
	default:
		return memory.New(), func() {}, nil
	}
}

// logNotifier stands in for an email transport. It logs that a message was
// due, never the token itself.
type logNotifier struct {
	logger *slog.Logger
}

func (n logNotifier) SendVerification(_ context.Context, email, _ string) error {
	n.logger.Info("verification email queued", slog.String("email", email))
	return nil
}

func (n logNotifier) SendPasswordReset(_ context.Context, email, _ string) error {
	n.logger.Info("password reset email queued", slog.String("email", email))
	return nil
}
