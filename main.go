package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"ziksir-notes/auth"
	"ziksir-notes/config"
	"ziksir-notes/db"
	"ziksir-notes/logger"
	"ziksir-notes/metrics"
)

var version = "dev"

func main() {
	envFile := pflag.String("env-file", ".env", "env file to load before reading the environment")
	addr := pflag.String("addr", "", "listen address, overrides PORT")
	pflag.Parse()

	cfg, loaded, err := config.Load(*envFile)
	log := logger.New("ziksir-notes", cfg.LogLevel, os.Stdout)
	if !loaded {
		log.WithField("env_file", *envFile).Info("env file not loaded, using process environment")
	}
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	if *addr != "" {
		cfg.Port = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	st, sqlDB, err := db.Connect(connectCtx, cfg, log)
	cancel()
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer st.Close(context.Background())
	log.WithField("driver", cfg.DBDriver).Info("database ready")

	limiter, closeLimiter := newLimiter(ctx, cfg, log)
	defer closeLimiter()

	m := metrics.New("ziksir_notes")
	if sqlDB != nil {
		go recordPoolStats(ctx, sqlDB, m)
	}

	router, err := newRouter(deps{cfg: cfg, store: st, limiter: limiter, metrics: m, log: log})
	if err != nil {
		log.WithError(err).Fatal("failed to build router")
	}

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("server shutdown error")
		}
	}()

	log.WithFields(logrus.Fields{"addr": srv.Addr, "version": version}).Info("server starting")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server error")
	}
	log.Info("server stopped")
}

// newLimiter returns the Redis login limiter when REDIS_URL is set. An
// unreachable Redis is only logged; the limiter lets logins through while
// it is down.
func newLimiter(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (auth.LoginLimiter, func()) {
	if cfg.RedisURL == "" {
		log.Info("REDIS_URL not set, login throttling disabled")
		return auth.NoopLimiter{}, func() {}
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.WithError(err).Fatal("invalid REDIS_URL")
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.WithError(err).Warn("redis not reachable, login throttling degraded")
	}

	return auth.NewRedisLimiter(client, cfg.LoginMaxAttempts, cfg.LoginLockout), func() { client.Close() }
}

func recordPoolStats(ctx context.Context, sqlDB *sql.DB, m *metrics.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	m.RecordDBPoolStats(sqlDB.Stats())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RecordDBPoolStats(sqlDB.Stats())
		}
	}
}
