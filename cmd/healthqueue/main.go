package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"healthqueue/internal/config"
	"healthqueue/internal/events"
	"healthqueue/internal/httpapi"
	"healthqueue/internal/logging"
	"healthqueue/internal/session"
	"healthqueue/internal/store"
	"healthqueue/internal/store/memory"
	"healthqueue/internal/store/mongo"
	"healthqueue/internal/store/postgres"
	"healthqueue/internal/telemetry"
	"healthqueue/internal/throttle"
)

const serviceName = "healthqueue"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logging.New(cfg.LogLevel)

	ctx := context.Background()
	shutdownTelemetry := telemetry.Setup(ctx, serviceName, cfg.OTLPEndpoint, log)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.WithError(err).WithField("driver", cfg.StoreDriver).Fatal("open store")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(ctx); err != nil {
			log.WithError(err).Warn("close store")
		}
	}()

	loginThrottle := throttle.Throttle(throttle.NewMemory(throttle.Options{
		MaxAttempts: cfg.LoginMaxAttempts,
		Window:      cfg.LoginLockoutWindow,
	}))
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		loginThrottle = throttle.NewRedis(client, throttle.Options{
			MaxAttempts: cfg.LoginMaxAttempts,
			Window:      cfg.LoginLockoutWindow,
		})
	}

	publisher := events.Publisher(events.Noop{})
	if cfg.NATSURL != "" {
		nc, err := events.ConnectNATS(cfg.NATSURL, cfg.NATSSubjectPrefix)
		if err != nil {
			log.WithError(err).Fatal("connect nats")
		}
		publisher = nc
	}
	defer publisher.Close()

	handler := httpapi.NewHandler(st, httpapi.Options{
		Sessions:    session.NewManager(cfg.SessionSecret, cfg.SessionTTL, !cfg.Development()),
		Throttle:    loginThrottle,
		Events:      publisher,
		Logger:      log,
		WaitMinutes: cfg.WaitMinutesFor,
		RateLimit: httpapi.RateLimitConfig{
			PerMinute: cfg.RateLimitPerMinute,
			Burst:     cfg.RateLimitBurst,
		},
		StaticDir:  cfg.StaticDir,
		TrustProxy: cfg.TrustProxy,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(handler.Routes(), serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{"addr": server.Addr, "driver": cfg.StoreDriver}).Info("healthqueue listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown error")
	}
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := pgxpool.New(connectCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		if err := pool.Ping(connectCtx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("db ping: %w", err)
		}
		return postgres.NewStore(pool), nil
	case config.DriverMongo:
		return mongo.Connect(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return memory.New(), nil
	}
}
