package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"emailthing/contracts/mq"
	"emailthing/internal/access"
	"emailthing/internal/api"
	"emailthing/internal/config"
	"emailthing/internal/maillist"
	"emailthing/internal/migrations"
	"emailthing/internal/mqhandler"
	"emailthing/internal/repository"
	"emailthing/pkg/db"
	"emailthing/pkg/logger"
	pkgmq "emailthing/pkg/mq"
	"emailthing/pkg/otel"
	redisclient "emailthing/pkg/redis"
)

type store interface {
	maillist.Store
	access.RoleSource
	api.Pinger
}

// readiness fails when the store is unreachable or the access consumer lost its connection.
type readiness struct {
	db       api.Pinger
	consumer *pkgmq.Consumer
}

func (r readiness) Ping(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return err
	}
	if r.consumer != nil && !r.consumer.IsConnected() {
		return errors.New("access consumer disconnected")
	}
	return nil
}

func main() {
	cfg := config.Load()

	log := logger.NewLogger(cfg.Env)
	defer log.Sync()

	log.Info("Starting emailthing api...",
		zap.String("env", cfg.Env),
		zap.String("port", cfg.Server.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	shutdownTracing, err := otel.Init(cfg.Otel, log)
	if err != nil {
		log.Fatal("Failed to init tracing", zap.Error(err))
	}
	defer shutdownTracing()

	// Storage
	var st store
	if cfg.SQLitePath != "" {
		s, err := repository.NewSQLiteStore(ctx, cfg.SQLitePath, log)
		if err != nil {
			log.Fatal("Failed to open SQLite store", zap.Error(err))
		}
		defer s.Close()
		st = s
	} else {
		pool, err := db.NewConnection(ctx, cfg.DB, log)
		if err != nil {
			log.Fatal("DB initialization failed", zap.Error(err))
		}
		defer pool.Close()

		if cfg.AutoMigrate {
			sqlDB := db.OpenSQL(pool)
			if err := migrations.Up(ctx, sqlDB, migrations.Postgres, log); err != nil {
				log.Fatal("Migrations failed", zap.Error(err))
			}
			_ = sqlDB.Close()
		}
		st = repository.NewPostgresStore(pool)
	}

	// Access control, cached in Redis when configured
	var roles access.RoleSource = st
	var consumer *pkgmq.Consumer
	if cfg.Redis.Addr != "" {
		rdb := redisclient.NewRedisClient(cfg.Redis)
		defer rdb.Close()
		if err := redisclient.Ping(ctx, rdb); err != nil {
			log.Warn("Redis not reachable, access cache will fall through", zap.Error(err))
		}
		cached := access.NewCachedRoleSource(st, rdb, cfg.Cache.AccessTTL, log)
		roles = cached

		if cfg.MQ.Enabled {
			consumer, err = pkgmq.NewConsumer(cfg.MQ.URL, cfg.MQ.AccessQueue, mq.RoutingKeyMailboxAccessChanged, log)
			if err != nil {
				log.Fatal("Failed to init consumer", zap.Error(err))
			}
			defer consumer.Close()
			consumer.SetHandler(mqhandler.NewMailboxAccessChangedHandler(cached, log).Handle)
		}
	}

	if consumer != nil {
		go func() {
			log.Info("Starting mailbox.access_changed consumer...")
			if err := consumer.StartConsuming(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Access consumer stopped", zap.Error(err))
			}
		}()
	}

	// HTTP
	svc := maillist.NewService(st, cfg.List, log)
	router := api.NewRouter(
		api.NewEmailListHandler(svc, log),
		access.NewChecker(roles),
		readiness{db: st, consumer: consumer},
		cfg.JWT.Secret,
		log,
	)
	srv := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: router.Engine,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down emailthing api gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("emailthing api shutdown complete")
}
