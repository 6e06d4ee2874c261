package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/Tyrowin/wanderchat/internal/auth"
	"github.com/Tyrowin/wanderchat/internal/server"
	"github.com/Tyrowin/wanderchat/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "wanderchat: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	config, err := server.LoadConfig("")
	if err != nil {
		return err
	}

	log, err := server.NewLogger(config.Log.Level, config.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting WanderChat server", zap.String("env", config.Env))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions, closeSessions, err := openSessionStore(ctx, config, log)
	if err != nil {
		return err
	}
	defer closeSessions()

	users, closeUsers, err := openUserStore(ctx, config, log)
	if err != nil {
		return err
	}
	defer closeUsers()

	if config.ShouldSeedUsers() {
		if err := auth.SeedUsers(ctx, users, auth.DefaultDevAccounts, log); err != nil {
			return err
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app := server.NewApp(config, server.Deps{
		Users:    users,
		Sessions: sessions,
		Logger:   log,
		Registry: registry,
	})
	httpServer := server.CreateServer(config.Port, server.SetupRoutes(app))

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.StartServer(httpServer, log) }()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	if err := server.ShutdownServer(httpServer, shutdownTimeout, log); err != nil {
		log.Warn("http shutdown incomplete", zap.Error(err))
	}
	if err := app.Shutdown(shutdownTimeout); err != nil {
		log.Warn("websocket shutdown incomplete", zap.Error(err))
	}
	return nil
}

func openSessionStore(ctx context.Context, config *server.Config, log *zap.Logger) (store.SessionStore, func(), error) {
	if config.Redis.Addr != "" {
		sessions, err := store.NewRedisSessionStore(ctx, store.RedisConfig{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		if err != nil {
			return nil, nil, errors.Wrap(err, "open redis session store")
		}
		log.Info("using redis session store", zap.String("addr", config.Redis.Addr))
		return sessions, func() { _ = sessions.Close() }, nil
	}

	sessions := store.NewMemorySessionStore()
	go sessions.RunSweeper(ctx, time.Minute)
	log.Info("using in-memory session store")
	return sessions, func() {}, nil
}

func openUserStore(ctx context.Context, config *server.Config, log *zap.Logger) (store.UserStore, func(), error) {
	if config.DatabaseURL != "" {
		users, err := store.NewPostgresUserStore(ctx, config.DatabaseURL)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open postgres user store")
		}
		log.Info("using postgres user store")
		return users, users.Close, nil
	}

	log.Info("using in-memory user store")
	return store.NewMemoryUserStore(), func() {}, nil
}
