package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/nkiryanov/tokenpair/internal/db"
	"github.com/nkiryanov/tokenpair/internal/handlers"
	"github.com/nkiryanov/tokenpair/internal/logger"
	"github.com/nkiryanov/tokenpair/internal/repository"
	"github.com/nkiryanov/tokenpair/internal/repository/postgres"
	"github.com/nkiryanov/tokenpair/internal/repository/redis"
	"github.com/nkiryanov/tokenpair/internal/service/auth"
	"github.com/nkiryanov/tokenpair/internal/service/auth/hasher"
	"github.com/nkiryanov/tokenpair/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/tokenpair/internal/service/janitor"
	"github.com/nkiryanov/tokenpair/internal/service/user"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger  logger.Logger
	janitor *janitor.Janitor

	// Closed in reverse order when server stopped
	closers []func()
}

// Connect to storage and wire all the services
// Resources already opened are released if something fails
func NewServerApp(ctx context.Context, c *Config) (_ *ServerApp, err error) {
	app := &ServerApp{ListenAddr: c.ListenAddr}
	defer func() {
		if err != nil {
			app.close()
		}
	}()

	// Initialize logger
	app.logger, err = logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}
	app.closers = append(app.closers, pool.Close)

	storage, err := app.newStorage(ctx, c, pool)
	if err != nil {
		return nil, err
	}

	// Initialize services
	passwordHasher, err := hasher.New(c.PasswordHasher, hasher.DefaultMinLength)
	if err != nil {
		return nil, fmt.Errorf("error while creating password hasher. Err: %w", err)
	}

	tokenManager, err := tokenmanager.New(tokenmanager.Config{
		AccessSecret:  c.AccessSecret,
		RefreshSecret: c.RefreshSecret,
		AccessTTL:     c.AccessTTL,
		RefreshTTL:    c.RefreshTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	authService, err := auth.NewService(auth.Config{
		Hasher:              passwordHasher,
		ConcealUserNotFound: c.ConcealUserNotFound,
		Logger:              app.logger,
	}, tokenManager, storage)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}
	userService := user.NewService(storage.User())

	app.janitor = janitor.New(c.JanitorInterval, storage.Token(), app.logger)
	app.Handler = handlers.NewRouter(authService, userService, app.logger)

	return app, nil
}

// Users always live in postgres, token pairs in the configured store
func (s *ServerApp) newStorage(ctx context.Context, c *Config, pool *pgxpool.Pool) (repository.Storage, error) {
	mode := repository.ReplaceMode(c.ReplaceMode)
	storage := postgres.NewStorage(pool, postgres.WithReplaceMode(mode))

	if c.TokenStore != TokenStoreRedis {
		return storage, nil
	}

	client := goredis.NewClient(&goredis.Options{Addr: c.RedisAddr})
	s.closers = append(s.closers, func() { _ = client.Close() })

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("error while connecting to redis. Err: %w", err)
	}

	return repository.WithTokenRepo(storage, redis.NewTokenPairRepo(client, mode)), nil
}

func (s *ServerApp) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.close()

	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	janitorStopped := s.janitor.Run(srvCtx)

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-janitorStopped

	return err
}
