// Package server wires configuration, storage, mail and the account services
// together and runs the HTTP API and the gRPC health endpoint until shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/avatars"
	"github.com/dmitrijs2005/gophauth/internal/server/cache"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/httpapi"
	"github.com/dmitrijs2005/gophauth/internal/server/mail"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/gophauth/internal/server/grpc"
)

// MemoryDSN selects process-local storage instead of PostgreSQL.
const MemoryDSN = "memory"

const defaultSecretKey = "secretKey"

var ErrDefaultSecretInProduction = errors.New("refusing to start in production with the default JWT secret")

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	redis   *redis.Client
	handler *gin.Engine
}

// OpenStore returns the repository manager for the configured DSN. The
// returned *sql.DB is nil in memory mode.
func OpenStore(ctx context.Context, dsn string) (*sql.DB, repomanager.RepositoryManager, error) {
	if dsn == MemoryDSN {
		return nil, repomanager.NewInMemoryRepositoryManager(), nil
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, err
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	return db, rm, nil
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if c.IsProduction() && c.SecretKey == defaultSecretKey {
		return nil, ErrDefaultSecretInProduction
	}

	logger := logging.New(c.Env, os.Stdout)
	app := &App{config: c, logger: logger}

	db, rm, err := OpenStore(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app.db = db

	var uc cache.UserCache = cache.Nop{}
	if c.RedisAddr != "" {
		rdb, err := cache.Connect(ctx, c.RedisAddr, c.RedisPassword, c.RedisDB)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("redis init error: %w", err)
		}
		app.redis = rdb
		uc = cache.NewRedisUserCache(rdb, c.UserCacheTTL)
	}

	var store services.AvatarStore
	if c.S3Bucket != "" {
		s, err := avatars.NewStore(ctx, avatars.Config{
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			BaseEndpoint: c.S3BaseEndpoint,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("avatar store init error: %w", err)
		}
		store = s
	}

	mailer, err := mail.New(mail.SMTPConfig{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		Username: c.SMTPUser,
		Password: c.SMTPPassword,
		From:     c.SMTPFrom,
		AppName:  c.AppName,
		UseSSL:   c.SMTPSSL,
	})
	if err != nil {
		app.Close()
		return nil, err
	}

	if c.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	accounts := services.NewAccountService(db, rm, mailer, uc, logger.With("module", "accounts"), c)
	users := services.NewUserService(db, rm, mailer, uc, store, logger.With("module", "users"), c)

	app.handler = httpapi.NewRouter(httpapi.Deps{
		Accounts: accounts,
		Users:    users,
		Minter:   auth.NewMinter([]byte(c.SecretKey), c.AccessTokenValidityDuration),
		Logger:   logger,
		Config:   c,
	})

	logger.Info(ctx, "app initialized",
		"env", c.Env,
		"memory_store", db == nil,
		"user_cache", app.redis != nil,
		"avatar_uploads", store != nil,
	)
	return app, nil
}

// Close releases the database and cache connections.
func (app *App) Close() {
	if app.redis != nil {
		_ = app.redis.Close()
	}
	if app.db != nil {
		_ = app.db.Close()
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	var db gs.Pinger
	if app.db != nil {
		db = app.db
	}

	s := gs.NewHealthServer(app.config.EndpointAddrGRPC, app.logger, db)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewServer(app.config.EndpointAddrHTTP, app.handler, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until ctx is cancelled, a signal arrives or a server fails.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()
	app.Close()

	app.logger.Info(ctx, "App stopped")
}
