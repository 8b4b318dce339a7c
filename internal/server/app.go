// Package server assembles and runs the gophusers server: storage, identity
// verification, session issuing and the HTTP and gRPC APIs, with graceful
// shutdown on SIGINT/SIGTERM/SIGQUIT.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/gophusers/internal/logging"
	"github.com/dmitrijs2005/gophusers/internal/server/auth"
	"github.com/dmitrijs2005/gophusers/internal/server/avatars"
	"github.com/dmitrijs2005/gophusers/internal/server/config"
	"github.com/dmitrijs2005/gophusers/internal/server/httpapi"
	"github.com/dmitrijs2005/gophusers/internal/server/identity"
	"github.com/dmitrijs2005/gophusers/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophusers/internal/server/services"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/gophusers/internal/server/grpc"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	repos    repomanager.RepositoryManager
	redis    *redis.Client
	sessions *services.SessionService
	users    *services.UserService
	avatars  *avatars.Presigner
	stopKeys context.CancelFunc
}

// openRepositories is a seam for tests.
var openRepositories = repomanager.Open

func NewApp(ctx context.Context, c *config.Config, out io.Writer) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.NewJSON(out, c.LogLevel)

	repos, err := openRepositories(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := repos.RunMigrations(ctx); err != nil {
		_ = repos.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}
	if c.DatabaseDSN == "" {
		logger.Warn(ctx, "no database configured, users are kept in memory")
	}

	keysCtx, stopKeys := context.WithCancel(context.WithoutCancel(ctx))
	keys, err := keySource(keysCtx, c, logger)
	if err != nil {
		stopKeys()
		_ = repos.Close()
		return nil, err
	}
	verifier, err := identity.NewVerifier(keys, identity.VerifierConfig{
		Provider: "google",
		Issuers:  c.AssertionIssuers,
		Audience: c.GoogleClientID,
		Leeway:   30 * time.Second,
	})
	if err != nil {
		stopKeys()
		_ = repos.Close()
		return nil, err
	}

	issuer, err := auth.NewTokenIssuer([]byte(c.SecretKey), c.TokenTTL, c.TokenIssuer, c.TokenAudience)
	if err != nil {
		stopKeys()
		_ = repos.Close()
		return nil, err
	}

	app := &App{config: c, logger: logger, repos: repos, stopKeys: stopKeys}

	var guard identity.ReplayGuard
	if c.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		guard = identity.NewRedisReplayGuard(app.redis, "gophusers:assertion:")
	} else {
		guard = identity.NewMemoryReplayGuard()
	}

	presigner, err := avatars.New(ctx, avatars.Config{
		Region:        c.S3Region,
		AccessKey:     c.S3AccessKey,
		SecretKey:     c.S3SecretKey,
		Bucket:        c.S3Bucket,
		BaseEndpoint:  c.S3BaseEndpoint,
		PublicBaseURL: c.S3PublicURL,
	})
	if err != nil {
		app.close()
		return nil, err
	}

	app.avatars = presigner
	app.sessions = services.NewSessionService(verifier, guard, issuer, repos.Users(), logger)
	app.users = services.NewUserService(repos.Users(), logger)
	return app, nil
}

func keySource(ctx context.Context, c *config.Config, logger logging.Logger) (identity.KeySource, error) {
	if c.KeysFile != "" {
		keys, err := identity.LoadStaticKeys(c.KeysFile)
		if err != nil {
			return nil, fmt.Errorf("assertion keys: %w", err)
		}
		return keys, nil
	}
	jwks, err := identity.NewJWKS(ctx, c.JWKSURL, identity.JWKSConfig{
		Client: &http.Client{Timeout: 10 * time.Second},
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("assertion keys: %w", err)
	}
	return jwks, nil
}

// Handler returns the HTTP API handler.
func (app *App) Handler() http.Handler {
	return httpapi.NewHandler(httpapi.Deps{
		Name:        "User Management API",
		Sessions:    app.sessions,
		Users:       app.users,
		Avatars:     app.avatars,
		CORSOrigins: app.config.CORSOrigins,
		Logger:      app.logger,
	})
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) run(ctx context.Context, cancelFunc context.CancelFunc, name string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		app.logger.Error(ctx, name+" server failed", "error", err)
		cancelFunc()
	}
}

// Run serves HTTP and gRPC until ctx is cancelled or a signal arrives.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	httpServer := httpapi.NewServer(app.config.HTTPAddr, app.Handler(), app.logger)
	grpcServer := gs.NewGRPCServer(app.config.GRPCAddr, app.logger, app.sessions, app.users)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.run(ctx, cancelFunc, "http", httpServer.Run)
	}()
	go func() {
		defer wg.Done()
		app.run(ctx, cancelFunc, "grpc", grpcServer.Run)
	}()

	wg.Wait()
	app.close()
	app.logger.Info(context.Background(), "App stopped")
}

func (app *App) close() {
	if app.stopKeys != nil {
		app.stopKeys()
	}
	if app.redis != nil {
		_ = app.redis.Close()
	}
	if err := app.repos.Close(); err != nil {
		app.logger.Error(context.Background(), "closing repositories", "error", err)
	}
}
