package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/gophusers/internal/client/client"
	"github.com/dmitrijs2005/gophusers/internal/client/config"
	"github.com/dmitrijs2005/gophusers/internal/client/services"
	"github.com/dmitrijs2005/gophusers/internal/client/session"
	"github.com/dmitrijs2005/gophusers/internal/filex"
	"github.com/dmitrijs2005/gophusers/internal/logging"
)

// Open builds an App from cfg: the local session database, the API client
// for the configured transport and the session reconciler. The persisted
// session is restored before Open returns. The returned func releases the
// client and the database.
func Open(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) (*App, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	logger := logging.NewJSON(os.Stderr, cfg.LogLevel)

	if err := filex.EnsureParentDir(cfg.StorePath); err != nil {
		return nil, nil, err
	}
	db, err := client.InitDatabase(ctx, cfg.StorePath)
	if err != nil {
		return nil, nil, fmt.Errorf("error initializing database: %w", err)
	}

	store := session.NewStore(db)
	pipeline := session.NewPipeline()

	api, err := newClient(cfg, pipeline)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	rec := session.NewReconciler(store, api, logger)
	pipeline.Use(session.NewAuthenticator(store), rec)

	status, err := rec.Restore(ctx)
	if err != nil {
		logger.Warn(ctx, "restore session", "error", err)
	}
	logger.Info(ctx, "session restored", "status", status.String())

	closeFn := func() {
		_ = api.Close()
		_ = db.Close()
	}

	profiles := services.NewProfileService(api, store, logger)
	return NewApp(rec, store, profiles, in, out, logger), closeFn, nil
}

func newClient(cfg *config.Config, pipeline *session.Pipeline) (client.Client, error) {
	switch cfg.Transport {
	case config.TransportHTTP:
		return client.NewHTTPClient(cfg.ServerURL, cfg.Timeout, pipeline), nil
	case config.TransportGRPC:
		return client.NewGRPCClient(cfg.GRPCAddr, cfg.Timeout, pipeline)
	default:
		return nil, errors.New("unknown transport " + cfg.Transport)
	}
}
