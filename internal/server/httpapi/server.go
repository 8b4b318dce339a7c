package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophusers/internal/logging"
	"github.com/dmitrijs2005/gophusers/internal/server/avatars"
)

// Deps wires the handler to its services.
type Deps struct {
	Name        string
	Sessions    Sessions
	Users       Users
	Avatars     Avatars
	CORSOrigins []string
	Logger      logging.Logger
}

// NewHandler builds the routed, middleware-wrapped HTTP handler.
func NewHandler(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = logging.Nop{}
	}
	if d.Avatars == nil {
		d.Avatars = (*avatars.Presigner)(nil)
	}
	if d.Name == "" {
		d.Name = "gophusers"
	}
	h := &handler{
		name:     d.Name,
		sessions: d.Sessions,
		users:    d.Users,
		avatars:  d.Avatars,
		logger:   d.Logger.With("module", "http"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.root)
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("POST /auth/external", h.exchange)
	mux.HandleFunc("GET /users/me", h.requireUser(h.me))
	mux.HandleFunc("PUT /users/me", h.requireUser(h.updateAccount))
	mux.HandleFunc("GET /users/me/profile", h.requireUser(h.profile))
	mux.HandleFunc("PUT /users/me/profile", h.requireUser(h.updateProfile))
	mux.HandleFunc("POST /users/me/avatar", h.requireUser(h.avatar))

	var root http.Handler = mux
	root = cors(d.CORSOrigins, root)
	root = recoverer(h.logger, root)
	root = accessLog(h.logger, root)
	return root
}

// Server runs the HTTP API until its context is cancelled.
type Server struct {
	address string
	handler http.Handler
	logger  logging.Logger
}

func NewServer(address string, handler http.Handler, logger logging.Logger) *Server {
	return &Server{address: address, handler: handler, logger: logger.With("module", "http_server")}
}

func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(context.Background(), "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
