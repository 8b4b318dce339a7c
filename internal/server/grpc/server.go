// Package grpc serves gophusers.v1.UserService over gRPC. It shares services
// with the HTTP API and applies the same token rules through a unary
// interceptor.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/gophusers/internal/logging"
	"github.com/dmitrijs2005/gophusers/internal/models"
	pb "github.com/dmitrijs2005/gophusers/internal/proto"
	"github.com/dmitrijs2005/gophusers/internal/server/services"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Sessions exchanges assertions and authenticates session tokens.
type Sessions interface {
	Exchange(ctx context.Context, assertion string) (*services.Session, error)
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// Users reads and mutates the authenticated user.
type Users interface {
	Me(ctx context.Context, userID string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID string, upd models.ProfileUpdate) (*models.User, error)
	UpdateAccount(ctx context.Context, userID string, upd models.AccountUpdate) (*models.User, error)
}

type GRPCServer struct {
	address  string
	sessions Sessions
	users    Users
	logger   logging.Logger
}

func NewGRPCServer(address string, l logging.Logger, sessions Sessions, users Users) *GRPCServer {
	return &GRPCServer{
		address:  address,
		logger:   l.With("module", "grpc_server"),
		sessions: sessions,
		users:    users,
	}
}

// newServer builds a grpc.Server with the service, health checks, reflection,
// interceptors and tracing stats handler registered.
func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor),
	)

	pb.RegisterUserServiceServer(srv, s)

	hs := health.NewServer()
	hs.SetServingStatus(pb.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(context.Background(), "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	return srv.Serve(listen)
}
