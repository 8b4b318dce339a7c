package grpc

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophusers/internal/common"
	"github.com/dmitrijs2005/gophusers/internal/logging"
	"github.com/dmitrijs2005/gophusers/internal/models"
	pb "github.com/dmitrijs2005/gophusers/internal/proto"
	"github.com/dmitrijs2005/gophusers/internal/server/auth"
	"github.com/dmitrijs2005/gophusers/internal/server/repositories/users"
	"github.com/dmitrijs2005/gophusers/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	reflectionpb "google.golang.org/grpc/reflection/grpc_reflection_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	gproto "google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// stubSessions issues real tokens for a fixed user without verifying the
// assertion.
type stubSessions struct {
	issuer *auth.TokenIssuer
	repo   *users.MemoryRepository
	err    error
}

func (s *stubSessions) Exchange(ctx context.Context, assertion string) (*services.Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	u, err := s.repo.Create(ctx, &models.User{Provider: "google", Subject: assertion, Email: assertion + "@example.com"})
	if err != nil {
		return nil, err
	}
	tok, exp, err := s.issuer.Issue(u.ID)
	if err != nil {
		return nil, err
	}
	return &services.Session{Token: tok, ExpiresAt: exp, User: u}, nil
}

func (s *stubSessions) Authenticate(ctx context.Context, token string) (*models.User, error) {
	id, err := s.issuer.Validate(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorUnauthorized, err)
	}
	return s.repo.GetByID(ctx, id)
}

type fixture struct {
	conn     *grpc.ClientConn
	sessions *stubSessions
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	issuer, err := auth.NewTokenIssuer([]byte("secret"), time.Hour, "gophusers", "gophusers-api")
	require.NoError(t, err)
	repo := users.NewMemoryRepository()
	sessions := &stubSessions{issuer: issuer, repo: repo}

	s := NewGRPCServer("bufnet", logging.Nop{}, sessions, services.NewUserService(repo, logging.Nop{}))

	lis := bufconn.Listen(1 << 20)
	srv := s.newServer()
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &fixture{conn: conn, sessions: sessions}
}

func withToken(token string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), pb.AuthorizationMetadataKey, "Bearer "+token)
}

func (f *fixture) login(t *testing.T, subject string) ExchangeResult {
	t.Helper()
	out := &structpb.Struct{}
	require.NoError(t, f.conn.Invoke(context.Background(), pb.MethodExchangeAssertion, wrapperspb.String(subject), out))
	var res ExchangeResult
	require.NoError(t, pb.FromStruct(out, &res))
	return res
}

func TestExchangeAndGetMe(t *testing.T) {
	f := newFixture(t)
	res := f.login(t, "alice")

	assert.Equal(t, "bearer", res.TokenType)
	require.NotNil(t, res.User)
	assert.Equal(t, "alice@example.com", res.User.Email)
	_, err := time.Parse(time.RFC3339, res.ExpiresAt)
	require.NoError(t, err)

	out := &structpb.Struct{}
	require.NoError(t, f.conn.Invoke(withToken(res.Token), pb.MethodGetMe, &emptypb.Empty{}, out))
	var me models.User
	require.NoError(t, pb.FromStruct(out, &me))
	assert.Equal(t, res.User.ID, me.ID)
	assert.NotEmpty(t, me.Profile.ID)
}

func TestUnauthenticated(t *testing.T) {
	f := newFixture(t)

	for name, ctx := range map[string]context.Context{
		"missing":  context.Background(),
		"garbage":  withToken("garbage"),
		"noScheme": metadata.AppendToOutgoingContext(context.Background(), pb.AuthorizationMetadataKey, "token"),
	} {
		t.Run(name, func(t *testing.T) {
			err := f.conn.Invoke(ctx, pb.MethodGetMe, &emptypb.Empty{}, &structpb.Struct{})
			require.Error(t, err)
			st := status.Convert(err)
			assert.Equal(t, codes.Unauthenticated, st.Code())
			assert.Equal(t, "Could not validate credentials", st.Message())
		})
	}
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	res := f.login(t, "alice")

	req, err := pb.ToStruct(map[string]string{"bio": "hello"})
	require.NoError(t, err)
	out := &structpb.Struct{}
	require.NoError(t, f.conn.Invoke(withToken(res.Token), pb.MethodUpdateProfile, req, out))

	var u models.User
	require.NoError(t, pb.FromStruct(out, &u))
	assert.Equal(t, "hello", u.Profile.Bio)
}

func TestUpdateProfile_ValidationDetails(t *testing.T) {
	f := newFixture(t)
	res := f.login(t, "alice")

	req, err := pb.ToStruct(map[string]string{"bio": "<b>hi</b>"})
	require.NoError(t, err)
	err = f.conn.Invoke(withToken(res.Token), pb.MethodUpdateProfile, req, &structpb.Struct{})
	require.Error(t, err)

	st := status.Convert(err)
	assert.Equal(t, codes.InvalidArgument, st.Code())
	require.Len(t, st.Details(), 1)
	br, ok := st.Details()[0].(*errdetails.BadRequest)
	require.True(t, ok)
	assert.Equal(t, "bio", br.GetFieldViolations()[0].GetField())
}

func TestUpdateAccount(t *testing.T) {
	f := newFixture(t)
	res := f.login(t, "alice")

	req, err := pb.ToStruct(map[string]string{"name": "Alice"})
	require.NoError(t, err)
	out := &structpb.Struct{}
	require.NoError(t, f.conn.Invoke(withToken(res.Token), pb.MethodUpdateAccount, req, out))
	assert.Equal(t, "Alice", out.Fields["name"].GetStringValue())
}

func TestExchange_Errors(t *testing.T) {
	f := newFixture(t)

	err := f.conn.Invoke(context.Background(), pb.MethodExchangeAssertion, wrapperspb.String(""), &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	f.sessions.err = fmt.Errorf("%w: bad", common.ErrInvalidAssertion)
	err = f.conn.Invoke(context.Background(), pb.MethodExchangeAssertion, wrapperspb.String("x"), &structpb.Struct{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	f.sessions.err = fmt.Errorf("%w: down", common.ErrProvisioning)
	err = f.conn.Invoke(context.Background(), pb.MethodExchangeAssertion, wrapperspb.String("x"), &structpb.Struct{})
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	resp, err := healthpb.NewHealthClient(f.conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: pb.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestReflection_DescribesUserService(t *testing.T) {
	f := newFixture(t)

	stream, err := reflectionpb.NewServerReflectionClient(f.conn).ServerReflectionInfo(context.Background())
	require.NoError(t, err)
	require.NoError(t, stream.Send(&reflectionpb.ServerReflectionRequest{
		MessageRequest: &reflectionpb.ServerReflectionRequest_FileContainingSymbol{FileContainingSymbol: pb.ServiceName},
	}))
	resp, err := stream.Recv()
	require.NoError(t, err)
	require.NoError(t, stream.CloseSend())

	files := resp.GetFileDescriptorResponse().GetFileDescriptorProto()
	require.NotEmpty(t, files)
	fd := &descriptorpb.FileDescriptorProto{}
	require.NoError(t, gproto.Unmarshal(files[0], fd))
	assert.Equal(t, "gophusers.v1", fd.GetPackage())
	require.Len(t, fd.GetService(), 1)

	got := map[string]string{}
	for _, m := range fd.GetService()[0].GetMethod() {
		got[m.GetName()] = m.GetInputType() + " -> " + m.GetOutputType()
	}
	assert.Equal(t, map[string]string{
		"ExchangeAssertion": ".google.protobuf.StringValue -> .google.protobuf.Struct",
		"GetMe":             ".google.protobuf.Empty -> .google.protobuf.Struct",
		"UpdateProfile":     ".google.protobuf.Struct -> .google.protobuf.Struct",
		"UpdateAccount":     ".google.protobuf.Struct -> .google.protobuf.Struct",
	}, got)
}

func TestMapError(t *testing.T) {
	assert.Equal(t, codes.NotFound, status.Code(mapError(common.ErrorNotFound)))
	assert.Equal(t, codes.Internal, status.Code(mapError(fmt.Errorf("boom"))))
	assert.Equal(t, codes.Unauthenticated, status.Code(mapError(common.ErrorUnauthorized)))
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	s := NewGRPCServer("127.0.0.1:0", logging.Nop{}, &stubSessions{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	s := NewGRPCServer("127.0.0.1:99999", logging.Nop{}, &stubSessions{}, nil)
	assert.Error(t, s.Run(context.Background()))
}
