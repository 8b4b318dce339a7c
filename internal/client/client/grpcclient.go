package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophusers/internal/client/session"
	"github.com/dmitrijs2005/gophusers/internal/common"
	"github.com/dmitrijs2005/gophusers/internal/models"
	pb "github.com/dmitrijs2005/gophusers/internal/proto"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// GRPCClient implements Client over gophusers.v1.UserService.
type GRPCClient struct {
	conn     *grpc.ClientConn
	pipeline *session.Pipeline
	timeout  time.Duration
}

// NewGRPCClient connects to target. Extra dial options are appended to the
// defaults (insecure credentials, tracing stats handler, pipeline
// interceptor).
func NewGRPCClient(target string, timeout time.Duration, pipeline *session.Pipeline, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{pipeline: pipeline, timeout: timeout}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithUnaryInterceptor(c.pipelineInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

func withAuthorization(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(pb.AuthorizationMetadataKey, common.BearerPrefix+token)
	return metadata.NewOutgoingContext(ctx, md)
}

func (c *GRPCClient) pipelineInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	ex := &session.Exchange{Operation: method}
	c.pipeline.BeforeSend(ctx, ex)

	if ex.Token != "" {
		ctx = withAuthorization(ctx, ex.Token)
	}

	err := invoker(ctx, method, req, reply, cc, opts...)

	ex.Outcome, ex.Err = outcomeForError(err), err
	c.pipeline.AfterReceive(ctx, ex)
	return err
}

func outcomeForError(err error) session.Outcome {
	if err == nil {
		return session.OutcomeOK
	}
	switch status.Code(err) {
	case codes.Unauthenticated:
		return session.OutcomeUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return session.OutcomeTransportError
	case codes.InvalidArgument, codes.NotFound, codes.AlreadyExists,
		codes.PermissionDenied, codes.FailedPrecondition, codes.OutOfRange:
		return session.OutcomeRejected
	default:
		return session.OutcomeServerError
	}
}

func (c *GRPCClient) invoke(ctx context.Context, method string, in any, out *structpb.Struct) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return mapError(err)
	}
	return nil
}

func (c *GRPCClient) Exchange(ctx context.Context, assertion string) (session.Grant, error) {
	out := &structpb.Struct{}
	if err := c.invoke(ctx, pb.MethodExchangeAssertion, wrapperspb.String(assertion), out); err != nil {
		return session.Grant{}, err
	}
	var res exchangeResponse
	if err := pb.FromStruct(out, &res); err != nil {
		return session.Grant{}, err
	}
	return res.grant(), nil
}

func (c *GRPCClient) Me(ctx context.Context) (models.User, error) {
	return c.userCall(ctx, pb.MethodGetMe, &emptypb.Empty{})
}

func (c *GRPCClient) UpdateProfile(ctx context.Context, upd models.ProfileUpdate) (models.User, error) {
	in, err := pb.ToStruct(upd)
	if err != nil {
		return models.User{}, err
	}
	return c.userCall(ctx, pb.MethodUpdateProfile, in)
}

func (c *GRPCClient) UpdateAccount(ctx context.Context, upd models.AccountUpdate) (models.User, error) {
	in, err := pb.ToStruct(upd)
	if err != nil {
		return models.User{}, err
	}
	return c.userCall(ctx, pb.MethodUpdateAccount, in)
}

// PresignAvatar is served by the HTTP API only.
func (c *GRPCClient) PresignAvatar(context.Context, string) (AvatarUpload, error) {
	return AvatarUpload{}, fmt.Errorf("avatar upload over gRPC: %w", errors.ErrUnsupported)
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func (c *GRPCClient) userCall(ctx context.Context, method string, in any) (models.User, error) {
	out := &structpb.Struct{}
	if err := c.invoke(ctx, method, in, out); err != nil {
		return models.User{}, err
	}
	var u models.User
	if err := pb.FromStruct(out, &u); err != nil {
		return models.User{}, err
	}
	return u, nil
}

// mapError converts a gRPC status into the package's sentinel errors.
// InvalidArgument statuses carrying BadRequest details become
// common.FieldErrors.
func mapError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch st.Code() {
	case codes.Unauthenticated:
		return &APIError{Status: 401, Detail: st.Message(), Err: ErrUnauthorized}
	case codes.InvalidArgument:
		for _, d := range st.Details() {
			br, ok := d.(*errdetails.BadRequest)
			if !ok || len(br.GetFieldViolations()) == 0 {
				continue
			}
			fe := make(common.FieldErrors, 0, len(br.GetFieldViolations()))
			for _, v := range br.GetFieldViolations() {
				fe = append(fe, common.FieldError{Field: v.GetField(), Message: v.GetDescription()})
			}
			return fe
		}
		return &APIError{Status: 400, Detail: st.Message(), Err: ErrBadRequest}
	case codes.NotFound:
		return &APIError{Status: 404, Detail: st.Message(), Err: ErrNotFound}
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return fmt.Errorf("%w: %s", ErrUnavailable, st.Message())
	default:
		return &APIError{Status: 500, Detail: st.Message(), Err: ErrServer}
	}
}
