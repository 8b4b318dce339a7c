package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/gophusers/internal/common"
	"github.com/dmitrijs2005/gophusers/internal/models"
	pb "github.com/dmitrijs2005/gophusers/internal/proto"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	detailCredentials = "Could not validate credentials"
	detailAssertion   = "Invalid identity assertion"
)

// ExchangeResult is the ExchangeAssertion response document.
type ExchangeResult struct {
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
	ExpiresAt string       `json:"expires_at"`
	User      *models.User `json:"user"`
}

func (s *GRPCServer) ExchangeAssertion(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "assertion is required")
	}

	sess, err := s.sessions.Exchange(ctx, req.GetValue())
	if err != nil {
		return nil, mapError(err)
	}

	return encode(ExchangeResult{
		Token:     sess.Token,
		TokenType: "bearer",
		ExpiresAt: sess.ExpiresAt.UTC().Format(time.RFC3339),
		User:      sess.User,
	})
}

func (s *GRPCServer) GetMe(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	cur, ok := UserFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, detailCredentials)
	}
	u, err := s.users.Me(ctx, cur.ID)
	if err != nil {
		return nil, mapError(err)
	}
	return encode(u)
}

func (s *GRPCServer) UpdateProfile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cur, ok := UserFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, detailCredentials)
	}

	var upd models.ProfileUpdate
	if err := pb.FromStruct(req, &upd); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	u, err := s.users.UpdateProfile(ctx, cur.ID, upd)
	if err != nil {
		return nil, mapError(err)
	}
	s.logger.Info(ctx, "profile updated", "user_id", cur.ID)
	return encode(u)
}

func (s *GRPCServer) UpdateAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cur, ok := UserFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, detailCredentials)
	}

	var upd models.AccountUpdate
	if err := pb.FromStruct(req, &upd); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	u, err := s.users.UpdateAccount(ctx, cur.ID, upd)
	if err != nil {
		return nil, mapError(err)
	}
	return encode(u)
}

func encode(v any) (*structpb.Struct, error) {
	out, err := pb.ToStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

// mapError converts service errors to gRPC statuses. Validation failures
// carry one BadRequest field violation per rejected field.
func mapError(err error) error {
	var fe common.FieldErrors
	switch {
	case errors.As(err, &fe):
		st := status.New(codes.InvalidArgument, common.ErrValidation.Error())
		br := &errdetails.BadRequest{}
		for _, e := range fe {
			br.FieldViolations = append(br.FieldViolations, &errdetails.BadRequest_FieldViolation{
				Field:       e.Field,
				Description: e.Message,
			})
		}
		if withDetails, derr := st.WithDetails(br); derr == nil {
			st = withDetails
		}
		return st.Err()
	case errors.Is(err, common.ErrInvalidAssertion):
		return status.Error(codes.Unauthenticated, detailAssertion)
	case errors.Is(err, common.ErrorUnauthorized):
		return status.Error(codes.Unauthenticated, detailCredentials)
	case errors.Is(err, common.ErrProvisioning):
		return status.Error(codes.Unavailable, "user provisioning failed")
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
