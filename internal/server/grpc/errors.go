package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/staffkeeper/internal/common"
	pb "github.com/dmitrijs2005/staffkeeper/internal/proto"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, common.ErrInvalidCredential):
		return codes.Unauthenticated
	case errors.Is(err, common.ErrAccountLocked), errors.Is(err, common.ErrAuthorizationDenied):
		return codes.PermissionDenied
	case errors.Is(err, common.ErrValidation):
		return codes.InvalidArgument
	case errors.Is(err, common.ErrGovernanceConflict), errors.Is(err, common.ErrDuplicateLogin):
		return codes.AlreadyExists
	case errors.Is(err, common.ErrorNotFound):
		return codes.NotFound
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	}
	return codes.Internal
}

// toStatus converts a service error to a gRPC status carrying an error detail
// the client can decode. Internal errors are logged and reported without
// their message.
func (s *GRPCServer) toStatus(ctx context.Context, op string, err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}

	code := codeOf(err)
	if code == codes.Internal {
		s.logger.Error(ctx, op+" failed", "error", err)
		return status.Error(codes.Internal, "internal error")
	}

	st := status.New(code, err.Error())
	if detail := pb.ErrorDetail(err); detail != nil {
		if withDetail, derr := st.WithDetails(detail); derr == nil {
			st = withDetail
		}
	}
	return st.Err()
}
