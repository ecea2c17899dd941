package grpc

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/dmitrijs2005/staffkeeper/internal/common"
	pb "github.com/dmitrijs2005/staffkeeper/internal/proto"
	"github.com/dmitrijs2005/staffkeeper/internal/server/models"
	"github.com/dmitrijs2005/staffkeeper/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

var errLoginTimedOut = status.Error(codes.DeadlineExceeded, "login timed out")

func toAccount(p *models.Principal) pb.Account {
	a := pb.Account{
		Login:          p.Login,
		GivenName:      p.GivenName,
		FamilyName:     p.FamilyName,
		Role:           string(p.Role),
		Territory:      string(p.Territory),
		PasswordExpiry: p.PasswordExpiry,
		CreatedAt:      p.CreatedAt,
	}
	if p.LockedUntil != nil {
		a.LockedUntil = *p.LockedUntil
	}
	return a
}

func parseRole(s string) (models.Role, error) {
	r, err := models.ParseRole(s)
	if err != nil {
		return "", common.Invalid("role", "is unknown")
	}
	return r, nil
}

func parseTerritory(s string) (models.Territory, error) {
	t, err := models.ParseTerritory(s)
	if err != nil {
		return "", common.Invalid("territory", "is unknown")
	}
	return t, nil
}

func empty() *structpb.Struct {
	return pb.Values{}.Message()
}

func (s *GRPCServer) Ping(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return pb.Values{}.Str(pb.FieldStatus, "OK").Message(), nil
}

func (s *GRPCServer) loginContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.loginTimeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, s.loginTimeout)
}

// recvWithin waits for the next client message until ctx ends. The pending
// Recv finishes when the handler returns and the stream is torn down.
func recvWithin(ctx context.Context, stream grpc.BidiStreamingServer[structpb.Struct, structpb.Struct]) (*structpb.Struct, error) {
	type received struct {
		msg *structpb.Struct
		err error
	}
	ch := make(chan received, 1)
	go func() {
		msg, err := stream.Recv()
		ch <- received{msg, err}
	}()
	select {
	case r := <-ch:
		return r.msg, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Login runs the login conversation: the client opens with its login, the
// server answers each password with the next challenge and ends with a
// result. Wrong credentials and locks are results, not stream errors. The
// whole conversation is bounded by the login timeout.
func (s *GRPCServer) Login(stream grpc.BidiStreamingServer[structpb.Struct, structpb.Struct]) error {
	ctx, cancel := s.loginContext(stream.Context())
	defer cancel()

	first, err := recvWithin(ctx, stream)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return status.Error(codes.InvalidArgument, "login is required")
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return errLoginTimedOut
		}
		return err
	}
	login := strings.TrimSpace(pb.Str(first, pb.FieldLogin))
	if login == "" {
		return status.Error(codes.InvalidArgument, "login is required")
	}

	s.logger.Info(ctx, "Login request", "login", login, "peer", peerHost(ctx))

	supplier := func(ctx context.Context, p services.Prompt) (string, error) {
		challenge := pb.Values{}.
			Str(pb.FieldKind, pb.KindChallenge).
			Int(pb.FieldAttempt, p.Attempt).
			Int(pb.FieldAttemptsRemaining, p.AttemptsRemaining).
			Message()
		if err := stream.Send(challenge); err != nil {
			return "", services.ErrSupplierClosed
		}
		msg, err := recvWithin(ctx, stream)
		if err != nil {
			return "", services.ErrSupplierClosed
		}
		return pb.Str(msg, pb.FieldPassword), nil
	}

	res, err := s.auth.Authenticate(ctx, login, supplier)
	if err != nil {
		var cred *common.CredentialError
		var locked *common.LockedError
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.As(err, &locked) {
			s.logger.Warn(ctx, "login timed out", "login", login)
			return errLoginTimedOut
		}
		switch {
		case errors.As(err, &cred):
			return stream.Send(pb.Values{}.
				Str(pb.FieldKind, pb.KindResult).
				Str(pb.FieldStatus, pb.StatusInvalidCredentials).
				Int(pb.FieldAttemptsRemaining, cred.AttemptsRemaining).
				Message())
		case errors.As(err, &locked):
			return stream.Send(pb.Values{}.
				Str(pb.FieldKind, pb.KindResult).
				Str(pb.FieldStatus, pb.StatusLocked).
				Int(pb.FieldLockedSeconds, pb.Seconds(locked.Remaining)).
				Message())
		}
		return s.toStatus(ctx, "login", err)
	}

	token, err := s.auth.IssueToken(res.Principal)
	if err != nil {
		return s.toStatus(ctx, "issue token", err)
	}

	return stream.Send(pb.Values{}.
		Str(pb.FieldKind, pb.KindResult).
		Str(pb.FieldStatus, pb.StatusOK).
		Str(pb.FieldToken, token).
		Str(pb.FieldLogin, res.Principal.Login).
		Str(pb.FieldRole, string(res.Principal.Role)).
		Str(pb.FieldTerritory, string(res.Principal.Territory)).
		Bool(pb.FieldPasswordExpired, res.PasswordExpired).
		Message())
}

func (s *GRPCServer) Profile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	return pb.Values{}.Struct(pb.FieldAccount, toAccount(actor).Message()).Message(), nil
}

func (s *GRPCServer) ChangePassword(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	err = s.accounts.ChangePassword(ctx, actor.Login, pb.Str(req, pb.FieldOldPassword), pb.Str(req, pb.FieldNewPassword))
	if err != nil {
		return nil, s.toStatus(ctx, "change password", err)
	}

	s.logger.Info(ctx, "Password changed", "login", actor.Login)
	return empty(), nil
}

func (s *GRPCServer) ProvisionAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	role, err := parseRole(pb.Str(req, pb.FieldRole))
	if err != nil {
		return nil, s.toStatus(ctx, "provision", err)
	}
	territory, err := parseTerritory(pb.Str(req, pb.FieldTerritory))
	if err != nil {
		return nil, s.toStatus(ctx, "provision", err)
	}

	res, err := s.accounts.ProvisionAccount(ctx, actor, services.NewAccount{
		GivenName:  pb.Str(req, pb.FieldGivenName),
		FamilyName: pb.Str(req, pb.FieldFamilyName),
		Territory:  territory,
		Role:       role,
	})
	if err != nil {
		return nil, s.toStatus(ctx, "provision", err)
	}

	out := pb.Values{}.
		Struct(pb.FieldAccount, toAccount(res.Principal).Message()).
		Str(pb.FieldTemporaryPassword, res.TemporaryPassword)
	if res.Homonym != nil {
		out.Struct(pb.FieldHomonym, toAccount(res.Homonym).Message())
	}
	return out.Message(), nil
}

func (s *GRPCServer) ResetPassword(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	temp, err := s.accounts.ResetPassword(ctx, actor, pb.Str(req, pb.FieldLogin))
	if err != nil {
		return nil, s.toStatus(ctx, "reset password", err)
	}
	return pb.Values{}.Str(pb.FieldTemporaryPassword, temp).Message(), nil
}

func (s *GRPCServer) ChangeRole(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	role, err := parseRole(pb.Str(req, pb.FieldRole))
	if err == nil {
		err = s.accounts.ChangeRole(ctx, actor, pb.Str(req, pb.FieldLogin), role)
	}
	if err != nil {
		return nil, s.toStatus(ctx, "change role", err)
	}
	return empty(), nil
}

func (s *GRPCServer) DeleteAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.accounts.DeleteAccount(ctx, actor, pb.Str(req, pb.FieldLogin)); err != nil {
		return nil, s.toStatus(ctx, "delete", err)
	}
	return empty(), nil
}

func (s *GRPCServer) UpdateNames(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	err = s.accounts.UpdateNames(ctx, actor, pb.Str(req, pb.FieldLogin), pb.Str(req, pb.FieldGivenName), pb.Str(req, pb.FieldFamilyName))
	if err != nil {
		return nil, s.toStatus(ctx, "update names", err)
	}
	return empty(), nil
}

func (s *GRPCServer) ChangeTerritory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	territory, err := parseTerritory(pb.Str(req, pb.FieldTerritory))
	if err == nil {
		err = s.accounts.ChangeTerritory(ctx, actor, pb.Str(req, pb.FieldLogin), territory)
	}
	if err != nil {
		return nil, s.toStatus(ctx, "change territory", err)
	}
	return empty(), nil
}

func (s *GRPCServer) RenameLogin(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.accounts.RenameLogin(ctx, actor, pb.Str(req, pb.FieldLogin), pb.Str(req, pb.FieldNewLogin)); err != nil {
		return nil, s.toStatus(ctx, "rename", err)
	}
	return empty(), nil
}

func (s *GRPCServer) ListAccounts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	var filter models.ListFilter
	if v := pb.Str(req, pb.FieldTerritory); v != "" {
		if filter.Territory, err = parseTerritory(v); err != nil {
			return nil, s.toStatus(ctx, "list", err)
		}
	}
	if v := pb.Str(req, pb.FieldRole); v != "" {
		if filter.Role, err = parseRole(v); err != nil {
			return nil, s.toStatus(ctx, "list", err)
		}
	}

	list, err := s.accounts.ListAccounts(ctx, actor, filter)
	if err != nil {
		return nil, s.toStatus(ctx, "list", err)
	}

	out := make([]pb.Account, 0, len(list))
	for i := range list {
		out = append(out, toAccount(&list[i]))
	}
	return pb.AccountList(out), nil
}

func (s *GRPCServer) FindAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	p, err := s.accounts.FindAccount(ctx, actor, pb.Str(req, pb.FieldLogin))
	if err != nil {
		return nil, s.toStatus(ctx, "find", err)
	}
	return pb.Values{}.Struct(pb.FieldAccount, toAccount(p).Message()).Message(), nil
}
