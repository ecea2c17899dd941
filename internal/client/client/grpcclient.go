package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dmitrijs2005/staffkeeper/internal/common"
	"github.com/dmitrijs2005/staffkeeper/internal/netx"
	pb "github.com/dmitrijs2005/staffkeeper/internal/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// stub is the part of pb.StaffServiceClient the client uses.
type stub interface {
	Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Login(ctx context.Context, opts ...grpc.CallOption) (grpc.BidiStreamingClient[structpb.Struct, structpb.Struct], error)
}

type GRPCClient struct {
	endpointURL  string
	conn         *grpc.ClientConn
	client       stub
	timeout      time.Duration
	loginTimeout time.Duration

	mu          sync.Mutex
	accessToken string
	session     *Session
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(pb.MetadataAccessToken)
	md.Set(pb.MetadataAccessToken, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if token := s.token(); token != "" {
		ctx = withAccessToken(ctx, token)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

func NewStaffKeeperClient(endpointURL string, timeout, loginTimeout time.Duration) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: netx.Dialable(endpointURL), timeout: timeout, loginTimeout: loginTimeout}
	if err := c.InitGRPCClient(); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient() error {
	conn, err := grpc.NewClient(s.endpointURL,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor),
	)
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = pb.NewStaffServiceClient(conn)
	return nil
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *GRPCClient) call(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	resp, err := s.client.Call(ctx, method, req)
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	resp, err := s.call(ctx, pb.MethodPing, pb.Values{}.Message())
	if err != nil {
		return err
	}
	if pb.Str(resp, pb.FieldStatus) != "OK" {
		return ErrUnavailable
	}
	return nil
}

// Login runs the login conversation, calling prompt for every password the
// server asks for. On success the session's token is kept for later calls.
func (s *GRPCClient) Login(ctx context.Context, login string, prompt PasswordPrompt) (*Session, error) {
	if s.loginTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.loginTimeout)
		defer cancel()
	}

	stream, err := s.client.Login(ctx)
	if err != nil {
		return nil, s.mapError(err)
	}
	if err := stream.Send(pb.Values{}.Str(pb.FieldLogin, login).Message()); err != nil && !errors.Is(err, io.EOF) {
		return nil, s.mapError(err)
	}

	var aborted error
	for {
		msg, err := stream.Recv()
		if err != nil {
			return nil, s.mapError(err)
		}

		if pb.Str(msg, pb.FieldKind) == pb.KindResult {
			if aborted != nil {
				return nil, aborted
			}
			return s.finishLogin(msg)
		}

		password, err := prompt(ctx, pb.Int(msg, pb.FieldAttempt), pb.Int(msg, pb.FieldAttemptsRemaining))
		if err != nil {
			aborted = fmt.Errorf("%w: %w", ErrLoginAborted, err)
			if err := stream.CloseSend(); err != nil {
				return nil, aborted
			}
			continue
		}
		if err := stream.Send(pb.Values{}.Str(pb.FieldPassword, password).Message()); err != nil && !errors.Is(err, io.EOF) {
			return nil, s.mapError(err)
		}
	}
}

func (s *GRPCClient) finishLogin(msg *structpb.Struct) (*Session, error) {
	switch pb.Str(msg, pb.FieldStatus) {
	case pb.StatusOK:
	case pb.StatusLocked:
		return nil, &common.LockedError{Remaining: time.Duration(pb.Int(msg, pb.FieldLockedSeconds)) * time.Second, Persisted: true}
	default:
		return nil, &common.CredentialError{AttemptsRemaining: pb.Int(msg, pb.FieldAttemptsRemaining)}
	}

	session := &Session{
		Login:           pb.Str(msg, pb.FieldLogin),
		Role:            pb.Str(msg, pb.FieldRole),
		Territory:       pb.Str(msg, pb.FieldTerritory),
		PasswordExpired: pb.Bool(msg, pb.FieldPasswordExpired),
	}

	s.mu.Lock()
	s.accessToken = pb.Str(msg, pb.FieldToken)
	s.session = session
	s.mu.Unlock()

	return session, nil
}

// Logout forgets the session. Tokens are not revoked, they expire.
func (s *GRPCClient) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = ""
	s.session = nil
}

// Session returns a copy of the current session, nil when logged out.
func (s *GRPCClient) Session() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	c := *s.session
	return &c
}

func (s *GRPCClient) Profile(ctx context.Context) (pb.Account, error) {
	resp, err := s.call(ctx, pb.MethodProfile, pb.Values{}.Message())
	if err != nil {
		return pb.Account{}, err
	}
	return pb.AccountFrom(pb.Struct(resp, pb.FieldAccount)), nil
}

func (s *GRPCClient) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	_, err := s.call(ctx, pb.MethodChangePassword, pb.Values{}.
		Str(pb.FieldOldPassword, oldPassword).
		Str(pb.FieldNewPassword, newPassword).
		Message())
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.session != nil {
		s.session.PasswordExpired = false
	}
	s.mu.Unlock()
	return nil
}

func (s *GRPCClient) ProvisionAccount(ctx context.Context, givenName, familyName, role, territory string) (*Provisioned, error) {
	resp, err := s.call(ctx, pb.MethodProvisionAccount, pb.Values{}.
		Str(pb.FieldGivenName, givenName).
		Str(pb.FieldFamilyName, familyName).
		Str(pb.FieldRole, role).
		Str(pb.FieldTerritory, territory).
		Message())
	if err != nil {
		return nil, err
	}

	out := &Provisioned{
		Account:           pb.AccountFrom(pb.Struct(resp, pb.FieldAccount)),
		TemporaryPassword: pb.Str(resp, pb.FieldTemporaryPassword),
	}
	if h := pb.Struct(resp, pb.FieldHomonym); h != nil {
		homonym := pb.AccountFrom(h)
		out.Homonym = &homonym
	}
	return out, nil
}

func (s *GRPCClient) ResetPassword(ctx context.Context, login string) (string, error) {
	resp, err := s.call(ctx, pb.MethodResetPassword, pb.Values{}.Str(pb.FieldLogin, login).Message())
	if err != nil {
		return "", err
	}
	return pb.Str(resp, pb.FieldTemporaryPassword), nil
}

func (s *GRPCClient) ChangeRole(ctx context.Context, login, role string) error {
	_, err := s.call(ctx, pb.MethodChangeRole, pb.Values{}.Str(pb.FieldLogin, login).Str(pb.FieldRole, role).Message())
	return err
}

func (s *GRPCClient) DeleteAccount(ctx context.Context, login string) error {
	_, err := s.call(ctx, pb.MethodDeleteAccount, pb.Values{}.Str(pb.FieldLogin, login).Message())
	return err
}

func (s *GRPCClient) UpdateNames(ctx context.Context, login, givenName, familyName string) error {
	_, err := s.call(ctx, pb.MethodUpdateNames, pb.Values{}.
		Str(pb.FieldLogin, login).
		Str(pb.FieldGivenName, givenName).
		Str(pb.FieldFamilyName, familyName).
		Message())
	return err
}

func (s *GRPCClient) ChangeTerritory(ctx context.Context, login, territory string) error {
	_, err := s.call(ctx, pb.MethodChangeTerritory, pb.Values{}.Str(pb.FieldLogin, login).Str(pb.FieldTerritory, territory).Message())
	return err
}

func (s *GRPCClient) RenameLogin(ctx context.Context, login, newLogin string) error {
	_, err := s.call(ctx, pb.MethodRenameLogin, pb.Values{}.Str(pb.FieldLogin, login).Str(pb.FieldNewLogin, newLogin).Message())
	return err
}

func (s *GRPCClient) ListAccounts(ctx context.Context, territory, role string) ([]pb.Account, error) {
	req := pb.Values{}
	if territory != "" {
		req.Str(pb.FieldTerritory, territory)
	}
	if role != "" {
		req.Str(pb.FieldRole, role)
	}
	resp, err := s.call(ctx, pb.MethodListAccounts, req.Message())
	if err != nil {
		return nil, err
	}
	return pb.AccountsFrom(resp), nil
}

func (s *GRPCClient) FindAccount(ctx context.Context, login string) (pb.Account, error) {
	resp, err := s.call(ctx, pb.MethodFindAccount, pb.Values{}.Str(pb.FieldLogin, login).Message())
	if err != nil {
		return pb.Account{}, err
	}
	return pb.AccountFrom(pb.Struct(resp, pb.FieldAccount)), nil
}

// mapError turns a gRPC status into the typed error carried in its details,
// or into one of the transport sentinels.
func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, d := range st.Details() {
		if msg, ok := d.(*structpb.Struct); ok {
			if typed := pb.ErrorFromDetail(msg); typed != nil {
				return typed
			}
		}
	}
	switch st.Code() {
	case codes.Unauthenticated:
		return ErrUnauthorized
	case codes.ResourceExhausted:
		return ErrRateLimited
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
