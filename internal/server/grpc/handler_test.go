package grpc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/staffkeeper/internal/common"
	pb "github.com/dmitrijs2005/staffkeeper/internal/proto"
	"github.com/dmitrijs2005/staffkeeper/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// detail decodes the typed error attached to a failed call.
func detail(t *testing.T, err error) error {
	t.Helper()
	st, ok := status.FromError(err)
	require.True(t, ok, "not a status: %v", err)
	for _, d := range st.Details() {
		if s, ok := d.(*structpb.Struct); ok {
			return pb.ErrorFromDetail(s)
		}
	}
	return nil
}

func TestPing_NeedsNoToken(t *testing.T) {
	c := startServer(t, testConfig())

	res, err := c.Call(context.Background(), pb.MethodPing, pb.Values{}.Message())
	require.NoError(t, err)
	assert.Equal(t, "OK", pb.Str(res, pb.FieldStatus))
}

func TestLogin_Bootstrap(t *testing.T) {
	c := startServer(t, testConfig())

	res, challenges := converse(t, c, services.BootstrapLogin, "wrong", services.BootstrapPassword)
	require.Len(t, challenges, 2)
	assert.Equal(t, 1, pb.Int(challenges[0], pb.FieldAttempt))
	assert.Equal(t, 3, pb.Int(challenges[0], pb.FieldAttemptsRemaining))
	assert.Equal(t, 2, pb.Int(challenges[1], pb.FieldAttemptsRemaining))

	assert.Equal(t, pb.StatusOK, pb.Str(res, pb.FieldStatus))
	assert.True(t, pb.Bool(res, pb.FieldPasswordExpired))
	assert.Equal(t, "SuperAdmin", pb.Str(res, pb.FieldRole))
	assert.Equal(t, "Paris", pb.Str(res, pb.FieldTerritory))
	assert.NotEmpty(t, pb.Str(res, pb.FieldToken))
}

func TestLogin_LocksAfterThreeFailures(t *testing.T) {
	c := startServer(t, testConfig())

	res, challenges := converse(t, c, services.BootstrapLogin, "a", "b", "c")
	assert.Len(t, challenges, 3)
	assert.Equal(t, pb.StatusLocked, pb.Str(res, pb.FieldStatus))
	assert.Equal(t, 60, pb.Int(res, pb.FieldLockedSeconds))

	// the right password is not even asked for while locked
	res, challenges = converse(t, c, services.BootstrapLogin, services.BootstrapPassword)
	assert.Empty(t, challenges)
	assert.Equal(t, pb.StatusLocked, pb.Str(res, pb.FieldStatus))
	assert.Positive(t, pb.Int(res, pb.FieldLockedSeconds))
}

func TestLogin_UnknownLoginLooksLikeWrongPassword(t *testing.T) {
	c := startServer(t, testConfig())

	res, challenges := converse(t, c, "ghost", "a", "b", "c")
	assert.Len(t, challenges, 3)
	assert.Equal(t, pb.StatusInvalidCredentials, pb.Str(res, pb.FieldStatus))
}

func TestLogin_ClientGivesUp(t *testing.T) {
	c := startServer(t, testConfig())

	res, challenges := converse(t, c, services.BootstrapLogin, "wrong")
	assert.Len(t, challenges, 2)
	assert.Equal(t, pb.StatusInvalidCredentials, pb.Str(res, pb.FieldStatus))
	assert.Equal(t, 2, pb.Int(res, pb.FieldAttemptsRemaining))

	// no lock was written
	res, _ = converse(t, c, services.BootstrapLogin, services.BootstrapPassword)
	assert.Equal(t, pb.StatusOK, pb.Str(res, pb.FieldStatus))
}

func TestLogin_RequiresLogin(t *testing.T) {
	c := startServer(t, testConfig())

	stream, err := c.Login(context.Background())
	require.NoError(t, err)
	require.NoError(t, stream.Send(pb.Values{}.Str(pb.FieldLogin, "  ").Message()))
	_, err = stream.Recv()
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestLogin_IdleClientIsCutOff(t *testing.T) {
	cfg := testConfig()
	cfg.LoginTimeout = 200 * time.Millisecond
	c := startServer(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// silent after the challenge
	stream, err := c.Login(ctx)
	require.NoError(t, err)
	require.NoError(t, stream.Send(pb.Values{}.Str(pb.FieldLogin, services.BootstrapLogin).Message()))
	challenge, err := stream.Recv()
	require.NoError(t, err)
	require.Equal(t, pb.KindChallenge, pb.Str(challenge, pb.FieldKind))

	started := time.Now()
	_, err = stream.Recv()
	assert.Equal(t, codes.DeadlineExceeded, status.Code(err))
	assert.Less(t, time.Since(started), 5*time.Second)

	// silent from the start
	stream, err = c.Login(ctx)
	require.NoError(t, err)
	_, err = stream.Recv()
	assert.Equal(t, codes.DeadlineExceeded, status.Code(err))
	require.NoError(t, ctx.Err())

	// an abandoned conversation costs no lock
	res, _ := converse(t, c, services.BootstrapLogin, services.BootstrapPassword)
	assert.Equal(t, pb.StatusOK, pb.Str(res, pb.FieldStatus))
}

func TestLogin_RateLimitedPerPeer(t *testing.T) {
	cfg := testConfig()
	cfg.LoginRate = 0.001
	cfg.LoginBurst = 1
	c := startServer(t, cfg)

	res, _ := converse(t, c, "ghost")
	assert.Equal(t, pb.StatusInvalidCredentials, pb.Str(res, pb.FieldStatus))

	stream, err := c.Login(context.Background())
	require.NoError(t, err)
	_ = stream.Send(pb.Values{}.Str(pb.FieldLogin, "ghost").Message())
	_, err = stream.Recv()
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}

func TestAccounts_EndToEnd(t *testing.T) {
	c := startServer(t, testConfig())
	root := signIn(t, c, services.BootstrapLogin, services.BootstrapPassword)

	res, err := c.Call(root, pb.MethodProvisionAccount, pb.Values{}.
		Str(pb.FieldGivenName, "Alice").
		Str(pb.FieldFamilyName, "Martin").
		Str(pb.FieldRole, "user").
		Str(pb.FieldTerritory, "rennes").
		Message())
	require.NoError(t, err)
	account := pb.AccountFrom(pb.Struct(res, pb.FieldAccount))
	assert.Equal(t, "amartin", account.Login)
	assert.Equal(t, "User", account.Role)
	assert.Equal(t, "Rennes", account.Territory)
	temp := pb.Str(res, pb.FieldTemporaryPassword)
	assert.Len(t, temp, 16)
	assert.Nil(t, pb.Struct(res, pb.FieldHomonym))

	user := signIn(t, c, "amartin", temp)

	_, err = c.Call(user, pb.MethodChangePassword, pb.Values{}.
		Str(pb.FieldOldPassword, temp).
		Str(pb.FieldNewPassword, "n3w-pass").
		Message())
	require.NoError(t, err)

	res, err = c.Call(user, pb.MethodProfile, pb.Values{}.Message())
	require.NoError(t, err)
	assert.Equal(t, "Alice Martin", pb.AccountFrom(pb.Struct(res, pb.FieldAccount)).FullName())

	_, err = c.Call(user, pb.MethodListAccounts, pb.Values{}.Message())
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
	assert.Equal(t, &common.AuthorizationError{Rule: "list.not_allowed"}, detail(t, err))

	res, err = c.Call(root, pb.MethodListAccounts, pb.Values{}.Message())
	require.NoError(t, err)
	assert.Len(t, pb.AccountsFrom(res), 2)

	res, err = c.Call(root, pb.MethodListAccounts, pb.Values{}.Str(pb.FieldTerritory, "Rennes").Message())
	require.NoError(t, err)
	assert.Len(t, pb.AccountsFrom(res), 1)

	_, err = c.Call(root, pb.MethodProvisionAccount, pb.Values{}.
		Str(pb.FieldGivenName, "Bruno").
		Str(pb.FieldFamilyName, "Durand").
		Str(pb.FieldRole, "Admin").
		Str(pb.FieldTerritory, "Paris").
		Message())
	assert.Equal(t, codes.AlreadyExists, status.Code(err))
	var gc *common.GovernanceConflictError
	require.True(t, errors.As(detail(t, err), &gc))
	assert.Equal(t, services.BootstrapLogin, gc.Login)

	_, err = c.Call(root, pb.MethodChangeRole, pb.Values{}.Str(pb.FieldLogin, "amartin").Str(pb.FieldRole, "Boss").Message())
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, &common.ValidationError{Field: "role", Reason: "is unknown"}, detail(t, err))

	_, err = c.Call(root, pb.MethodChangeRole, pb.Values{}.Str(pb.FieldLogin, "amartin").Str(pb.FieldRole, "Admin").Message())
	require.NoError(t, err)

	_, err = c.Call(root, pb.MethodChangeTerritory, pb.Values{}.Str(pb.FieldLogin, "amartin").Str(pb.FieldTerritory, "Marseille").Message())
	require.NoError(t, err)

	_, err = c.Call(root, pb.MethodUpdateNames, pb.Values{}.
		Str(pb.FieldLogin, "amartin").
		Str(pb.FieldGivenName, "Alice").
		Str(pb.FieldFamilyName, "Roux").
		Message())
	require.NoError(t, err)

	_, err = c.Call(root, pb.MethodRenameLogin, pb.Values{}.Str(pb.FieldLogin, "amartin").Str(pb.FieldNewLogin, "aroux").Message())
	require.NoError(t, err)

	res, err = c.Call(root, pb.MethodFindAccount, pb.Values{}.Str(pb.FieldLogin, "aroux").Message())
	require.NoError(t, err)
	found := pb.AccountFrom(pb.Struct(res, pb.FieldAccount))
	assert.Equal(t, "Admin", found.Role)
	assert.Equal(t, "Marseille", found.Territory)
	assert.Equal(t, "Roux", found.FamilyName)

	res, err = c.Call(root, pb.MethodResetPassword, pb.Values{}.Str(pb.FieldLogin, "aroux").Message())
	require.NoError(t, err)
	assert.Len(t, pb.Str(res, pb.FieldTemporaryPassword), 16)

	_, err = c.Call(root, pb.MethodDeleteAccount, pb.Values{}.Str(pb.FieldLogin, "aroux").Message())
	require.NoError(t, err)

	_, err = c.Call(root, pb.MethodFindAccount, pb.Values{}.Str(pb.FieldLogin, "aroux").Message())
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = c.Call(root, pb.MethodDeleteAccount, pb.Values{}.Str(pb.FieldLogin, services.BootstrapLogin).Message())
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{&common.CredentialError{}, codes.Unauthenticated},
		{&common.LockedError{}, codes.PermissionDenied},
		{common.Denied("x"), codes.PermissionDenied},
		{common.Invalid("f", "r"), codes.InvalidArgument},
		{&common.GovernanceConflictError{}, codes.AlreadyExists},
		{common.ErrDuplicateLogin, codes.AlreadyExists},
		{common.ErrorNotFound, codes.NotFound},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{errors.New("db down"), codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, codeOf(tt.err))
		})
	}
}

func TestToStatus_HidesInternalErrors(t *testing.T) {
	s := newTestServer(&fakeAuth{})

	err := s.toStatus(context.Background(), "list", errors.New("pq: password authentication failed"))
	st, _ := status.FromError(err)
	assert.Equal(t, codes.Internal, st.Code())
	assert.Equal(t, "internal error", st.Message())

	passthrough := status.Error(codes.Canceled, "gone")
	assert.Equal(t, passthrough, s.toStatus(context.Background(), "list", passthrough))
}
