// Package grpc exposes the authentication and account services over gRPC.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/staffkeeper/internal/logging"
	pb "github.com/dmitrijs2005/staffkeeper/internal/proto"
	"github.com/dmitrijs2005/staffkeeper/internal/server/config"
	"github.com/dmitrijs2005/staffkeeper/internal/server/models"
	"github.com/dmitrijs2005/staffkeeper/internal/server/services"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
)

type Authenticator interface {
	Authenticate(ctx context.Context, login string, supplier services.PasswordSupplier) (*services.AuthResult, error)
	IssueToken(p *models.Principal) (string, error)
	Actor(ctx context.Context, token string) (*models.Principal, error)
}

type Accounts interface {
	ProvisionAccount(ctx context.Context, actor *models.Principal, req services.NewAccount) (*services.Provisioned, error)
	ChangePassword(ctx context.Context, login, oldPassword, newPassword string) error
	ResetPassword(ctx context.Context, actor *models.Principal, login string) (string, error)
	ChangeRole(ctx context.Context, actor *models.Principal, login string, role models.Role) error
	DeleteAccount(ctx context.Context, actor *models.Principal, login string) error
	UpdateNames(ctx context.Context, actor *models.Principal, login, given, family string) error
	ChangeTerritory(ctx context.Context, actor *models.Principal, login string, territory models.Territory) error
	RenameLogin(ctx context.Context, actor *models.Principal, oldLogin, newLogin string) error
	ListAccounts(ctx context.Context, actor *models.Principal, filter models.ListFilter) ([]models.Principal, error)
	FindAccount(ctx context.Context, actor *models.Principal, login string) (*models.Principal, error)
}

type GRPCServer struct {
	address      string
	auth         Authenticator
	accounts     Accounts
	logger       logging.Logger
	limiter      *loginLimiter
	timeout      time.Duration
	loginTimeout time.Duration
}

func NewGRPCServer(a string, l logging.Logger, as Authenticator, ac Accounts, cfg *config.Config) (*GRPCServer, error) {
	return &GRPCServer{
		address:      a,
		logger:       l.With("module", "grpc_server"),
		auth:         as,
		accounts:     ac,
		limiter:      newLoginLimiter(rate.Limit(cfg.LoginRate), cfg.LoginBurst),
		timeout:      cfg.RequestTimeout,
		loginTimeout: cfg.LoginTimeout,
	}, nil
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.timeoutInterceptor, s.accessTokenInterceptor),
		grpc.ChainStreamInterceptor(s.loginRateInterceptor),
	)
	pb.RegisterStaffServiceServer(srv, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is done.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
