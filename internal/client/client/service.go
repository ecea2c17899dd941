package client

import (
	"context"

	pb "github.com/dmitrijs2005/staffkeeper/internal/proto"
)

// Session describes the signed-in principal.
type Session struct {
	Login           string
	Role            string
	Territory       string
	PasswordExpired bool
}

// Provisioned is the outcome of creating an account. TemporaryPassword is
// shown once.
type Provisioned struct {
	Account           pb.Account
	TemporaryPassword string
	Homonym           *pb.Account
}

// PasswordPrompt asks for the next password of a login conversation.
// Returning an error gives up the conversation without locking the account.
type PasswordPrompt func(ctx context.Context, attempt, remaining int) (string, error)

type Client interface {
	Close() error
	Ping(ctx context.Context) error
	Login(ctx context.Context, login string, prompt PasswordPrompt) (*Session, error)
	Logout()
	Session() *Session
	Profile(ctx context.Context) (pb.Account, error)
	ChangePassword(ctx context.Context, oldPassword, newPassword string) error
	ProvisionAccount(ctx context.Context, givenName, familyName, role, territory string) (*Provisioned, error)
	ResetPassword(ctx context.Context, login string) (string, error)
	ChangeRole(ctx context.Context, login, role string) error
	DeleteAccount(ctx context.Context, login string) error
	UpdateNames(ctx context.Context, login, givenName, familyName string) error
	ChangeTerritory(ctx context.Context, login, territory string) error
	RenameLogin(ctx context.Context, login, newLogin string) error
	ListAccounts(ctx context.Context, territory, role string) ([]pb.Account, error)
	FindAccount(ctx context.Context, login string) (pb.Account, error)
}
