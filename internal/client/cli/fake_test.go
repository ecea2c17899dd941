package cli

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/dmitrijs2005/staffkeeper/internal/client/client"
	"github.com/dmitrijs2005/staffkeeper/internal/client/config"
	pb "github.com/dmitrijs2005/staffkeeper/internal/proto"
)

// fakeClient records calls and returns scripted results.
type fakeClient struct {
	session *client.Session
	calls   []string

	loginSession  *client.Session
	loginErr      error
	loginAttempts int
	passwords     []string

	changed       [2]string
	provisioned   *client.Provisioned
	tempPassword  string
	accounts      []pb.Account
	account       pb.Account
	listTerritory string
	listRole      string
	err           error
	closed        bool
}

var _ client.Client = (*fakeClient)(nil)

func (f *fakeClient) record(call string) error {
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeClient) Close() error                   { f.closed = true; return nil }
func (f *fakeClient) Ping(ctx context.Context) error { return f.record("ping") }

func (f *fakeClient) Login(ctx context.Context, login string, prompt client.PasswordPrompt) (*client.Session, error) {
	f.calls = append(f.calls, "login "+login)
	for i := 0; i < f.loginAttempts; i++ {
		pw, err := prompt(ctx, i+1, f.loginAttempts-i)
		if err != nil {
			return nil, err
		}
		f.passwords = append(f.passwords, pw)
	}
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	f.session = f.loginSession
	return f.session, nil
}

func (f *fakeClient) Logout() { f.calls = append(f.calls, "logout"); f.session = nil }

func (f *fakeClient) Session() *client.Session { return f.session }

func (f *fakeClient) Profile(ctx context.Context) (pb.Account, error) {
	return f.account, f.record("profile")
}

func (f *fakeClient) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	f.changed = [2]string{oldPassword, newPassword}
	return f.record("passwd")
}

func (f *fakeClient) ProvisionAccount(ctx context.Context, givenName, familyName, role, territory string) (*client.Provisioned, error) {
	if err := f.record(strings.Join([]string{"create", givenName, familyName, role, territory}, " ")); err != nil {
		return nil, err
	}
	return f.provisioned, nil
}

func (f *fakeClient) ResetPassword(ctx context.Context, login string) (string, error) {
	return f.tempPassword, f.record("reset " + login)
}

func (f *fakeClient) ChangeRole(ctx context.Context, login, role string) error {
	return f.record("role " + login + " " + role)
}

func (f *fakeClient) DeleteAccount(ctx context.Context, login string) error {
	return f.record("delete " + login)
}

func (f *fakeClient) UpdateNames(ctx context.Context, login, givenName, familyName string) error {
	return f.record("names " + login + " " + givenName + "/" + familyName)
}

func (f *fakeClient) ChangeTerritory(ctx context.Context, login, territory string) error {
	return f.record("move " + login + " " + territory)
}

func (f *fakeClient) RenameLogin(ctx context.Context, login, newLogin string) error {
	return f.record("rename " + login + " " + newLogin)
}

func (f *fakeClient) ListAccounts(ctx context.Context, territory, role string) ([]pb.Account, error) {
	f.listTerritory, f.listRole = territory, role
	return f.accounts, f.record("list")
}

func (f *fakeClient) FindAccount(ctx context.Context, login string) (pb.Account, error) {
	return f.account, f.record("show " + login)
}

// newTestApp returns an App reading the given lines as user input. Passwords
// are read from the same input since stdin is not a terminal in tests.
func newTestApp(t *testing.T, f *fakeClient, lines ...string) (*App, *bytes.Buffer) {
	t.Helper()

	orig := isTerminal
	isTerminal = func(int) bool { return false }
	t.Cleanup(func() { isTerminal = orig })

	out := &bytes.Buffer{}
	input := strings.Join(lines, "\n")
	if len(lines) > 0 {
		input += "\n"
	}
	return &App{
		config: &config.Config{ServerEndpointAddr: "127.0.0.1:50051"},
		client: f,
		reader: bufio.NewReader(strings.NewReader(input)),
		out:    out,
	}, out
}
