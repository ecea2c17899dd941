package cli

import (
	"bytes"
	"context"
	"fmt"

	"github.com/dmitrijs2005/staffkeeper/internal/common"
)

// Login signs in. The server asks for the password up to the lockout budget;
// every prompt shows the attempts left. An expired password must be changed
// right away.
func (a *App) Login(ctx context.Context, args []string) error {
	login, err := a.argOrAsk(args, 0, "Enter login")
	if err != nil {
		return err
	}

	session, err := a.client.Login(ctx, login, a.askPassword)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Logged in as %s (%s, %s)\n", session.Login, session.Role, session.Territory)

	if session.PasswordExpired {
		fmt.Fprintln(a.out, "Your password has expired and must be changed now.")
		return a.Passwd(ctx, nil)
	}
	return nil
}

func (a *App) askPassword(ctx context.Context, attempt, remaining int) (string, error) {
	if attempt > 1 {
		fmt.Fprintln(a.out, "Invalid login or password")
	}
	pw, err := getPassword(a.reader, fmt.Sprintf("Password (%d attempts left)", remaining), a.out)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(pw)

	return string(pw), nil
}

func (a *App) Logout(ctx context.Context, args []string) error {
	a.client.Logout()
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func (a *App) Whoami(ctx context.Context, args []string) error {
	account, err := a.client.Profile(ctx)
	if err != nil {
		return err
	}
	a.printAccount(account)
	return nil
}

// Passwd changes the caller's own password. The new one is typed twice.
func (a *App) Passwd(ctx context.Context, args []string) error {
	oldPassword, err := getPassword(a.reader, "Current password", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(oldPassword)

	newPassword, err := getPassword(a.reader, "New password", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(newPassword)

	repeat, err := getPassword(a.reader, "Repeat new password", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(repeat)

	if !bytes.Equal(newPassword, repeat) {
		return errPasswordMismatch
	}

	if err := a.client.ChangePassword(ctx, string(oldPassword), string(newPassword)); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "Password changed")
	return nil
}
