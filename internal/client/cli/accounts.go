package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/staffkeeper/internal/lockout"
	pb "github.com/dmitrijs2005/staffkeeper/internal/proto"
)

// now is a test seam for lock display.
var now = time.Now

var roleNames = []string{"User", "Admin", "SuperAdmin"}

// Create provisions an account. Names are prompted for since they may contain
// spaces. The temporary password is shown once.
func (a *App) Create(ctx context.Context, args []string) error {
	givenName, err := getSimpleText(a.reader, "Given name", a.out)
	if err != nil {
		return err
	}
	familyName, err := getSimpleText(a.reader, "Family name", a.out)
	if err != nil {
		return err
	}
	role, err := a.argOrAsk(args, 0, "Role (User, Admin, SuperAdmin)")
	if err != nil {
		return err
	}
	territory, err := a.argOrAsk(args, 1, "Territory")
	if err != nil {
		return err
	}

	res, err := a.client.ProvisionAccount(ctx, givenName, familyName, canonicalRole(role), territory)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Created %s for %s (%s, %s)\n", res.Account.Login, res.Account.FullName(), res.Account.Role, res.Account.Territory)
	fmt.Fprintf(a.out, "Temporary password: %s\n", res.TemporaryPassword)
	if h := res.Homonym; h != nil {
		fmt.Fprintf(a.out, "Note: %s (%s, %s) has the same name\n", h.Login, h.Role, h.Territory)
	}
	return nil
}

func (a *App) Reset(ctx context.Context, args []string) error {
	login, err := a.argOrAsk(args, 0, "Login")
	if err != nil {
		return err
	}
	password, err := a.client.ResetPassword(ctx, login)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Temporary password for %s: %s\n", login, password)
	return nil
}

func (a *App) Role(ctx context.Context, args []string) error {
	login, err := a.argOrAsk(args, 0, "Login")
	if err != nil {
		return err
	}
	role, err := a.argOrAsk(args, 1, "New role (User, Admin, SuperAdmin)")
	if err != nil {
		return err
	}
	if err := a.client.ChangeRole(ctx, login, canonicalRole(role)); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s is now %s\n", login, canonicalRole(role))
	return nil
}

func (a *App) Delete(ctx context.Context, args []string) error {
	login, err := a.argOrAsk(args, 0, "Login")
	if err != nil {
		return err
	}
	ok, err := getConfirmation(a.reader, fmt.Sprintf("Delete %s?", login), a.out)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(a.out, "Cancelled")
		return nil
	}
	if err := a.client.DeleteAccount(ctx, login); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Deleted %s\n", login)
	return nil
}

func (a *App) Names(ctx context.Context, args []string) error {
	login, err := a.argOrAsk(args, 0, "Login")
	if err != nil {
		return err
	}
	givenName, err := getSimpleText(a.reader, "New given name", a.out)
	if err != nil {
		return err
	}
	familyName, err := getSimpleText(a.reader, "New family name", a.out)
	if err != nil {
		return err
	}
	if err := a.client.UpdateNames(ctx, login, givenName, familyName); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Updated names of %s\n", login)
	return nil
}

func (a *App) Move(ctx context.Context, args []string) error {
	login, err := a.argOrAsk(args, 0, "Login")
	if err != nil {
		return err
	}
	territory, err := a.argOrAsk(args, 1, "New territory")
	if err != nil {
		return err
	}
	if err := a.client.ChangeTerritory(ctx, login, territory); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Moved %s to %s\n", login, territory)
	return nil
}

func (a *App) Rename(ctx context.Context, args []string) error {
	login, err := a.argOrAsk(args, 0, "Login")
	if err != nil {
		return err
	}
	newLogin, err := a.argOrAsk(args, 1, "New login")
	if err != nil {
		return err
	}
	if err := a.client.RenameLogin(ctx, login, newLogin); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Renamed %s to %s\n", login, newLogin)
	return nil
}

// List prints accounts. Arguments naming a role filter by role, any other
// argument is taken as the territory.
func (a *App) List(ctx context.Context, args []string) error {
	var territory, role string
	for _, arg := range args {
		if r := canonicalRole(arg); isRole(r) {
			role = r
		} else {
			territory = arg
		}
	}

	accounts, err := a.client.ListAccounts(ctx, territory, role)
	if err != nil {
		return err
	}

	for _, acc := range accounts {
		fmt.Fprintf(a.out, "%-16s %-28s %-10s %s\n", acc.Login, acc.FullName(), acc.Role, acc.Territory)
	}
	fmt.Fprintf(a.out, "%d account(s)\n", len(accounts))
	return nil
}

func (a *App) Show(ctx context.Context, args []string) error {
	login, err := a.argOrAsk(args, 0, "Login")
	if err != nil {
		return err
	}
	account, err := a.client.FindAccount(ctx, login)
	if err != nil {
		return err
	}
	a.printAccount(account)
	return nil
}

func (a *App) printAccount(acc pb.Account) {
	fmt.Fprintf(a.out, "Login:      %s\n", acc.Login)
	fmt.Fprintf(a.out, "Name:       %s\n", acc.FullName())
	fmt.Fprintf(a.out, "Role:       %s\n", acc.Role)
	fmt.Fprintf(a.out, "Territory:  %s\n", acc.Territory)
	fmt.Fprintf(a.out, "Created:    %s\n", formatDate(acc.CreatedAt))

	if t := now(); !acc.PasswordExpiry.After(t) {
		fmt.Fprintln(a.out, "Password:   expired")
	} else {
		fmt.Fprintf(a.out, "Password:   expires %s\n", formatDate(acc.PasswordExpiry))
	}

	if left := acc.LockedUntil.Sub(now()); !acc.LockedUntil.IsZero() && left > 0 {
		fmt.Fprintf(a.out, "Locked:     %s left\n", lockout.Clock(left))
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

// canonicalRole fixes the case of a known role name and returns anything else
// unchanged for the server to reject.
func canonicalRole(s string) string {
	for _, r := range roleNames {
		if strings.EqualFold(r, s) {
			return r
		}
	}
	return s
}

func isRole(s string) bool {
	for _, r := range roleNames {
		if r == s {
			return true
		}
	}
	return false
}
