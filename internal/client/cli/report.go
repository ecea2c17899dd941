package cli

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/staffkeeper/internal/client/client"
	"github.com/dmitrijs2005/staffkeeper/internal/common"
	"github.com/dmitrijs2005/staffkeeper/internal/lockout"
)

var errPasswordMismatch = errors.New("passwords do not match")

// describe turns a command error into the line shown to the user.
func describe(err error) string {
	var (
		locked     *common.LockedError
		credential *common.CredentialError
		governance *common.GovernanceConflictError
		denied     *common.AuthorizationError
		invalid    *common.ValidationError
	)

	switch {
	case errors.As(err, &locked):
		return fmt.Sprintf("Account locked, try again in %s", lockout.Clock(locked.Remaining))
	case errors.As(err, &credential):
		return "Invalid login or password"
	case errors.As(err, &governance):
		return fmt.Sprintf("Territory %s is already governed by %s (%s)", governance.Territory, governance.Login, governance.Role)
	case errors.As(err, &denied):
		return fmt.Sprintf("Not allowed (%s)", denied.Rule)
	case errors.As(err, &invalid):
		return fmt.Sprintf("Invalid %s: %s", invalid.Field, invalid.Reason)
	case errors.Is(err, common.ErrorNotFound):
		return "No such account"
	case errors.Is(err, common.ErrDuplicateLogin):
		return "Login already taken"
	case errors.Is(err, errPasswordMismatch):
		return "Passwords do not match"
	case errors.Is(err, client.ErrLoginAborted):
		return "Login aborted"
	case errors.Is(err, client.ErrUnauthorized):
		return "Session expired, please login again"
	case errors.Is(err, client.ErrRateLimited):
		return "Too many login attempts, wait a moment"
	case errors.Is(err, client.ErrUnavailable):
		return "Server unavailable"
	default:
		return "Error: " + err.Error()
	}
}

// fail reports err. An expired session is dropped so the prompt reflects it.
func (a *App) fail(err error) {
	if errors.Is(err, client.ErrUnauthorized) {
		a.client.Logout()
	}
	fmt.Fprintln(a.out, describe(err))
}
