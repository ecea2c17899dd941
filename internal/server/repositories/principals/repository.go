// Package principals stores staff accounts. Uniqueness of logins and the
// one-privileged-account-per-territory rule are enforced by the store itself
// (unique indexes, or a single lock in the in-memory variant).
package principals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/staffkeeper/internal/common"
	"github.com/dmitrijs2005/staffkeeper/internal/server/models"
)

type Repository interface {
	FindByLogin(ctx context.Context, login string) (*models.Principal, error)
	// FindByName returns the oldest principal with the given names
	// (case-insensitive), used to spot homonyms.
	FindByName(ctx context.Context, givenName, familyName string) (*models.Principal, error)
	// Insert fails with common.ErrDuplicateLogin or a
	// *common.GovernanceConflictError. The Postgres store leaves the holder
	// unnamed, and the territory too when an update did not patch it.
	Insert(ctx context.Context, p *models.Principal) error
	Update(ctx context.Context, login string, patch models.PrincipalPatch) (bool, error)
	// ExtendLock sets locked_until to until unless a later lock is stored.
	// Applying it twice is harmless.
	ExtendLock(ctx context.Context, login string, until time.Time) (bool, error)
	Delete(ctx context.Context, login string) (bool, error)
	PrivilegedInTerritory(ctx context.Context, territory models.Territory) (*models.Principal, error)
	LoginExists(ctx context.Context, login string) (bool, error)
	List(ctx context.Context, filter models.ListFilter) ([]models.Principal, error)
	Count(ctx context.Context) (int, error)
	Rename(ctx context.Context, oldLogin, newLogin string) error
}

// Names of the unique constraints. SQLite reports the column instead.
const (
	loginConstraint      = "principals_login_key"
	governanceConstraint = "principals_territory_privileged_key"
)

type violation int

const (
	noViolation violation = iota
	loginViolation
	governanceViolation
)

// conflictError turns a governance violation into a named conflict by
// looking up the current holder of territory.
func conflictError(ctx context.Context, r Repository, territory models.Territory) error {
	holder, err := r.PrivilegedInTerritory(ctx, territory)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// the holder left between the failed write and the lookup
			return &common.GovernanceConflictError{Territory: string(territory)}
		}
		return fmt.Errorf("governance holder lookup: %w", err)
	}
	return &common.GovernanceConflictError{
		Territory: string(territory),
		Login:     holder.Login,
		Role:      string(holder.Role),
	}
}

// patchTerritory is the territory a patched principal ends up in.
func patchTerritory(ctx context.Context, r Repository, login string, patch models.PrincipalPatch) models.Territory {
	if patch.Territory != nil {
		return *patch.Territory
	}
	if p, err := r.FindByLogin(ctx, login); err == nil {
		return p.Territory
	}
	return ""
}
