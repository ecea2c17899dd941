package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/staffkeeper/internal/audit"
	"github.com/dmitrijs2005/staffkeeper/internal/common"
	"github.com/dmitrijs2005/staffkeeper/internal/server/models"
	"github.com/dmitrijs2005/staffkeeper/internal/server/repositories/principals"
	"github.com/google/uuid"
)

// Initial SuperAdmin created on an empty store. The password is expired from
// the start so the first login is told to change it.
const (
	BootstrapLogin     = "superadmin"
	BootstrapPassword  = "admin"
	BootstrapTerritory = models.Paris
)

// EnsureSuperAdmin creates the initial SuperAdmin when the store is empty and
// reports whether it did.
func (s *AccountService) EnsureSuperAdmin(ctx context.Context) (bool, error) {
	created := false
	err := s.inTx(ctx, func(ctx context.Context, repo principals.Repository) error {
		n, err := repo.Count(ctx)
		if err != nil {
			return fmt.Errorf("count principals: %w", err)
		}
		if n > 0 {
			return nil
		}

		cred, err := s.Codec.Hash(BootstrapPassword)
		if err != nil {
			return common.ErrorInternal
		}
		now := s.Now().UTC()
		err = repo.Insert(ctx, &models.Principal{
			ID:             uuid.NewString(),
			Login:          BootstrapLogin,
			GivenName:      "Super",
			FamilyName:     "Admin",
			Territory:      BootstrapTerritory,
			Role:           models.RoleSuperAdmin,
			Credential:     cred,
			PasswordExpiry: now,
			CreatedAt:      now,
		})
		if err != nil {
			return err
		}
		created = true
		return nil
	})
	// another instance got there first; the failed insert was rolled back
	if errors.Is(err, common.ErrDuplicateLogin) || errors.Is(err, common.ErrGovernanceConflict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if created {
		s.Log.Warn(ctx, "initial superadmin created, change its password", "login", BootstrapLogin)
		record(ctx, s.Audit, s.Log, audit.NewEvent(audit.Bootstrapped, "", BootstrapLogin))
	}
	return created, nil
}
