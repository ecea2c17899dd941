package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/staffkeeper/internal/access"
	"github.com/dmitrijs2005/staffkeeper/internal/audit"
	"github.com/dmitrijs2005/staffkeeper/internal/common"
	"github.com/dmitrijs2005/staffkeeper/internal/cryptox"
	"github.com/dmitrijs2005/staffkeeper/internal/identity"
	"github.com/dmitrijs2005/staffkeeper/internal/server/config"
	"github.com/dmitrijs2005/staffkeeper/internal/server/models"
	"github.com/dmitrijs2005/staffkeeper/internal/server/repositories/principals"
	"github.com/dmitrijs2005/staffkeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

var loginPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,63}$`)

var (
	// provisionRetries bounds how often a login lost to a concurrent insert
	// is re-resolved.
	provisionRetries uint64 = 5
	provisionBackoff        = 10 * time.Millisecond
)

// NewAccount is a provisioning request.
type NewAccount struct {
	GivenName  string
	FamilyName string
	Territory  models.Territory
	Role       models.Role
}

// Provisioned is the result of ProvisionAccount. TemporaryPassword is shown
// once and never stored. Homonym is an existing account with the same names,
// if any; it does not block creation.
type Provisioned struct {
	Principal         *models.Principal
	TemporaryPassword string
	Homonym           *models.Principal
}

type AccountService struct {
	store
	Deps
	passwordMaxAge   time.Duration
	lockWriteRetries uint64
	oldPassword      failureCounter
}

func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, d Deps) *AccountService {
	d = d.withDefaults()
	d.Log = d.Log.With("module", "accounts")
	return &AccountService{
		store:            store{db: db, repos: m},
		Deps:             d,
		passwordMaxAge:   cfg.PasswordMaxAge,
		lockWriteRetries: lockRetries(cfg.LockWriteRetries),
		oldPassword:      failureCounter{counts: map[string]int{}},
	}
}

// failureCounter tracks consecutive failures per login.
type failureCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *failureCounter) add(login string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[login]++
	return c.counts[login]
}

func (c *failureCounter) reset(login string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, login)
}

func (s *AccountService) done(op string, err error) error {
	s.Metrics.RecordAccountOp(op, err)
	return err
}

// target loads the principal an operation acts on.
func (s *AccountService) target(ctx context.Context, repo principals.Repository, login string) (*models.Principal, error) {
	p, err := repo.FindByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("find %s: %w", login, err)
	}
	return p, nil
}

// checkSeat fails with a GovernanceConflictError when territory already has a
// privileged principal other than except.
func checkSeat(ctx context.Context, repo principals.Repository, territory models.Territory, except string) error {
	holder, err := repo.PrivilegedInTerritory(ctx, territory)
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("governance lookup: %w", err)
	}
	if holder.Login == except {
		return nil
	}
	return &common.GovernanceConflictError{
		Territory: string(territory),
		Login:     holder.Login,
		Role:      string(holder.Role),
	}
}

// nameHolder fills in the holder of a conflict the store reported without
// one. It must run after the failed transaction has ended. A failed lookup
// leaves the conflict unnamed.
func (s *AccountService) nameHolder(ctx context.Context, err error, territory models.Territory) error {
	var gc *common.GovernanceConflictError
	if !errors.As(err, &gc) || gc.Login != "" {
		return err
	}
	if gc.Territory == "" {
		gc.Territory = string(territory)
	}
	holder, lerr := s.principals().PrivilegedInTerritory(ctx, models.Territory(gc.Territory))
	if lerr != nil {
		if !errors.Is(lerr, common.ErrorNotFound) {
			s.Log.Warn(ctx, "governance holder lookup failed", "territory", gc.Territory, "error", lerr)
		}
		return gc
	}
	gc.Login, gc.Role = holder.Login, string(holder.Role)
	return gc
}

func cleanNames(given, family string) (string, string, error) {
	given, family = strings.TrimSpace(given), strings.TrimSpace(family)
	if given == "" {
		return "", "", common.Invalid("given_name", "must not be empty")
	}
	if family == "" {
		return "", "", common.Invalid("family_name", "must not be empty")
	}
	return given, family, nil
}

// ProvisionAccount creates an account with a derived unique login and a
// temporary password that is already expired.
func (s *AccountService) ProvisionAccount(ctx context.Context, actor *models.Principal, req NewAccount) (*Provisioned, error) {
	res, err := s.provision(ctx, actor, req)
	return res, s.done("provision", err)
}

func (s *AccountService) provision(ctx context.Context, actor *models.Principal, req NewAccount) (*Provisioned, error) {
	given, family, err := cleanNames(req.GivenName, req.FamilyName)
	if err != nil {
		return nil, err
	}
	if !req.Territory.Valid() {
		return nil, common.Invalid("territory", "is unknown")
	}
	if !req.Role.Valid() {
		return nil, common.Invalid("role", "is unknown")
	}
	if err := access.CanCreate(actor, req.Role, req.Territory); err != nil {
		return nil, err
	}

	candidate := identity.DeriveLogin(given, family)
	if candidate == "" {
		return nil, common.Invalid("name", "yields an empty login")
	}

	repo := s.principals()

	if req.Role.Privileged() {
		if err := checkSeat(ctx, repo, req.Territory, ""); err != nil {
			return nil, err
		}
	}

	var homonym *models.Principal
	if h, err := repo.FindByName(ctx, given, family); err == nil {
		homonym = h
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("homonym lookup: %w", err)
	}

	temp, err := cryptox.GenerateTemporaryPassword()
	if err != nil {
		return nil, common.ErrorInternal
	}
	cred, err := s.Codec.Hash(temp)
	if err != nil {
		return nil, common.ErrorInternal
	}

	now := s.Now().UTC()
	p := &models.Principal{
		ID:             uuid.NewString(),
		GivenName:      given,
		FamilyName:     family,
		Territory:      req.Territory,
		Role:           req.Role,
		Credential:     cred,
		PasswordExpiry: now,
		CreatedAt:      now,
	}

	b := retry.WithMaxRetries(provisionRetries, retry.NewConstant(provisionBackoff))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		login, err := identity.ResolveUniqueLogin(ctx, candidate, repo.LoginExists)
		if err != nil {
			return err
		}
		p.Login = login
		err = repo.Insert(ctx, p)
		if errors.Is(err, common.ErrDuplicateLogin) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, s.nameHolder(ctx, err, req.Territory)
	}

	s.Log.Info(ctx, "account created", "actor", actor.Login, "login", p.Login, "role", string(p.Role), "territory", string(p.Territory))
	record(ctx, s.Audit, s.Log, audit.NewEvent(audit.AccountCreated, actor.Login, p.Login).
		With("role", string(p.Role)).
		With("territory", string(p.Territory)))

	return &Provisioned{Principal: p, TemporaryPassword: temp, Homonym: homonym}, nil
}

// ChangePassword replaces login's password after checking the old one. The
// new password is validated first, so "admin" to "admin" is rejected as a
// validation error whatever the stored password is.
func (s *AccountService) ChangePassword(ctx context.Context, login, oldPassword, newPassword string) error {
	return s.done("change_password", s.changePassword(ctx, login, oldPassword, newPassword))
}

func (s *AccountService) changePassword(ctx context.Context, login, oldPassword, newPassword string) error {
	if newPassword == oldPassword {
		return common.Invalid("new_password", "must differ from the current password")
	}
	if utf8.RuneCountInString(newPassword) < common.MinPasswordLength {
		return common.Invalid("new_password", fmt.Sprintf("must be at least %d characters", common.MinPasswordLength))
	}

	repo := s.principals()
	p, err := repo.FindByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return &common.CredentialError{}
		}
		return fmt.Errorf("find %s: %w", login, err)
	}
	if d := s.Policy.CheckAccess(p.LockedUntil, s.Now()); !d.Allowed {
		return &common.LockedError{Remaining: d.Remaining, Persisted: true}
	}
	if !s.Codec.Verify(oldPassword, p.Credential) {
		return s.oldPasswordFailed(ctx, repo, p)
	}
	s.oldPassword.reset(login)

	cred, err := s.Codec.Hash(newPassword)
	if err != nil {
		return common.ErrorInternal
	}
	expiry := s.Now().UTC().Add(s.passwordMaxAge)
	ok, err := repo.Update(ctx, login, models.PrincipalPatch{Credential: &cred, PasswordExpiry: &expiry})
	if err != nil {
		return fmt.Errorf("update %s: %w", login, err)
	}
	if !ok {
		return common.ErrorNotFound
	}

	record(ctx, s.Audit, s.Log, audit.NewEvent(audit.PasswordChanged, login, login))
	return nil
}

// oldPasswordFailed counts a wrong current password. MaxAttempts consecutive
// failures lock the account the same way a failed login session does.
func (s *AccountService) oldPasswordFailed(ctx context.Context, repo principals.Repository, p *models.Principal) error {
	remaining := s.Policy.MaxAttempts() - s.oldPassword.add(p.Login)
	record(ctx, s.Audit, s.Log, audit.NewEvent(audit.LoginFailed, "", p.Login).
		With("via", "change_password").
		With("attempts_remaining", fmt.Sprint(max(remaining, 0))))
	if remaining > 0 {
		return &common.CredentialError{AttemptsRemaining: remaining}
	}
	s.oldPassword.reset(p.Login)
	return s.persistLock(ctx, repo, p, s.lockWriteRetries)
}

// ResetPassword gives target a new temporary password and returns it.
func (s *AccountService) ResetPassword(ctx context.Context, actor *models.Principal, login string) (string, error) {
	temp, err := s.resetPassword(ctx, actor, login)
	return temp, s.done("reset_password", err)
}

func (s *AccountService) resetPassword(ctx context.Context, actor *models.Principal, login string) (string, error) {
	repo := s.principals()
	t, err := s.target(ctx, repo, login)
	if err != nil {
		return "", err
	}
	if err := access.CanResetPassword(actor, t); err != nil {
		return "", err
	}

	temp, err := cryptox.GenerateTemporaryPassword()
	if err != nil {
		return "", common.ErrorInternal
	}
	cred, err := s.Codec.Hash(temp)
	if err != nil {
		return "", common.ErrorInternal
	}
	expiry := s.Now().UTC()
	if _, err := repo.Update(ctx, login, models.PrincipalPatch{Credential: &cred, PasswordExpiry: &expiry}); err != nil {
		return "", fmt.Errorf("update %s: %w", login, err)
	}

	record(ctx, s.Audit, s.Log, audit.NewEvent(audit.PasswordReset, actor.Login, login))
	return temp, nil
}

// ChangeRole moves target to role. Promotions into a privileged role are
// checked against the territory's seat first; the store enforces it again.
func (s *AccountService) ChangeRole(ctx context.Context, actor *models.Principal, login string, role models.Role) error {
	return s.done("change_role", s.changeRole(ctx, actor, login, role))
}

func (s *AccountService) changeRole(ctx context.Context, actor *models.Principal, login string, role models.Role) error {
	if !role.Valid() {
		return common.Invalid("role", "is unknown")
	}

	var (
		from      models.Role
		territory models.Territory
	)
	err := s.inTx(ctx, func(ctx context.Context, repo principals.Repository) error {
		t, err := s.target(ctx, repo, login)
		if err != nil {
			return err
		}
		if err := access.CanChangeRole(actor, t, role); err != nil {
			return err
		}
		from, territory = t.Role, t.Territory
		if role == t.Role {
			return nil
		}
		if role.Privileged() {
			if err := checkSeat(ctx, repo, t.Territory, t.Login); err != nil {
				return err
			}
		}
		_, err = repo.Update(ctx, login, models.PrincipalPatch{Role: &role})
		return err
	})
	if err != nil {
		return s.nameHolder(ctx, err, territory)
	}
	if from == role {
		return nil
	}

	record(ctx, s.Audit, s.Log, audit.NewEvent(audit.RoleChanged, actor.Login, login).
		With("from", string(from)).
		With("to", string(role)))
	return nil
}

// DeleteAccount removes target.
func (s *AccountService) DeleteAccount(ctx context.Context, actor *models.Principal, login string) error {
	return s.done("delete", s.deleteAccount(ctx, actor, login))
}

func (s *AccountService) deleteAccount(ctx context.Context, actor *models.Principal, login string) error {
	repo := s.principals()
	t, err := s.target(ctx, repo, login)
	if err != nil {
		return err
	}
	if err := access.CanDelete(actor, t); err != nil {
		return err
	}
	ok, err := repo.Delete(ctx, login)
	if err != nil {
		return fmt.Errorf("delete %s: %w", login, err)
	}
	if !ok {
		return common.ErrorNotFound
	}

	s.Log.Info(ctx, "account deleted", "actor", actor.Login, "login", login)
	record(ctx, s.Audit, s.Log, audit.NewEvent(audit.AccountDeleted, actor.Login, login).
		With("role", string(t.Role)))
	return nil
}

// UpdateNames changes target's given and family names. The login is kept.
func (s *AccountService) UpdateNames(ctx context.Context, actor *models.Principal, login, given, family string) error {
	return s.done("update_names", s.updateNames(ctx, actor, login, given, family))
}

func (s *AccountService) updateNames(ctx context.Context, actor *models.Principal, login, given, family string) error {
	given, family, err := cleanNames(given, family)
	if err != nil {
		return err
	}
	repo := s.principals()
	t, err := s.target(ctx, repo, login)
	if err != nil {
		return err
	}
	if err := access.CanEdit(actor, t); err != nil {
		return err
	}
	if _, err := repo.Update(ctx, login, models.PrincipalPatch{GivenName: &given, FamilyName: &family}); err != nil {
		return fmt.Errorf("update %s: %w", login, err)
	}

	record(ctx, s.Audit, s.Log, audit.NewEvent(audit.NamesUpdated, actor.Login, login))
	return nil
}

// ChangeTerritory moves target to territory. A privileged target takes its
// seat with it, so the new territory must not have one already.
func (s *AccountService) ChangeTerritory(ctx context.Context, actor *models.Principal, login string, territory models.Territory) error {
	return s.done("change_territory", s.changeTerritory(ctx, actor, login, territory))
}

func (s *AccountService) changeTerritory(ctx context.Context, actor *models.Principal, login string, territory models.Territory) error {
	if !territory.Valid() {
		return common.Invalid("territory", "is unknown")
	}

	var from models.Territory
	err := s.inTx(ctx, func(ctx context.Context, repo principals.Repository) error {
		t, err := s.target(ctx, repo, login)
		if err != nil {
			return err
		}
		if err := access.CanAssignTerritory(actor, t, territory); err != nil {
			return err
		}
		from = t.Territory
		if territory == t.Territory {
			return nil
		}
		if t.Role.Privileged() {
			if err := checkSeat(ctx, repo, territory, t.Login); err != nil {
				return err
			}
		}
		_, err = repo.Update(ctx, login, models.PrincipalPatch{Territory: &territory})
		return err
	})
	if err != nil {
		return s.nameHolder(ctx, err, territory)
	}
	if from == territory {
		return nil
	}

	record(ctx, s.Audit, s.Log, audit.NewEvent(audit.TerritoryChanged, actor.Login, login).
		With("from", string(from)).
		With("to", string(territory)))
	return nil
}

// RenameLogin replaces a login. Logins are lower-case letters, digits, dots,
// dashes and underscores.
func (s *AccountService) RenameLogin(ctx context.Context, actor *models.Principal, oldLogin, newLogin string) error {
	return s.done("rename", s.renameLogin(ctx, actor, oldLogin, newLogin))
}

func (s *AccountService) renameLogin(ctx context.Context, actor *models.Principal, oldLogin, newLogin string) error {
	newLogin = strings.TrimSpace(newLogin)
	if !loginPattern.MatchString(newLogin) {
		return common.Invalid("login", "must be lower-case letters, digits, '.', '-' or '_'")
	}
	repo := s.principals()
	t, err := s.target(ctx, repo, oldLogin)
	if err != nil {
		return err
	}
	if err := access.CanRename(actor, t); err != nil {
		return err
	}
	if newLogin == oldLogin {
		return nil
	}
	if err := repo.Rename(ctx, oldLogin, newLogin); err != nil {
		return err
	}

	record(ctx, s.Audit, s.Log, audit.NewEvent(audit.LoginRenamed, actor.Login, newLogin).
		With("from", oldLogin))
	return nil
}

// ListAccounts returns the accounts actor may see, ordered by login.
func (s *AccountService) ListAccounts(ctx context.Context, actor *models.Principal, filter models.ListFilter) ([]models.Principal, error) {
	territory, err := access.ListScope(actor, filter.Territory)
	if err != nil {
		return nil, err
	}
	filter.Territory = territory
	list, err := s.principals().List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	return list, nil
}

// FindAccount returns one account if actor may view it.
func (s *AccountService) FindAccount(ctx context.Context, actor *models.Principal, login string) (*models.Principal, error) {
	t, err := s.target(ctx, s.principals(), login)
	if err != nil {
		return nil, err
	}
	if err := access.CanView(actor, t); err != nil {
		return nil, err
	}
	return t, nil
}
