package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/staffkeeper/internal/audit"
	"github.com/dmitrijs2005/staffkeeper/internal/common"
	"github.com/dmitrijs2005/staffkeeper/internal/lockout"
	"github.com/dmitrijs2005/staffkeeper/internal/metrics"
	"github.com/dmitrijs2005/staffkeeper/internal/server/auth"
	"github.com/dmitrijs2005/staffkeeper/internal/server/config"
	"github.com/dmitrijs2005/staffkeeper/internal/server/models"
	"github.com/dmitrijs2005/staffkeeper/internal/server/repositories/principals"
	"github.com/dmitrijs2005/staffkeeper/internal/server/repositories/repomanager"
)

// ErrSupplierClosed is returned by a PasswordSupplier whose caller went away.
var ErrSupplierClosed = errors.New("password supplier closed")

// Prompt describes the attempt a PasswordSupplier is asked for.
type Prompt struct {
	Login             string
	Attempt           int
	AttemptsRemaining int
}

// PasswordSupplier yields the next password candidate. It is called at most
// MaxAttempts times per authentication.
type PasswordSupplier func(ctx context.Context, p Prompt) (string, error)

// AuthResult is a successful authentication. PasswordExpired is informational.
type AuthResult struct {
	Principal       *models.Principal
	PasswordExpired bool
	AttemptsUsed    int
}

type AuthService struct {
	store
	Deps
	jwtSecret        []byte
	accessTokenTTL   time.Duration
	lockWriteRetries uint64
}

func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, d Deps) *AuthService {
	d = d.withDefaults()
	d.Log = d.Log.With("module", "auth")
	return &AuthService{
		store:            store{db: db, repos: m},
		Deps:             d,
		jwtSecret:        []byte(cfg.SecretKey),
		accessTokenTTL:   cfg.AccessTokenTTL,
		lockWriteRetries: lockRetries(cfg.LockWriteRetries),
	}
}

// Authenticate runs one login session for login, asking supplier for up to
// MaxAttempts passwords. Unknown logins go through the same loop against a
// dummy credential and end in the same CredentialError as a wrong password.
func (s *AuthService) Authenticate(ctx context.Context, login string, supplier PasswordSupplier) (*AuthResult, error) {
	started := s.Now()
	defer func() { s.Metrics.RecordLoginDuration(s.Now().Sub(started)) }()

	repo := s.principals()

	p, err := repo.FindByLogin(ctx, login)
	known := err == nil
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		s.Metrics.RecordLogin(metrics.OutcomeInternal)
		return nil, fmt.Errorf("find principal: %w", err)
	}

	cred := s.Codec.Dummy()
	if known {
		if d := s.Policy.CheckAccess(p.LockedUntil, s.Now()); !d.Allowed {
			s.Metrics.RecordLogin(metrics.OutcomeLocked)
			record(ctx, s.Audit, s.Log, audit.NewEvent(audit.LoginRejectedLocked, "", login).
				With("remaining", d.Remaining.Round(time.Second).String()))
			return nil, &common.LockedError{Remaining: d.Remaining, Persisted: true}
		}
		cred = p.Credential
	}

	session := s.Policy.NewSession()
	for !session.Exhausted() {
		password, err := supplier(ctx, Prompt{
			Login:             login,
			Attempt:           session.Attempt(),
			AttemptsRemaining: session.Remaining(),
		})
		if err != nil {
			if errors.Is(err, ErrSupplierClosed) || errors.Is(err, io.EOF) {
				s.Metrics.RecordLogin(metrics.OutcomeAborted)
				return nil, &common.CredentialError{AttemptsRemaining: session.Remaining()}
			}
			s.Metrics.RecordLogin(metrics.OutcomeInternal)
			return nil, err
		}

		// verify even for unknown logins so both paths cost the same
		if s.Codec.Verify(password, cred) && known {
			return s.succeed(ctx, repo, p, password, session.Attempt()), nil
		}

		outcome := session.RecordFailure()
		if known {
			record(ctx, s.Audit, s.Log, audit.NewEvent(audit.LoginFailed, "", login).
				With("attempts_remaining", fmt.Sprint(session.Remaining())))
		}
		if outcome == lockout.Lockout {
			break
		}
	}

	if !known {
		s.Metrics.RecordLogin(metrics.OutcomeUnknown)
		s.Log.Info(ctx, "login failed for unknown account")
		return nil, &common.CredentialError{}
	}

	s.Metrics.RecordLogin(metrics.OutcomeFailure)
	return nil, s.lock(ctx, repo, p)
}

func (s *AuthService) succeed(ctx context.Context, repo principals.Repository, p *models.Principal, password string, attempts int) *AuthResult {
	if s.Codec.NeedsRehash(p.Credential) {
		s.rehash(ctx, repo, p, password)
	}

	now := s.Now()
	s.Metrics.RecordLogin(metrics.OutcomeSuccess)
	record(ctx, s.Audit, s.Log, audit.NewEvent(audit.LoginSucceeded, p.Login, p.Login))
	s.Log.Info(ctx, "login succeeded", "login", p.Login, "attempts", attempts)

	return &AuthResult{
		Principal:       p,
		PasswordExpired: p.PasswordExpired(now),
		AttemptsUsed:    attempts,
	}
}

// rehash upgrades a credential stored with outdated parameters. Failures are
// logged; the login already succeeded.
func (s *AuthService) rehash(ctx context.Context, repo principals.Repository, p *models.Principal, password string) {
	cred, err := s.Codec.Hash(password)
	if err != nil {
		s.Log.Warn(ctx, "rehash failed", "login", p.Login, "error", err)
		return
	}
	if _, err := repo.Update(ctx, p.Login, models.PrincipalPatch{Credential: &cred}); err != nil {
		s.Log.Warn(ctx, "rehash failed", "login", p.Login, "error", err)
		return
	}
	p.Credential = cred
	s.Log.Info(ctx, "credential upgraded", "login", p.Login, "scheme", string(s.Codec.Scheme()))
}

// lock persists a lockout for p. See Deps.persistLock.
func (s *AuthService) lock(ctx context.Context, repo principals.Repository, p *models.Principal) error {
	return s.persistLock(ctx, repo, p, s.lockWriteRetries)
}

// IssueToken mints an access token for an authenticated principal.
func (s *AuthService) IssueToken(p *models.Principal) (string, error) {
	token, err := auth.GenerateToken(p.Login, string(p.Role), s.jwtSecret, s.accessTokenTTL)
	if err != nil {
		return "", common.ErrorInternal
	}
	return token, nil
}

// Actor resolves the principal behind an access token. The role comes from
// the store, not from the token, so demotions apply immediately.
func (s *AuthService) Actor(ctx context.Context, token string) (*models.Principal, error) {
	claims, err := auth.ParseToken(token, s.jwtSecret)
	if err != nil {
		return nil, err
	}
	p, err := s.principals().FindByLogin(ctx, claims.Login)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("find actor: %w", err)
	}
	return p, nil
}
