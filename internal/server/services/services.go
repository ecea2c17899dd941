// Package services contains server-side business logic: authentication with
// lockout (AuthService) and account management under the access matrix
// (AccountService).
package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/staffkeeper/internal/audit"
	"github.com/dmitrijs2005/staffkeeper/internal/common"
	"github.com/dmitrijs2005/staffkeeper/internal/cryptox"
	"github.com/dmitrijs2005/staffkeeper/internal/dbx"
	"github.com/dmitrijs2005/staffkeeper/internal/lockout"
	"github.com/dmitrijs2005/staffkeeper/internal/logging"
	"github.com/dmitrijs2005/staffkeeper/internal/metrics"
	"github.com/dmitrijs2005/staffkeeper/internal/server/models"
	"github.com/dmitrijs2005/staffkeeper/internal/server/repositories/principals"
	"github.com/dmitrijs2005/staffkeeper/internal/server/repositories/repomanager"
	"github.com/sethvargo/go-retry"
)

var (
	// lockRetryBase is the first backoff step of lock writes. Seam for tests.
	lockRetryBase = 50 * time.Millisecond
	// lockWriteTimeout bounds a lock write, which outlives the caller's context.
	lockWriteTimeout = 5 * time.Second
)

// Deps are the collaborators shared by the services. Nil fields get no-op
// defaults, Now defaults to time.Now.
type Deps struct {
	Codec   *cryptox.Codec
	Policy  lockout.Policy
	Audit   audit.Sink
	Metrics metrics.Recorder
	Log     logging.Logger
	Now     func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Codec == nil {
		d.Codec, _ = cryptox.NewCodec(cryptox.DefaultParams())
	}
	if d.Audit == nil {
		d.Audit = audit.Discard{}
	}
	if d.Metrics == nil {
		d.Metrics = metrics.Nop{}
	}
	if d.Log == nil {
		d.Log = logging.Nop{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Policy.MaxAttempts() == 0 {
		d.Policy = lockout.NewPolicy()
	}
	return d
}

// persistLock writes the lock for p and returns the LockedError for the
// caller. The write survives cancellation of ctx and is retried with backoff;
// a final failure is escalated but the caller still sees the account as locked.
func (d Deps) persistLock(ctx context.Context, repo principals.Repository, p *models.Principal, retries uint64) error {
	now := d.Now()
	until := lockout.Later(p.LockedUntil, d.Policy.LockUntil(now))

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lockWriteTimeout)
	defer cancel()

	b := retry.WithMaxRetries(retries, retry.NewExponential(lockRetryBase))
	err := retry.Do(writeCtx, b, func(ctx context.Context) error {
		if _, err := repo.ExtendLock(ctx, p.Login, until); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})

	remaining := until.Sub(now)
	if err != nil {
		d.Metrics.RecordLockWriteFailure()
		d.Log.Error(ctx, "lock write failed", "login", p.Login, "until", until, "error", err)
		record(ctx, d.Audit, d.Log, audit.NewEvent(audit.LockWriteFailed, "", p.Login).
			With("until", until.Format(time.RFC3339)).
			With("error", err.Error()))
		return &common.LockedError{Remaining: remaining}
	}

	d.Metrics.RecordLockout()
	d.Log.Warn(ctx, "account locked", "login", p.Login, "until", until)
	record(ctx, d.Audit, d.Log, audit.NewEvent(audit.AccountLocked, "", p.Login).
		With("until", until.Format(time.RFC3339)))
	return &common.LockedError{Remaining: remaining, Persisted: true}
}

// lockRetries converts the configured retry count.
func lockRetries(n int) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}

// store bundles the database handle with the repository manager.
type store struct {
	db    *sql.DB
	repos repomanager.RepositoryManager
}

func (s store) principals() principals.Repository {
	return s.repos.Principals(s.db)
}

// inTx runs fn in a transaction when there is a database, directly otherwise.
func (s store) inTx(ctx context.Context, fn func(ctx context.Context, repo principals.Repository) error) error {
	if s.db == nil {
		return fn(ctx, s.repos.Principals(nil))
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, s.repos.Principals(tx))
	})
}

// record sends e to the audit sink. Delivery problems are logged, never
// returned: the operation itself already happened.
func record(ctx context.Context, sink audit.Sink, log logging.Logger, e audit.Event) {
	if err := sink.Record(ctx, e); err != nil {
		log.Warn(ctx, "audit record failed", "kind", string(e.Kind), "error", err)
	}
}
