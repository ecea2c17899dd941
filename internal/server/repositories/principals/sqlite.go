package principals

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/staffkeeper/internal/common"
	"github.com/dmitrijs2005/staffkeeper/internal/dbx"
	"github.com/dmitrijs2005/staffkeeper/internal/server/models"
)

// SQLiteRepository keeps times as unix nanoseconds so that lock comparisons
// are plain integer comparisons.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func toUnix(t time.Time) int64 { return t.UTC().UnixNano() }

func fromUnix(n int64) time.Time { return time.Unix(0, n).UTC() }

func scanSQLite(row rowScanner) (*models.Principal, error) {
	var (
		p               models.Principal
		expiry, created int64
		lockedUntil     sql.NullInt64
	)
	err := row.Scan(&p.ID, &p.Login, &p.GivenName, &p.FamilyName, &p.Territory, &p.Role,
		&p.Credential.Digest, &p.Credential.Salt, &expiry, &lockedUntil, &created)
	if err != nil {
		return nil, err
	}
	p.PasswordExpiry = fromUnix(expiry)
	p.CreatedAt = fromUnix(created)
	if lockedUntil.Valid {
		t := fromUnix(lockedUntil.Int64)
		p.LockedUntil = &t
	}
	return &p, nil
}

func classifySQLite(err error) violation {
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return noViolation
	}
	switch {
	case strings.Contains(msg, "principals.login"):
		return loginViolation
	case strings.Contains(msg, "principals.territory"):
		return governanceViolation
	}
	return noViolation
}

func (r *SQLiteRepository) findOne(ctx context.Context, query string, args ...any) (*models.Principal, error) {
	p, err := scanSQLite(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *SQLiteRepository) FindByLogin(ctx context.Context, login string) (*models.Principal, error) {
	return r.findOne(ctx, `SELECT `+pgColumns+` FROM principals WHERE login = ?`, login)
}

func (r *SQLiteRepository) FindByName(ctx context.Context, givenName, familyName string) (*models.Principal, error) {
	query := `SELECT ` + pgColumns + ` FROM principals
		 WHERE lower(given_name) = lower(?) AND lower(family_name) = lower(?)
		 ORDER BY created_at LIMIT 1`
	return r.findOne(ctx, query, givenName, familyName)
}

func (r *SQLiteRepository) PrivilegedInTerritory(ctx context.Context, territory models.Territory) (*models.Principal, error) {
	query := `SELECT ` + pgColumns + ` FROM principals
		 WHERE territory = ? AND role IN ('Admin', 'SuperAdmin')
		 LIMIT 1`
	return r.findOne(ctx, query, string(territory))
}

func (r *SQLiteRepository) Insert(ctx context.Context, p *models.Principal) error {
	query := `INSERT INTO principals (` + pgColumns + `)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var locked any
	if p.LockedUntil != nil {
		locked = toUnix(*p.LockedUntil)
	}

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.Login, p.GivenName, p.FamilyName, string(p.Territory), string(p.Role),
		p.Credential.Digest, p.Credential.Salt, toUnix(p.PasswordExpiry), locked, toUnix(p.CreatedAt))
	if err != nil {
		switch classifySQLite(err) {
		case loginViolation:
			return common.ErrDuplicateLogin
		case governanceViolation:
			return conflictError(ctx, r, p.Territory)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Update(ctx context.Context, login string, patch models.PrincipalPatch) (bool, error) {
	if patch.Empty() {
		return r.LoginExists(ctx, login)
	}

	var (
		sets []string
		args []any
	)
	add := func(column string, v any) {
		sets = append(sets, column+" = ?")
		args = append(args, v)
	}
	if patch.GivenName != nil {
		add("given_name", *patch.GivenName)
	}
	if patch.FamilyName != nil {
		add("family_name", *patch.FamilyName)
	}
	if patch.Territory != nil {
		add("territory", string(*patch.Territory))
	}
	if patch.Role != nil {
		add("role", string(*patch.Role))
	}
	if patch.Credential != nil {
		add("password_digest", patch.Credential.Digest)
		add("password_salt", patch.Credential.Salt)
	}
	if patch.PasswordExpiry != nil {
		add("password_expiry", toUnix(*patch.PasswordExpiry))
	}
	args = append(args, login)

	res, err := r.db.ExecContext(ctx, `UPDATE principals SET `+strings.Join(sets, ", ")+` WHERE login = ?`, args...)
	if err != nil {
		if classifySQLite(err) == governanceViolation {
			return false, conflictError(ctx, r, patchTerritory(ctx, r, login, patch))
		}
		return false, fmt.Errorf("db error: %w", err)
	}
	return affected(res)
}

func (r *SQLiteRepository) ExtendLock(ctx context.Context, login string, until time.Time) (bool, error) {
	query := `UPDATE principals SET locked_until = ?2
		 WHERE login = ?1 AND (locked_until IS NULL OR locked_until < ?2)`

	res, err := r.db.ExecContext(ctx, query, login, toUnix(until))
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return affected(res)
}

func (r *SQLiteRepository) Delete(ctx context.Context, login string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM principals WHERE login = ?`, login)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return affected(res)
}

func (r *SQLiteRepository) LoginExists(ctx context.Context, login string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM principals WHERE login = ?)`, login).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *SQLiteRepository) List(ctx context.Context, filter models.ListFilter) ([]models.Principal, error) {
	query := `SELECT ` + pgColumns + ` FROM principals
		 WHERE (?1 = '' OR territory = ?1) AND (?2 = '' OR role = ?2)
		 ORDER BY login`

	rows, err := r.db.QueryContext(ctx, query, string(filter.Territory), string(filter.Role))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.Principal
	for rows.Next() {
		p, err := scanSQLite(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM principals`).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Rename(ctx context.Context, oldLogin, newLogin string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE principals SET login = ? WHERE login = ?`, newLogin, oldLogin)
	if err != nil {
		if classifySQLite(err) == loginViolation {
			return common.ErrDuplicateLogin
		}
		return fmt.Errorf("db error: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrorNotFound
	}
	return nil
}
