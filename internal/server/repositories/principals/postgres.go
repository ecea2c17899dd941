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
	"github.com/jackc/pgx/v5/pgconn"
)

const pgColumns = `id, login, given_name, family_name, territory, role, password_digest, password_salt, password_expiry, locked_until, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPostgres(row rowScanner) (*models.Principal, error) {
	var (
		p           models.Principal
		lockedUntil sql.NullTime
	)
	err := row.Scan(&p.ID, &p.Login, &p.GivenName, &p.FamilyName, &p.Territory, &p.Role,
		&p.Credential.Digest, &p.Credential.Salt, &p.PasswordExpiry, &lockedUntil, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.PasswordExpiry = p.PasswordExpiry.UTC()
	p.CreatedAt = p.CreatedAt.UTC()
	if lockedUntil.Valid {
		t := lockedUntil.Time.UTC()
		p.LockedUntil = &t
	}
	return &p, nil
}

func classifyPostgres(err error) violation {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return noViolation
	}
	switch pgErr.ConstraintName {
	case loginConstraint:
		return loginViolation
	case governanceConstraint:
		return governanceViolation
	}
	return noViolation
}

// pgConflict reports a governance violation without naming the holder. The
// failed statement has aborted any surrounding transaction, so no lookup can
// run on r until it is rolled back; callers name the holder afterwards.
func pgConflict(territory *models.Territory) error {
	gc := &common.GovernanceConflictError{}
	if territory != nil {
		gc.Territory = string(*territory)
	}
	return gc
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, args ...any) (*models.Principal, error) {
	p, err := scanPostgres(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) FindByLogin(ctx context.Context, login string) (*models.Principal, error) {
	query := `SELECT ` + pgColumns + ` FROM principals
		 WHERE login = $1`
	return r.findOne(ctx, query, login)
}

func (r *PostgresRepository) FindByName(ctx context.Context, givenName, familyName string) (*models.Principal, error) {
	query := `SELECT ` + pgColumns + ` FROM principals
		 WHERE lower(given_name) = lower($1) AND lower(family_name) = lower($2)
		 ORDER BY created_at LIMIT 1`
	return r.findOne(ctx, query, givenName, familyName)
}

func (r *PostgresRepository) PrivilegedInTerritory(ctx context.Context, territory models.Territory) (*models.Principal, error) {
	query := `SELECT ` + pgColumns + ` FROM principals
		 WHERE territory = $1 AND role IN ('Admin', 'SuperAdmin')
		 LIMIT 1`
	return r.findOne(ctx, query, string(territory))
}

func (r *PostgresRepository) Insert(ctx context.Context, p *models.Principal) error {
	query := `INSERT INTO principals (` + pgColumns + `)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.Login, p.GivenName, p.FamilyName, string(p.Territory), string(p.Role),
		p.Credential.Digest, p.Credential.Salt, p.PasswordExpiry.UTC(), p.LockedUntil, p.CreatedAt.UTC())
	if err != nil {
		switch classifyPostgres(err) {
		case loginViolation:
			return common.ErrDuplicateLogin
		case governanceViolation:
			return pgConflict(&p.Territory)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, login string, patch models.PrincipalPatch) (bool, error) {
	if patch.Empty() {
		return r.LoginExists(ctx, login)
	}

	var (
		sets []string
		args []any
	)
	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
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
		add("password_expiry", patch.PasswordExpiry.UTC())
	}
	args = append(args, login)

	query := fmt.Sprintf(`UPDATE principals SET %s WHERE login = $%d`, strings.Join(sets, ", "), len(args))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if classifyPostgres(err) == governanceViolation {
			return false, pgConflict(patch.Territory)
		}
		return false, fmt.Errorf("db error: %w", err)
	}
	return affected(res)
}

func (r *PostgresRepository) ExtendLock(ctx context.Context, login string, until time.Time) (bool, error) {
	query := `UPDATE principals SET locked_until = $2
		 WHERE login = $1 AND (locked_until IS NULL OR locked_until < $2)`

	res, err := r.db.ExecContext(ctx, query, login, until.UTC())
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return affected(res)
}

func (r *PostgresRepository) Delete(ctx context.Context, login string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM principals WHERE login = $1`, login)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return affected(res)
}

func (r *PostgresRepository) LoginExists(ctx context.Context, login string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM principals WHERE login = $1)`, login).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) List(ctx context.Context, filter models.ListFilter) ([]models.Principal, error) {
	query := `SELECT ` + pgColumns + ` FROM principals
		 WHERE ($1 = '' OR territory = $1) AND ($2 = '' OR role = $2)
		 ORDER BY login`

	rows, err := r.db.QueryContext(ctx, query, string(filter.Territory), string(filter.Role))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.Principal
	for rows.Next() {
		p, err := scanPostgres(rows)
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

func (r *PostgresRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM principals`).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Rename(ctx context.Context, oldLogin, newLogin string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE principals SET login = $2 WHERE login = $1`, oldLogin, newLogin)
	if err != nil {
		if classifyPostgres(err) == loginViolation {
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

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}
