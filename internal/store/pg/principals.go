package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/authcore/internal/domain/repository"
)

type principalRepo struct {
	pool *pgxpool.Pool
}

const principalCols = `id, email, name, password_hash, roles,
	totp_secret, totp_enabled, totp_last_used_counter,
	last_login_at, disabled_at, created_at`

func scanPrincipal(row interface{ Scan(dest ...any) error }) (*repository.Principal, error) {
	var p repository.Principal
	err := row.Scan(
		&p.ID, &p.Email, &p.Name, &p.PasswordHash, &p.Roles,
		&p.TotpSecret, &p.TotpEnabled, &p.TotpLastUsedCounter,
		&p.LastLoginAt, &p.DisabledAt, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *principalRepo) GetByEmail(ctx context.Context, email string) (*repository.Principal, error) {
	q := `SELECT ` + principalCols + ` FROM principals WHERE lower(email) = lower($1)`
	p, err := scanPrincipal(r.pool.QueryRow(ctx, q, email))
	if err != nil {
		return nil, mapErr(err)
	}
	return p, nil
}

func (r *principalRepo) GetByID(ctx context.Context, id string) (*repository.Principal, error) {
	q := `SELECT ` + principalCols + ` FROM principals WHERE id = $1`
	p, err := scanPrincipal(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return p, nil
}

func (r *principalRepo) Create(ctx context.Context, input repository.CreatePrincipalInput) (*repository.Principal, error) {
	q := `
		INSERT INTO principals (id, email, name, password_hash, roles, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING ` + principalCols
	id := uuid.NewString()
	roles := input.Roles
	if roles == nil {
		roles = []string{}
	}
	p, err := scanPrincipal(r.pool.QueryRow(ctx, q, id, input.Email, input.Name, input.PasswordHash, roles))
	if err != nil {
		return nil, mapErr(err)
	}
	return p, nil
}

func (r *principalRepo) AddRole(ctx context.Context, id, role string) error {
	// array_append sólo si el rol no está ya presente
	q := `
		UPDATE principals
		SET roles = array_append(roles, $2)
		WHERE id = $1 AND NOT ($2 = ANY(roles))`
	if _, err := r.pool.Exec(ctx, q, id, role); err != nil {
		return mapErr(err)
	}
	return nil
}

func (r *principalRepo) UpdateTotp(ctx context.Context, id string, input repository.UpdateTotpInput) error {
	q := `
		UPDATE principals SET
			totp_secret            = COALESCE($2, totp_secret),
			totp_enabled           = COALESCE($3, totp_enabled),
			totp_last_used_counter = COALESCE($4, totp_last_used_counter)
		WHERE id = $1`
	ct, err := r.pool.Exec(ctx, q, id, input.Secret, input.Enabled, input.LastUsedCounter)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *principalRepo) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	q := `UPDATE principals SET last_login_at = $2 WHERE id = $1`
	ct, err := r.pool.Exec(ctx, q, id, at.UTC())
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("touch last login: %w", repository.ErrNotFound)
	}
	return nil
}

// ListTotpPrincipalIDs devuelve los IDs de principals con secreto TOTP
// guardado. Lo usa la migración de secretos legacy desde la CLI.
func (s *Store) ListTotpPrincipalIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM principals WHERE totp_secret <> ''`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, mapErr(err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
