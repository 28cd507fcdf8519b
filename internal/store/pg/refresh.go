package pg

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/authcore/internal/domain/repository"
)

type refreshRepo struct {
	pool *pgxpool.Pool
}

func (r *refreshRepo) Create(ctx context.Context, input repository.CreateRefreshInput) (string, error) {
	const q = `
		INSERT INTO refresh_records (id, principal_id, token_hash, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	id := uuid.NewString()
	var out string
	err := r.pool.QueryRow(ctx, q, id, input.PrincipalID, input.TokenHash,
		input.IssuedAt.UTC(), input.ExpiresAt.UTC()).Scan(&out)
	if err != nil {
		return "", mapErr(err)
	}
	return out, nil
}

func (r *refreshRepo) GetByHash(ctx context.Context, tokenHash string) (*repository.RefreshRecord, error) {
	const q = `
		SELECT id, principal_id, token_hash, issued_at, expires_at, revoked_at
		FROM refresh_records
		WHERE token_hash = $1`
	var rec repository.RefreshRecord
	err := r.pool.QueryRow(ctx, q, tokenHash).Scan(
		&rec.ID, &rec.PrincipalID, &rec.TokenHash, &rec.IssuedAt, &rec.ExpiresAt, &rec.RevokedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &rec, nil
}

func (r *refreshRepo) Revoke(ctx context.Context, id string, at time.Time) error {
	// CAS: WHERE revoked_at IS NULL hace que sólo una revocación gane.
	const q = `UPDATE refresh_records SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`
	ct, err := r.pool.Exec(ctx, q, id, at.UTC())
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() != 1 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *refreshRepo) RevokeAllByPrincipal(ctx context.Context, principalID string, at time.Time) (int, error) {
	const q = `UPDATE refresh_records SET revoked_at = $2 WHERE principal_id = $1 AND revoked_at IS NULL`
	ct, err := r.pool.Exec(ctx, q, principalID, at.UTC())
	if err != nil {
		return 0, mapErr(err)
	}
	return int(ct.RowsAffected()), nil
}
