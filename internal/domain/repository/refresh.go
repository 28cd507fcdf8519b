package repository

import (
	"context"
	"time"
)

// RefreshRecord representa un refresh token emitido.
// El token crudo nunca se persiste: sólo su hash SHA-256 (hex).
type RefreshRecord struct {
	ID          string
	PrincipalID string
	TokenHash   string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	RevokedAt   *time.Time
}

// CreateRefreshInput contiene los datos para crear un refresh record.
type CreateRefreshInput struct {
	PrincipalID string
	TokenHash   string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// RefreshRepository define operaciones sobre refresh records.
type RefreshRepository interface {
	// Create persiste un nuevo record y retorna su ID.
	Create(ctx context.Context, input CreateRefreshInput) (string, error)

	// GetByHash busca un record por hash del token.
	// Retorna ErrNotFound si no existe.
	GetByHash(ctx context.Context, tokenHash string) (*RefreshRecord, error)

	// Revoke marca un record como revocado. Es compare-and-set: sólo el
	// primer Revoke sobre un record activo gana; los siguientes retornan
	// ErrNotFound. Esto hace que de dos rotaciones concurrentes con el
	// mismo token, exactamente una emita tokens.
	Revoke(ctx context.Context, id string, at time.Time) error

	// RevokeAllByPrincipal revoca todos los records activos del principal.
	// Retorna la cantidad revocada.
	RevokeAllByPrincipal(ctx context.Context, principalID string, at time.Time) (int, error)
}
