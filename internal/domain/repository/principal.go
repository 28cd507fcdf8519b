package repository

import (
	"context"
	"time"
)

// Principal representa una cuenta autenticable.
type Principal struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Roles        []string

	// TOTP. El secreto se guarda cifrado at-rest (ver security/cipher).
	// TotpSecret no vacío + TotpEnabled false => enrolamiento pendiente.
	TotpSecret          string
	TotpEnabled         bool
	TotpLastUsedCounter *int64

	LastLoginAt *time.Time
	DisabledAt  *time.Time
	CreatedAt   time.Time
}

// IsDisabled reporta si la cuenta está deshabilitada.
func (p *Principal) IsDisabled() bool {
	return p != nil && p.DisabledAt != nil
}

// CreatePrincipalInput contiene los datos para crear un principal.
type CreatePrincipalInput struct {
	Email        string
	Name         string
	PasswordHash string
	Roles        []string
}

// UpdateTotpInput actualiza el estado TOTP de un principal.
// Los punteros nil dejan el campo como está; para limpiar el secreto se pasa
// un puntero a string vacío.
type UpdateTotpInput struct {
	Secret          *string
	Enabled         *bool
	LastUsedCounter *int64
}

// PrincipalRepository define operaciones sobre principals.
type PrincipalRepository interface {
	// GetByEmail busca un principal por email (case-insensitive).
	// Retorna ErrNotFound si no existe.
	GetByEmail(ctx context.Context, email string) (*Principal, error)

	// GetByID busca un principal por ID.
	// Retorna ErrNotFound si no existe.
	GetByID(ctx context.Context, id string) (*Principal, error)

	// Create crea un nuevo principal.
	// Retorna ErrConflict si el email ya existe.
	Create(ctx context.Context, input CreatePrincipalInput) (*Principal, error)

	// AddRole agrega un rol al principal (no-op si ya lo tiene).
	AddRole(ctx context.Context, id, role string) error

	// UpdateTotp actualiza secreto/estado/contador TOTP.
	UpdateTotp(ctx context.Context, id string, input UpdateTotpInput) error

	// TouchLastLogin registra el instante del último login exitoso.
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}
