package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Errores del flujo de autenticación. Los handlers los mapean a status codes.
var (
	// ErrInvalidCredentials cubre email desconocido Y password incorrecto con
	// el mismo error: el mensaje no puede servir de oráculo de existencia.
	ErrInvalidCredentials = errors.New("invalid email or password")

	ErrDuplicateEmail      = errors.New("email already registered")
	ErrWeakPassword        = errors.New("password does not meet policy")
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
	ErrInvalidTotpCode     = errors.New("invalid totp code")
	ErrTotpNotSetUp        = errors.New("totp not set up")
	ErrTotpNotEnabled      = errors.New("totp not enabled")
	ErrTotpAlreadyEnabled  = errors.New("totp already enabled")
	ErrCrypto              = errors.New("crypto failure")
	ErrConfiguration       = errors.New("configuration error")
	ErrStoreUnavailable    = errors.New("store unavailable")
)

// WeakPasswordError agrega las razones de la policy que no se cumplieron.
// errors.Is(err, ErrWeakPassword) matchea.
type WeakPasswordError struct {
	Reasons []string
}

func (e *WeakPasswordError) Error() string {
	return fmt.Sprintf("password does not meet policy: %s", strings.Join(e.Reasons, ", "))
}

func (e *WeakPasswordError) Is(target error) bool { return target == ErrWeakPassword }

// Helpers de clasificación para la capa de transporte.

func IsInvalidCredentials(err error) bool { return errors.Is(err, ErrInvalidCredentials) }
func IsDuplicateEmail(err error) bool     { return errors.Is(err, ErrDuplicateEmail) }
func IsWeakPassword(err error) bool       { return errors.Is(err, ErrWeakPassword) }
func IsInvalidRefresh(err error) bool     { return errors.Is(err, ErrInvalidRefreshToken) }
func IsInvalidTotpCode(err error) bool    { return errors.Is(err, ErrInvalidTotpCode) }
func IsStoreUnavailable(err error) bool   { return errors.Is(err, ErrStoreUnavailable) }
