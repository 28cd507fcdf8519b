package http

import (
	"errors"
	"net/http"

	"github.com/dropDatabas3/authcore/internal/auth"
)

// WriteAuthError mapea los errores del service a status codes y cuerpos
// estables. El mensaje de credenciales inválidas es el mismo para email
// desconocido y password incorrecto.
func WriteAuthError(w http.ResponseWriter, err error) {
	switch {
	case auth.IsInvalidCredentials(err):
		WriteError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
	case auth.IsInvalidRefresh(err):
		WriteError(w, http.StatusUnauthorized, "invalid_refresh_token", "invalid or expired refresh token")
	case auth.IsInvalidTotpCode(err):
		WriteError(w, http.StatusUnauthorized, "invalid_totp_code", "invalid code")
	case auth.IsDuplicateEmail(err):
		WriteError(w, http.StatusConflict, "duplicate_email", "email already registered")
	case auth.IsWeakPassword(err):
		var weak *auth.WeakPasswordError
		var reasons []string
		if errors.As(err, &weak) {
			reasons = weak.Reasons
		}
		WriteErrorReasons(w, http.StatusBadRequest, "weak_password", "password does not meet policy", reasons)
	case errors.Is(err, auth.ErrTotpNotSetUp):
		WriteError(w, http.StatusConflict, "totp_not_set_up", "totp enrollment not started")
	case errors.Is(err, auth.ErrTotpNotEnabled):
		WriteError(w, http.StatusConflict, "totp_not_enabled", "totp is not enabled")
	case errors.Is(err, auth.ErrTotpAlreadyEnabled):
		WriteError(w, http.StatusConflict, "totp_already_enabled", "totp is already enabled")
	case auth.IsStoreUnavailable(err):
		WriteError(w, http.StatusServiceUnavailable, "store_unavailable", "try again later")
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "unexpected error")
	}
}
